package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/segyhp/peer-lending/internal/domain"
)

const (
	userColumns = `id, name, email, password_hash, role, created_at, updated_at`

	insertUserQuery = `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectUserByIDQuery = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	selectUserByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
)

type userRepository struct {
	db sqlx.ExtContext
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, insertUserQuery,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}

	return err
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	if err := sqlx.GetContext(ctx, r.db, &user, selectUserByIDQuery, id); err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := sqlx.GetContext(ctx, r.db, &user, selectUserByEmailQuery, email); err != nil {
		return nil, err
	}

	return &user, nil
}
