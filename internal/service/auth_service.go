package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/config"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/repository"
	customError "github.com/segyhp/peer-lending/pkg/errors"
	"github.com/segyhp/peer-lending/pkg/jwt"
	"github.com/segyhp/peer-lending/pkg/password"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidToken is returned by Authenticate for a bad, expired or orphaned token.
var ErrInvalidToken = errors.New("invalid or expired token")

type AuthService struct {
	users  repository.UserRepository
	secret string
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewAuthService(users repository.UserRepository, cfg config.JWTConfig) *AuthService {
	return &AuthService{
		users:  users,
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		expiry: cfg.Expiry,
		now:    time.Now,
	}
}

// Register creates a user account
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, customError.NewValidationError("name is required")
	}
	if !req.Role.Valid() {
		return nil, customError.NewValidationError("role must be user or admin")
	}
	if !password.ValidatePassword(req.Password) {
		return nil, customError.NewValidationError("password must be at least 8 characters")
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, customError.NewValidationError("User with this email already exists")
		}
		return nil, customError.WrapDatabaseError(err)
	}

	log.WithFields(log.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return user, nil
}

// Login verifies credentials and issues an access token
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapInvalidCredentials()
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, customError.WrapInvalidCredentials()
	}

	token, err := jwt.GenerateAccessToken(user.ID.String(), string(user.Role), user.Name, s.secret, s.issuer, s.expiry)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResponse{Token: token, Role: user.Role}, nil
}

// Authenticate resolves a bearer token to the caller it was issued for.
// The user is reloaded so a stale role in the token is never trusted.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Caller, error) {
	claims, err := jwt.ValidateAccessToken(token, s.secret)
	if err != nil {
		return domain.Caller{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return domain.Caller{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Caller{}, ErrInvalidToken
	}
	if err != nil {
		return domain.Caller{}, customError.WrapDatabaseError(err)
	}

	return user.Caller(), nil
}
