// Package memstore is an in-memory implementation of the repository
// interfaces for service and handler tests. Transactions are serialized and
// roll back to a snapshot when the callback fails.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/repository"
)

var (
	_ repository.LoanRepository     = (*loanRepo)(nil)
	_ repository.ScheduleRepository = (*scheduleRepo)(nil)
	_ repository.UserRepository     = (*userRepo)(nil)
	_ repository.UnitOfWork         = (*Store)(nil)
)

type state struct {
	loans     map[uuid.UUID]domain.Loan
	schedules map[uuid.UUID][]domain.Installment
	users     map[uuid.UUID]domain.User
}

func (s state) clone() state {
	c := state{
		loans:     make(map[uuid.UUID]domain.Loan, len(s.loans)),
		schedules: make(map[uuid.UUID][]domain.Installment, len(s.schedules)),
		users:     make(map[uuid.UUID]domain.User, len(s.users)),
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	for k, v := range s.schedules {
		c.schedules[k] = append([]domain.Installment(nil), v...)
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data state

	Commits   int
	Rollbacks int
}

func New() *Store {
	return &Store{data: state{}.clone()}
}

func (s *Store) Loans() repository.LoanRepository         { return &loanRepo{s} }
func (s *Store) Schedules() repository.ScheduleRepository { return &scheduleRepo{s} }
func (s *Store) Users() repository.UserRepository         { return &userRepo{s} }

// WithinTx serializes fn against other transactions and restores the
// previous state when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(r repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(repository.Repos{Loans: s.Loans(), Schedules: s.Schedules()}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.Rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.Commits++
	s.mu.Unlock()
	return nil
}

// PutLoan stores loan as is, bypassing version checks.
func (s *Store) PutLoan(loan *domain.Loan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.loans[loan.ID] = *loan
}

// PutSchedule stores a schedule as is, replacing any existing one.
func (s *Store) PutSchedule(loanID uuid.UUID, schedule domain.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]domain.Installment, 0, len(schedule))
	for _, in := range schedule {
		rows = append(rows, *in)
	}
	s.data.schedules[loanID] = rows
}

// Loan returns a copy of the stored loan.
func (s *Store) Loan(id uuid.UUID) (*domain.Loan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.data.loans[id]
	return &l, ok
}

// Schedule returns a copy of the stored schedule.
func (s *Store) Schedule(loanID uuid.UUID) domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySchedule(s.data.schedules[loanID])
}

func copySchedule(rows []domain.Installment) domain.Schedule {
	out := make(domain.Schedule, 0, len(rows))
	for i := range rows {
		in := rows[i]
		out = append(out, &in)
	}
	return out
}

type loanRepo struct{ s *Store }

func (r *loanRepo) Create(_ context.Context, loan *domain.Loan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.loans[loan.ID] = *loan
	return nil
}

func (r *loanRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Loan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.data.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepo) Update(_ context.Context, loan *domain.Loan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.data.loans[loan.ID]
	if !ok || cur.Version != loan.Version {
		return repository.ErrVersionConflict
	}
	cur.RemainingTerm = loan.RemainingTerm
	cur.Status = loan.Status
	cur.UpdatedAt = loan.UpdatedAt
	cur.Version++
	r.s.data.loans[loan.ID] = cur
	loan.Version++
	return nil
}

func (r *loanRepo) list(match func(domain.Loan) bool) []*domain.Loan {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Loan{}
	for _, l := range r.s.data.loans {
		if match(l) {
			l := l
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *loanRepo) ListByUserAndStatus(_ context.Context, userID uuid.UUID, status domain.LoanStatus) ([]*domain.Loan, error) {
	return r.list(func(l domain.Loan) bool { return l.UserID == userID && l.Status == status }), nil
}

func (r *loanRepo) ListByStatus(_ context.Context, status domain.LoanStatus) ([]*domain.Loan, error) {
	return r.list(func(l domain.Loan) bool { return l.Status == status }), nil
}

type scheduleRepo struct{ s *Store }

func (r *scheduleRepo) Create(_ context.Context, schedule domain.Schedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, in := range schedule {
		for _, existing := range r.s.data.schedules[in.LoanID] {
			if existing.TermNumber == in.TermNumber {
				return repository.ErrScheduleExists
			}
		}
		r.s.data.schedules[in.LoanID] = append(r.s.data.schedules[in.LoanID], *in)
	}
	return nil
}

func (r *scheduleRepo) GetByLoanID(_ context.Context, loanID uuid.UUID) (domain.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := copySchedule(r.s.data.schedules[loanID])
	sort.Slice(out, func(i, j int) bool { return out[i].TermNumber < out[j].TermNumber })
	return out, nil
}

func (r *scheduleRepo) MarkPaid(_ context.Context, loanID uuid.UUID, termNumber int, paidAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := r.s.data.schedules[loanID]
	for i := range rows {
		if rows[i].TermNumber == termNumber && rows[i].Status == domain.InstallmentStatusPay {
			at := paidAt
			rows[i].Status = domain.InstallmentStatusPaid
			rows[i].PaidAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (r *scheduleRepo) due(match func(domain.Installment) bool) []*domain.Installment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Installment{}
	for _, rows := range r.s.data.schedules {
		for _, in := range rows {
			if in.Status == domain.InstallmentStatusPay && match(in) {
				in := in
				out = append(out, &in)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out
}

func (r *scheduleRepo) ListDueBetween(_ context.Context, from, to time.Time) ([]*domain.Installment, error) {
	return r.due(func(in domain.Installment) bool {
		return !in.DueDate.Before(from) && in.DueDate.Before(to)
	}), nil
}

func (r *scheduleRepo) ListOverdue(_ context.Context, now time.Time) ([]*domain.Installment, error) {
	return r.due(func(in domain.Installment) bool { return in.DueDate.Before(now) }), nil
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.data.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.s.data.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}
