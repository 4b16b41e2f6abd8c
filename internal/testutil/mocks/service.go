package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLoanManager struct {
	mock.Mock
}

func (m *MockLoanManager) RequestLoan(ctx context.Context, caller domain.Caller, req domain.LoanRequest) (*domain.Loan, error) {
	args := m.Called(ctx, caller, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanManager) ApproveLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, caller, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanManager) DeclineLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, caller, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanManager) ListLoans(ctx context.Context, caller domain.Caller, status domain.LoanStatus) ([]*domain.Loan, error) {
	args := m.Called(ctx, caller, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

func (m *MockLoanManager) ListAllPending(ctx context.Context, caller domain.Caller) ([]*domain.Loan, error) {
	args := m.Called(ctx, caller)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

type MockRepaymentLedger struct {
	mock.Mock
}

func (m *MockRepaymentLedger) PayTerm(ctx context.Context, caller domain.Caller, loanID uuid.UUID, termNumber int) (*domain.Loan, error) {
	args := m.Called(ctx, caller, loanID, termNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockRepaymentLedger) GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (domain.Schedule, error) {
	args := m.Called(ctx, caller, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Schedule), args.Error(1)
}

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAccountService) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginResponse), args.Error(1)
}

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (domain.Caller, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.Caller), args.Error(1)
}
