package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/middleware"
	"github.com/segyhp/peer-lending/internal/service"
	"github.com/segyhp/peer-lending/internal/testutil/mocks"
	customError "github.com/segyhp/peer-lending/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Caller{ID: uuid.New(), Role: domain.RoleUser, Name: "alice"}
	root  = domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin, Name: "root"}
)

type fixture struct {
	loans      *mocks.MockLoanManager
	repayments *mocks.MockRepaymentLedger
	accounts   *mocks.MockAccountService
	router     http.Handler
}

func newFixture(t *testing.T, idem redis.Cmdable) *fixture {
	t.Helper()
	f := &fixture{
		loans:      new(mocks.MockLoanManager),
		repayments: new(mocks.MockRepaymentLedger),
		accounts:   new(mocks.MockAccountService),
	}

	auth := new(mocks.MockAuthenticator)
	auth.On("Authenticate", mock.Anything, "user-token").Return(alice, nil).Maybe()
	auth.On("Authenticate", mock.Anything, "admin-token").Return(root, nil).Maybe()

	ok := PingerFunc(func(context.Context) error { return nil })
	f.router = NewRouter(RouterDeps{
		Auth:           NewAuthHandler(f.accounts),
		Loans:          NewLoanHandler(f.loans, f.repayments),
		Health:         NewHealthHandler(ok, ok, time.Second),
		Authenticator:  auth,
		Idempotency:    idem,
		IdempotencyTTL: time.Hour,
	})

	t.Cleanup(func() {
		f.loans.AssertExpectations(t)
		f.repayments.AssertExpectations(t)
		f.accounts.AssertExpectations(t)
	})
	return f
}

func (f *fixture) do(method, path, token, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func pendingLoan(owner domain.Caller) *domain.Loan {
	return domain.NewLoan(owner, decimal.NewFromInt(1000), 4, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
}

func TestRequestLoan(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		body    string
		setup   func(f *fixture)
		status  int
		message string
	}{
		{
			name:  "created",
			token: "user-token",
			body:  `{"amount": 1000, "term": 4}`,
			setup: func(f *fixture) {
				f.loans.On("RequestLoan", mock.Anything, alice, mock.MatchedBy(func(req domain.LoanRequest) bool {
					return req.Amount.Equal(decimal.NewFromInt(1000)) && req.Term == 4
				})).Return(pendingLoan(alice), nil).Once()
			},
			status:  http.StatusCreated,
			message: "Loan request created",
		},
		{
			name:    "amount as string",
			token:   "user-token",
			body:    `{"amount": "250.50", "term": 2}`,
			setup:   func(f *fixture) { f.loans.On("RequestLoan", mock.Anything, alice, mock.Anything).Return(pendingLoan(alice), nil).Once() },
			status:  http.StatusCreated,
			message: "Loan request created",
		},
		{
			name:    "admin rejected before body is read",
			token:   "admin-token",
			body:    `not json`,
			status:  http.StatusBadRequest,
			message: "Only users can make a loan request",
		},
		{
			name:    "missing body",
			token:   "user-token",
			status:  http.StatusBadRequest,
			message: "Request body is required",
		},
		{
			name:    "malformed json",
			token:   "user-token",
			body:    `{"amount": 1000,`,
			status:  http.StatusBadRequest,
			message: "Invalid request body",
		},
		{
			name:    "missing amount",
			token:   "user-token",
			body:    `{"term": 4}`,
			status:  http.StatusBadRequest,
			message: "amount is a required field",
		},
		{
			name:    "negative amount",
			token:   "user-token",
			body:    `{"amount": -5, "term": 4}`,
			status:  http.StatusBadRequest,
			message: "amount must be greater than 0",
		},
		{
			name:    "fractional term",
			token:   "user-token",
			body:    `{"amount": 100, "term": 2.5}`,
			status:  http.StatusBadRequest,
			message: "Invalid request body",
		},
		{
			name:  "service validation error",
			token: "user-token",
			body:  `{"amount": 100.123, "term": 4}`,
			setup: func(f *fixture) {
				f.loans.On("RequestLoan", mock.Anything, alice, mock.Anything).
					Return(nil, customError.NewValidationError("amount must have at most two decimal places")).Once()
			},
			status:  http.StatusBadRequest,
			message: "amount must have at most two decimal places",
		},
		{
			name:  "store failure is hidden",
			token: "user-token",
			body:  `{"amount": 100, "term": 4}`,
			setup: func(f *fixture) {
				f.loans.On("RequestLoan", mock.Anything, alice, mock.Anything).
					Return(nil, customError.WrapDatabaseError(errors.New("pq: connection refused"))).Once()
			},
			status:  http.StatusInternalServerError,
			message: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.setup != nil {
				tt.setup(f)
			}

			rec, body := f.do(http.MethodPost, "/loan/request", tt.token, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, body["message"])
			assert.NotContains(t, rec.Body.String(), "pq:")
			if tt.status == http.StatusCreated {
				assert.Equal(t, true, body["success"])
				assert.Contains(t, body, "loan")
			}
		})
	}
}

func TestApproveAndDecline(t *testing.T) {
	loan := pendingLoan(alice)

	t.Run("approve", func(t *testing.T) {
		f := newFixture(t, nil)
		approved := *loan
		approved.Status = domain.LoanStatusApproved
		f.loans.On("ApproveLoan", mock.Anything, root, loan.ID).Return(&approved, nil).Once()

		rec, body := f.do(http.MethodPut, "/loan/approve", "admin-token", `{"loanId":"`+loan.ID.String()+`"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Loan APPROVED Successfully", body["message"])
		assert.Equal(t, "APPROVED", body["loan"].(map[string]interface{})["status"])
	})

	t.Run("decline", func(t *testing.T) {
		f := newFixture(t, nil)
		declined := *loan
		declined.Status = domain.LoanStatusDeclined
		f.loans.On("DeclineLoan", mock.Anything, root, loan.ID).Return(&declined, nil).Once()

		rec, body := f.do(http.MethodPut, "/loan/decline", "admin-token", `{"loanId":"`+loan.ID.String()+`"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Loan DECLINED Successfully", body["message"])
	})

	t.Run("user cannot approve", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodPut, "/loan/approve", "user-token", `{"loanId":"`+loan.ID.String()+`"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Only admins can approve loans", body["message"])
	})

	t.Run("missing loan id", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodPut, "/loan/decline", "admin-token", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "loanId is a required field", body["message"])
	})

	t.Run("malformed loan id", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodPut, "/loan/approve", "admin-token", `{"loanId":"42"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "loanId must be a valid id", body["message"])
	})

	t.Run("not pending", func(t *testing.T) {
		f := newFixture(t, nil)
		f.loans.On("ApproveLoan", mock.Anything, root, loan.ID).
			Return(nil, customError.WrapLoanNotPending(loan.ID.String())).Once()

		rec, body := f.do(http.MethodPut, "/loan/approve", "admin-token", `{"loanId":"`+loan.ID.String()+`"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body["message"], "is not PENDING")
	})

	t.Run("unknown loan", func(t *testing.T) {
		f := newFixture(t, nil)
		f.loans.On("DeclineLoan", mock.Anything, root, loan.ID).
			Return(nil, customError.WrapLoanNotFound(loan.ID.String())).Once()

		rec, _ := f.do(http.MethodPut, "/loan/decline", "admin-token", `{"loanId":"`+loan.ID.String()+`"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPayTerm(t *testing.T) {
	loanID := uuid.New()

	t.Run("paid", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repayments.On("PayTerm", mock.Anything, alice, loanID, 3).Return(pendingLoan(alice), nil).Once()

		rec, body := f.do(http.MethodPut, "/loan/repayment", "user-token", `{"loanId":"`+loanID.String()+`","repaymentTerm":3}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Repayment done for term number 3", body["message"])
	})

	t.Run("already paid", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repayments.On("PayTerm", mock.Anything, alice, loanID, 1).
			Return(nil, customError.WrapInstallmentAlreadyPaid(1)).Once()

		rec, body := f.do(http.MethodPut, "/loan/repayment", "user-token", `{"loanId":"`+loanID.String()+`","repaymentTerm":1}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("term missing", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodPut, "/loan/repayment", "user-token", `{"loanId":"`+loanID.String()+`"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "repaymentTerm is a required field", body["message"])
	})

	t.Run("admin cannot pay", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodPut, "/loan/repayment", "admin-token", `{"loanId":"`+loanID.String()+`","repaymentTerm":1}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Only users can make loan repayments", body["message"])
	})
}

func TestListRoutes(t *testing.T) {
	tests := []struct {
		path   string
		status domain.LoanStatus
		key    string
	}{
		{"/loan/pending", domain.LoanStatusPending, "pending"},
		{"/loan/approved", domain.LoanStatusApproved, "approved"},
		{"/loan/declined", domain.LoanStatusDeclined, "declined"},
		{"/loan/paid", domain.LoanStatusPaid, "paid"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			f := newFixture(t, nil)
			f.loans.On("ListLoans", mock.Anything, alice, tt.status).Return([]*domain.Loan{pendingLoan(alice)}, nil).Once()

			rec, body := f.do(http.MethodGet, tt.path, "user-token", "")

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, body[tt.key], 1)
		})
	}

	t.Run("empty list is not null", func(t *testing.T) {
		f := newFixture(t, nil)
		f.loans.On("ListLoans", mock.Anything, alice, domain.LoanStatusPaid).Return(nil, nil).Once()

		rec, _ := f.do(http.MethodGet, "/loan/paid", "user-token", "")

		assert.Contains(t, rec.Body.String(), `"paid":[]`)
	})

	t.Run("admin cannot list own", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodGet, "/loan/pending", "admin-token", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Admin can't access this route", body["message"])
	})

	t.Run("all pending for admins", func(t *testing.T) {
		f := newFixture(t, nil)
		f.loans.On("ListAllPending", mock.Anything, root).
			Return([]*domain.Loan{pendingLoan(alice), pendingLoan(alice)}, nil).Once()

		rec, body := f.do(http.MethodGet, "/loan/allPending", "admin-token", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["pending"], 2)
	})

	t.Run("all pending denied for users", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodGet, "/loan/allPending", "user-token", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "You are a user, and this route is only accessible for admins", body["message"])
	})
}

func TestGetSchedule(t *testing.T) {
	loanID := uuid.New()
	schedule, err := service.GenerateSchedule(loanID, decimal.NewFromInt(1000), 4, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repayments.On("GetSchedule", mock.Anything, alice, loanID).Return(schedule, nil).Once()

		rec, body := f.do(http.MethodGet, "/loan/repayment/"+loanID.String(), "user-token", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["repayments"], 4)
	})

	t.Run("schedule missing is 404", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repayments.On("GetSchedule", mock.Anything, alice, loanID).
			Return(nil, customError.WrapScheduleNotFound(loanID.String())).Once()

		rec, body := f.do(http.MethodGet, "/loan/repayment/"+loanID.String(), "user-token", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, body["message"], "Repayments not found")
	})

	t.Run("unknown loan is 400", func(t *testing.T) {
		f := newFixture(t, nil)
		f.repayments.On("GetSchedule", mock.Anything, alice, loanID).
			Return(nil, customError.WrapLoanNotFound(loanID.String())).Once()

		rec, _ := f.do(http.MethodGet, "/loan/repayment/"+loanID.String(), "user-token", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodGet, "/loan/repayment/not-a-uuid", "user-token", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "loanId must be a valid id", body["message"])
	})
}

func TestAuthRoutes(t *testing.T) {
	t.Run("register", func(t *testing.T) {
		f := newFixture(t, nil)
		user := &domain.User{ID: uuid.New(), Name: "alice", Email: "alice@example.com", PasswordHash: "secret-hash", Role: domain.RoleUser}
		f.accounts.On("Register", mock.Anything, domain.RegisterRequest{
			Name: "alice", Email: "alice@example.com", Password: "password1", Role: domain.RoleUser,
		}).Return(user, nil).Once()

		rec, body := f.do(http.MethodPost, "/user/register", "",
			`{"name":"alice","email":"alice@example.com","password":"password1","role":"user"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Registration successful.", body["message"])
		assert.Contains(t, body, "newUser")
		assert.NotContains(t, rec.Body.String(), "secret-hash")
	})

	t.Run("register validation", func(t *testing.T) {
		tests := []struct {
			body    string
			message string
		}{
			{`{"email":"a@example.com","password":"password1","role":"user"}`, "name is a required field"},
			{`{"name":"a","email":"nope","password":"password1","role":"user"}`, "email must be a valid email address"},
			{`{"name":"a","email":"a@example.com","password":"short","role":"user"}`, "password should have at least 8 characters"},
			{`{"name":"a","email":"a@example.com","password":"password1","role":"root"}`, "role must be one of: user admin"},
		}
		for _, tt := range tests {
			f := newFixture(t, nil)
			rec, body := f.do(http.MethodPost, "/user/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, body["message"])
		}
	})

	t.Run("login", func(t *testing.T) {
		f := newFixture(t, nil)
		f.accounts.On("Login", mock.Anything, domain.LoginRequest{Email: "alice@example.com", Password: "password1"}).
			Return(&domain.LoginResponse{Token: "signed", Role: domain.RoleUser}, nil).Once()

		rec, body := f.do(http.MethodPost, "/user/login", "", `{"email":"alice@example.com","password":"password1"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Login Successful", body["message"])
		assert.Equal(t, "signed", body["token"])
		assert.Equal(t, "user", body["role"])
	})

	t.Run("bad credentials", func(t *testing.T) {
		f := newFixture(t, nil)
		f.accounts.On("Login", mock.Anything, mock.Anything).Return(nil, customError.WrapInvalidCredentials()).Once()

		rec, body := f.do(http.MethodPost, "/user/login", "", `{"email":"alice@example.com","password":"wrong-one"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, false, body["success"])
	})
}

func TestRouter(t *testing.T) {
	t.Run("loan routes need a token", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, body := f.do(http.MethodGet, "/loan/pending", "", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No authorization token is provided", body["message"])
	})

	t.Run("unknown route", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, _ := f.do(http.MethodGet, "/nope", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		f := newFixture(t, nil)
		rec, _ := f.do(http.MethodGet, "/health", "", "")
		assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("idempotent loan request", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })

		f := newFixture(t, rdb)
		f.loans.On("RequestLoan", mock.Anything, alice, mock.Anything).Return(pendingLoan(alice), nil).Once()

		send := func() *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/loan/request", bytes.NewReader([]byte(`{"amount":1000,"term":4}`)))
			req.Header.Set("Authorization", "Bearer user-token")
			req.Header.Set(middleware.IdempotencyHeader, "retry-1")
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			return rec
		}

		first := send()
		second := send()

		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get(middleware.ReplayedHeader))
		assert.JSONEq(t, first.Body.String(), second.Body.String())
	})
}

func TestHealth(t *testing.T) {
	ok := PingerFunc(func(context.Context) error { return nil })
	down := PingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	tests := []struct {
		name   string
		db     Pinger
		redis  Pinger
		status int
	}{
		{"ready", ok, ok, http.StatusOK},
		{"database down", down, ok, http.StatusServiceUnavailable},
		{"redis down", ok, down, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.redis, time.Second)
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "refused")
		})
	}

	t.Run("respects timeout", func(t *testing.T) {
		slow := PingerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		h := NewHealthHandler(slow, ok, 10*time.Millisecond)
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("liveness", func(t *testing.T) {
		h := NewHealthHandler(down, down, time.Second)
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
