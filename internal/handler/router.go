package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/segyhp/peer-lending/internal/middleware"
	"github.com/segyhp/peer-lending/pkg/response"
)

type RouterDeps struct {
	Auth           *AuthHandler
	Loans          *LoanHandler
	Health         *HealthHandler
	Authenticator  middleware.Authenticator
	Idempotency    redis.Cmdable
	IdempotencyTTL time.Duration
}

// NewRouter wires every route of the API.
func NewRouter(d RouterDeps) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(response.RecoveryMiddleware)
	r.Use(response.LoggingMiddleware)
	r.Use(response.CORSMiddleware)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", d.Health.Health).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", d.Health.Ready).Methods(http.MethodGet)

	users := r.PathPrefix("/user").Subrouter()
	users.HandleFunc("/register", d.Auth.Register).Methods(http.MethodPost)
	users.HandleFunc("/login", d.Auth.Login).Methods(http.MethodPost)

	loans := r.PathPrefix("/loan").Subrouter()
	loans.Use(middleware.Auth(d.Authenticator))
	if d.Idempotency != nil {
		loans.Use(middleware.Idempotency(d.Idempotency, d.IdempotencyTTL))
	}
	loans.HandleFunc("/request", d.Loans.RequestLoan).Methods(http.MethodPost)
	loans.HandleFunc("/approve", d.Loans.ApproveLoan).Methods(http.MethodPut)
	loans.HandleFunc("/decline", d.Loans.DeclineLoan).Methods(http.MethodPut)
	loans.HandleFunc("/repayment", d.Loans.PayTerm).Methods(http.MethodPut)
	loans.HandleFunc("/repayment/{loanId}", d.Loans.GetSchedule).Methods(http.MethodGet)
	loans.HandleFunc("/pending", d.Loans.ListPending).Methods(http.MethodGet)
	loans.HandleFunc("/allPending", d.Loans.ListAllPending).Methods(http.MethodGet)
	loans.HandleFunc("/approved", d.Loans.ListApproved).Methods(http.MethodGet)
	loans.HandleFunc("/declined", d.Loans.ListDeclined).Methods(http.MethodGet)
	loans.HandleFunc("/paid", d.Loans.ListPaid).Methods(http.MethodGet)

	return r
}
