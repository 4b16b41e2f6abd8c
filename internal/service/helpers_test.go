package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/testutil/memstore"
	customError "github.com/segyhp/peer-lending/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newUser(name string) domain.Caller {
	return domain.Caller{ID: uuid.New(), Role: domain.RoleUser, Name: name}
}

func newAdmin() domain.Caller {
	return domain.Caller{ID: uuid.New(), Role: domain.RoleAdmin, Name: "admin"}
}

// services wires every service against one in-memory store.
type services struct {
	store     *memstore.Store
	loans     *LoanService
	repayment *RepaymentService
}

func newServices(t *testing.T) *services {
	t.Helper()
	store := memstore.New()

	loans := NewLoanService(store.Loans(), store)
	loans.now = fixedClock

	repayment := NewRepaymentService(store.Loans(), store.Schedules(), store, nil)
	repayment.now = fixedClock

	return &services{store: store, loans: loans, repayment: repayment}
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	if assert.Error(t, err) {
		assert.Truef(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
		assert.NotEmpty(t, customError.PublicMessage(err))
	}
}
