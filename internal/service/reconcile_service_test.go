package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segyhp/peer-lending/internal/domain"
	"github.com/segyhp/peer-lending/internal/testutil/memstore"
	"github.com/segyhp/peer-lending/internal/testutil/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(store *memstore.Store) *Reconciler {
	r := NewReconciler(store.Loans(), store.Schedules(), store, nil)
	r.now = fixedClock
	return r
}

func TestReconcileLoans_RepairsPartialWrites(t *testing.T) {
	store := memstore.New()
	owner := newUser("alice")

	// schedule written, status never flipped
	halfApproved := domain.NewLoan(owner, decimal.NewFromInt(100), 3, testNow)
	schedule, err := GenerateSchedule(halfApproved.ID, halfApproved.Amount, halfApproved.Term, halfApproved.CreatedAt)
	require.NoError(t, err)
	store.PutLoan(halfApproved)
	store.PutSchedule(halfApproved.ID, schedule)

	// status flipped, schedule missing
	unscheduled := domain.NewLoan(owner, decimal.NewFromInt(200), 4, testNow)
	unscheduled.Status = domain.LoanStatusApproved
	store.PutLoan(unscheduled)

	// installment marked, counter never decremented
	drifted := domain.NewLoan(owner, decimal.NewFromInt(300), 3, testNow)
	drifted.Status = domain.LoanStatusApproved
	driftedSchedule, err := GenerateSchedule(drifted.ID, drifted.Amount, drifted.Term, drifted.CreatedAt)
	require.NoError(t, err)
	for _, in := range driftedSchedule {
		in.Status = domain.InstallmentStatusPaid
	}
	store.PutLoan(drifted)
	store.PutSchedule(drifted.ID, driftedSchedule)

	// consistent loan is left alone
	healthy := domain.NewLoan(owner, decimal.NewFromInt(50), 1, testNow)
	store.PutLoan(healthy)

	report, err := newTestReconciler(store).ReconcileLoans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Approved: 1, Rescheduled: 1, Resynced: 1}, report)

	got, _ := store.Loan(halfApproved.ID)
	assert.Equal(t, domain.LoanStatusApproved, got.Status)

	assert.Len(t, store.Schedule(unscheduled.ID), 4)
	assert.True(t, store.Schedule(unscheduled.ID).Total().Equal(decimal.NewFromInt(200)))

	got, _ = store.Loan(drifted.ID)
	assert.Equal(t, domain.LoanStatusPaid, got.Status)
	assert.Equal(t, 0, got.RemainingTerm)

	got, _ = store.Loan(healthy.ID)
	assert.Equal(t, domain.LoanStatusPending, got.Status)
	assert.Empty(t, store.Schedule(healthy.ID))

	// a second pass finds nothing to do
	report, err = newTestReconciler(store).ReconcileLoans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)
}

func TestReconcileLoans_PartialResync(t *testing.T) {
	store := memstore.New()
	loan := domain.NewLoan(newUser("alice"), decimal.NewFromInt(400), 4, testNow)
	loan.Status = domain.LoanStatusApproved
	schedule, err := GenerateSchedule(loan.ID, loan.Amount, loan.Term, loan.CreatedAt)
	require.NoError(t, err)
	schedule[0].Status = domain.InstallmentStatusPaid
	store.PutLoan(loan)
	store.PutSchedule(loan.ID, schedule)

	cache := &mocks.MockScheduleCache{}
	cache.On("Delete", mock.Anything, loan.ID, loan.Version).Return(nil)
	r := newTestReconciler(store)
	r.cache = cache

	report, err := r.ReconcileLoans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resynced)

	got, _ := store.Loan(loan.ID)
	assert.Equal(t, 3, got.RemainingTerm)
	assert.Equal(t, domain.LoanStatusApproved, got.Status)
	cache.AssertExpectations(t)
}

func TestReconcileLoans_ListFailure(t *testing.T) {
	loans := &mocks.MockLoanRepository{}
	loans.On("ListByStatus", mock.Anything, domain.LoanStatusPending).Return(nil, errors.New("db gone"))

	r := NewReconciler(loans, &mocks.MockScheduleRepository{}, &mocks.UnitOfWork{}, nil)
	_, err := r.ReconcileLoans(context.Background())
	assert.ErrorContains(t, err, "db gone")
}

func TestRemindDue(t *testing.T) {
	store := memstore.New()
	r := newTestReconciler(store)

	// due dates land at +7d, +14d and +21d from the anchor
	soon := domain.NewLoan(newUser("alice"), decimal.NewFromInt(300), 3, testNow.AddDate(0, 0, -6))
	soonSchedule, err := GenerateSchedule(soon.ID, soon.Amount, soon.Term, soon.CreatedAt)
	require.NoError(t, err)
	store.PutSchedule(soon.ID, soonSchedule)

	late := domain.NewLoan(newUser("bob"), decimal.NewFromInt(200), 2, testNow.AddDate(0, 0, -10))
	lateSchedule, err := GenerateSchedule(late.ID, late.Amount, late.Term, late.CreatedAt)
	require.NoError(t, err)
	store.PutSchedule(late.ID, lateSchedule)

	report, err := r.RemindDue(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReminderReport{Upcoming: 1, Overdue: 1}, report)
}
