package loans

import (
	"context"
	"testing"
	"time"

	"tradesim/internal/dbtest"
	"tradesim/internal/events"
	"tradesim/internal/ledger"
	"tradesim/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDBService(t *testing.T) (*Service, *ledger.Service, string, *time.Time) {
	t.Helper()
	pool := dbtest.Pool(t)
	ledgerSvc := ledger.NewService(pool)
	svc := NewService(pool, ledgerSvc, events.Discard{}, nil, zap.NewNop(), d("0.001"), d("5000"))
	clock := time.Now().UTC().Truncate(time.Second)
	svc.now = func() time.Time { return clock }
	return svc, ledgerSvc, dbtest.NewUser(t, pool, ledgerSvc), &clock
}

func TestLoanRepaidInterestFirst(t *testing.T) {
	svc, ledgerSvc, user, clock := newDBService(t)
	ctx := context.Background()
	dbtest.Fund(t, svc.pool, ledgerSvc, user, "100")

	loan, err := svc.Request(ctx, user, d("1000"), 30, "margin")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusPending, loan.Status)
	_, err = svc.Request(ctx, user, d("10"), 5, "")
	assert.ErrorIs(t, err, ErrPendingExists)

	_, _, err = svc.Repay(ctx, user, loan.ID, d("1"))
	assert.ErrorIs(t, err, ErrInvalidState)

	approved, err := svc.Approve(ctx, loan.ID, "ops", "")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusApproved, approved.Status)
	require.NotNil(t, approved.DueAt)
	assert.True(t, approved.DueAt.Equal(clock.Add(30*24*time.Hour)))
	dbtest.RequireBalances(t, ledgerSvc, user, "1100", "0")

	_, err = svc.Approve(ctx, loan.ID, "ops", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.Reject(ctx, loan.ID, "other", "")
	assert.ErrorIs(t, err, ErrInvalidState)
	dbtest.RequireBalances(t, ledgerSvc, user, "1100", "0")

	*clock = clock.Add(24 * time.Hour)
	_, _, err = svc.Repay(ctx, "6f1c1f5e-1f8e-4b59-9d6b-0f1f3c2b8a11", loan.ID, d("10"))
	assert.ErrorIs(t, err, ErrNotFound)

	partial, alloc, err := svc.Repay(ctx, user, loan.ID, d("101"))
	require.NoError(t, err)
	assert.True(t, alloc.ToInterest.Equal(d("1")), "to interest %s", alloc.ToInterest)
	assert.True(t, alloc.ToPrincipal.Equal(d("100")))
	assert.True(t, partial.Outstanding.Equal(d("900")))
	assert.True(t, partial.AccruedInterest.IsZero())
	assert.Equal(t, types.RequestStatusApproved, partial.Status)
	dbtest.RequireBalances(t, ledgerSvc, user, "999", "0")

	_, _, err = svc.Repay(ctx, user, loan.ID, d("900.01"))
	assert.ErrorIs(t, err, ErrOverpayment)

	repaid, alloc, err := svc.Repay(ctx, user, loan.ID, d("900"))
	require.NoError(t, err)
	assert.True(t, alloc.ToInterest.IsZero())
	assert.Equal(t, types.RequestStatusRepaid, repaid.Status)
	dbtest.RequireBalances(t, ledgerSvc, user, "99", "0")

	_, _, err = svc.Repay(ctx, user, loan.ID, d("1"))
	assert.ErrorIs(t, err, ErrInvalidState)

	totals, err := svc.Totals(ctx, user)
	require.NoError(t, err)
	assert.True(t, totals.Outstanding.IsZero())
	assert.Zero(t, totals.Active)
	dbtest.RequireChainIntact(t, ledgerSvc)
}

func TestRejectedLoanFreesPendingSlot(t *testing.T) {
	svc, ledgerSvc, user, _ := newDBService(t)
	ctx := context.Background()

	first, err := svc.Request(ctx, user, d("200"), 7, "")
	require.NoError(t, err)
	rejected, err := svc.Reject(ctx, first.ID, "ops", "no history")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "no history", rejected.ReviewNote)
	dbtest.RequireBalances(t, ledgerSvc, user, "0", "0")

	_, err = svc.Request(ctx, user, d("150"), 7, "")
	require.NoError(t, err)
	totals, err := svc.Totals(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Pending)
}

func TestAccrueInterestJob(t *testing.T) {
	svc, ledgerSvc, user, clock := newDBService(t)
	ctx := context.Background()

	loan, err := svc.Request(ctx, user, d("500"), 10, "")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, loan.ID, "ops", "")
	require.NoError(t, err)

	*clock = clock.Add(48 * time.Hour)
	n, err := svc.AccrueInterest(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	loans, err := svc.List(ctx, Filter{UserID: user})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.True(t, loans[0].AccruedInterest.Equal(d("1")), "accrued %s", loans[0].AccruedInterest)
	assert.True(t, loans[0].Outstanding.Equal(d("500")))

	_, err = svc.AccrueInterest(ctx)
	require.NoError(t, err)
	loans, err = svc.List(ctx, Filter{UserID: user})
	require.NoError(t, err)
	assert.True(t, loans[0].AccruedInterest.Equal(d("1")))

	totals, err := svc.Totals(ctx, user)
	require.NoError(t, err)
	assert.True(t, totals.Outstanding.Equal(d("501")))
	dbtest.RequireBalances(t, ledgerSvc, user, "500", "0")
}
