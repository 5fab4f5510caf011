package funding

import (
	"context"
	"testing"

	"tradesim/internal/dbtest"
	"tradesim/internal/events"
	"tradesim/internal/ledger"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDBService(t *testing.T) (*Service, *ledger.Service, string) {
	t.Helper()
	pool := dbtest.Pool(t)
	ledgerSvc := ledger.NewService(pool)
	svc := NewService(pool, ledgerSvc, events.Discard{}, nil, zap.NewNop(), decimal.NewFromInt(100000))
	return svc, ledgerSvc, dbtest.NewUser(t, pool, ledgerSvc)
}

func TestDepositDecisions(t *testing.T) {
	svc, ledgerSvc, user := newDBService(t)
	ctx := context.Background()

	dep, err := svc.RequestDeposit(ctx, user, decimal.NewFromInt(500), "visa", "ref-1")
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusPending, dep.Status)
	dbtest.RequireBalances(t, ledgerSvc, user, "0", "0")

	approved, err := svc.DecideDeposit(ctx, dep.ID, Decision{Approve: true, Admin: "ops", Note: "seen"})
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusApproved, approved.Status)
	assert.Equal(t, "ops", approved.ReviewedBy)
	dbtest.RequireBalances(t, ledgerSvc, user, "500", "0")

	_, err = svc.DecideDeposit(ctx, dep.ID, Decision{Approve: true, Admin: "ops"})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.DecideDeposit(ctx, dep.ID, Decision{Approve: false, Admin: "other"})
	assert.ErrorIs(t, err, ErrInvalidState)
	dbtest.RequireBalances(t, ledgerSvc, user, "500", "0")

	other, err := svc.RequestDeposit(ctx, user, decimal.NewFromInt(70), "btc", "")
	require.NoError(t, err)
	rejected, err := svc.DecideDeposit(ctx, other.ID, Decision{Approve: false, Admin: "ops"})
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusRejected, rejected.Status)
	dbtest.RequireBalances(t, ledgerSvc, user, "500", "0")

	_, err = svc.DecideDeposit(ctx, "6f1c1f5e-1f8e-4b59-9d6b-0f1f3c2b8a11", Decision{Approve: true})
	assert.ErrorIs(t, err, ErrNotFound)

	totals, err := svc.Totals(ctx, user)
	require.NoError(t, err)
	assert.True(t, totals.ApprovedDeposits.Equal(decimal.NewFromInt(500)))
	dbtest.RequireChainIntact(t, ledgerSvc)
}

func TestWithdrawalHoldsFunds(t *testing.T) {
	svc, ledgerSvc, user := newDBService(t)
	ctx := context.Background()
	dep, err := svc.RequestDeposit(ctx, user, decimal.NewFromInt(1000), "visa", "")
	require.NoError(t, err)
	_, err = svc.DecideDeposit(ctx, dep.ID, Decision{Approve: true, Admin: "ops"})
	require.NoError(t, err)

	_, err = svc.RequestWithdrawal(ctx, user, decimal.NewFromInt(1500), "paypal", "trader@example.com")
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	first, err := svc.RequestWithdrawal(ctx, user, decimal.NewFromInt(400), "paypal", "trader@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "trader@example.com", first.PayoutDetails)
	dbtest.RequireBalances(t, ledgerSvc, user, "600", "400")

	second, err := svc.RequestWithdrawal(ctx, user, decimal.NewFromInt(250), "paypal", "trader@example.com")
	require.NoError(t, err)
	dbtest.RequireBalances(t, ledgerSvc, user, "350", "650")

	paid, err := svc.DecideWithdrawal(ctx, first.ID, Decision{Approve: true, Admin: "ops"})
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusApproved, paid.Status)
	dbtest.RequireBalances(t, ledgerSvc, user, "350", "250")

	_, err = svc.DecideWithdrawal(ctx, first.ID, Decision{Approve: false, Admin: "ops"})
	assert.ErrorIs(t, err, ErrInvalidState)

	released, err := svc.DecideWithdrawal(ctx, second.ID, Decision{Approve: false, Admin: "ops"})
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusRejected, released.Status)
	dbtest.RequireBalances(t, ledgerSvc, user, "600", "0")
	dbtest.RequireChainIntact(t, ledgerSvc)
}
