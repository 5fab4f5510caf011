// Package dbtest connects service tests to a real postgres. Tests are skipped
// unless TEST_DB_DSN points at a database the tests may migrate and write to.
package dbtest

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"tradesim/internal/db"
	"tradesim/internal/ledger"
	"tradesim/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const EnvDSN = "TEST_DB_DSN"

var (
	migrateOnce sync.Once
	migrateErr  error
)

// Pool returns a migrated pool closed at the end of the test.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skip(EnvDSN + " not set")
	}
	migrateOnce.Do(func() { migrateErr = db.Migrate(dsn) })
	require.NoError(t, migrateErr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// NewUser inserts a user with both ledger accounts and returns its id. Every
// call gets a unique email so tests never share balances.
func NewUser(t testing.TB, pool *pgxpool.Pool, ledgerSvc *ledger.Service) string {
	t.Helper()
	ctx := context.Background()
	var id string
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		email := "trader-" + uuid.NewString() + "@example.com"
		if err := tx.QueryRow(ctx, "insert into users (name, email) values ($1, $2) returning id", "Test Trader", email).Scan(&id); err != nil {
			return err
		}
		for _, kind := range []types.AccountKind{types.AccountKindAvailable, types.AccountKindReserved} {
			if _, err := ledgerSvc.EnsureAccount(ctx, tx, id, kind); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return id
}

// Fund credits amount from the house to the user's available balance.
func Fund(t testing.TB, pool *pgxpool.Pool, ledgerSvc *ledger.Service, userID, amount string) {
	t.Helper()
	ctx := context.Background()
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		return ledgerSvc.Move(ctx, tx, userID, ledger.EndpointSystem, ledger.EndpointAvailable, decimal.RequireFromString(amount), types.LedgerEntryTypeDeposit, "test:fund")
	})
	require.NoError(t, err)
}

// RequireBalances asserts the user's available and reserved balances.
func RequireBalances(t testing.TB, ledgerSvc *ledger.Service, userID, available, reserved string) {
	t.Helper()
	b, err := ledgerSvc.Balances(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, b.Available.Equal(decimal.RequireFromString(available)), "available: want %s, got %s", available, b.Available)
	require.True(t, b.Reserved.Equal(decimal.RequireFromString(reserved)), "reserved: want %s, got %s", reserved, b.Reserved)
}

// RequireChainIntact asserts that the ledger hash chain verifies end to end.
func RequireChainIntact(t testing.TB, ledgerSvc *ledger.Service) {
	t.Helper()
	broken, err := ledgerSvc.VerifyChain(context.Background())
	require.NoError(t, err)
	require.Zero(t, broken, "ledger chain broken at sequence %d", broken)
}
