package ledger

import (
	"testing"

	"tradesim/internal/apperr"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeHashChains(t *testing.T) {
	amount := decimal.RequireFromString("125.5")
	first := computeHash("e1", "t1", "a1", amount, types.LedgerEntryTypeDeposit, 1, nil)
	assert.Len(t, first, 64)
	assert.Equal(t, first, computeHash("e1", "t1", "a1", amount, types.LedgerEntryTypeDeposit, 1, nil))

	second := computeHash("e2", "t1", "a2", amount.Neg(), types.LedgerEntryTypeDeposit, 2, &first)
	tampered := "00" + first[2:]
	assert.NotEqual(t, second, computeHash("e2", "t1", "a2", amount.Neg(), types.LedgerEntryTypeDeposit, 2, &tampered))
	assert.NotEqual(t, first, computeHash("e1", "t1", "a1", decimal.RequireFromString("125.51"), types.LedgerEntryTypeDeposit, 1, nil))
}

func TestHashIgnoresTrailingZeroScale(t *testing.T) {
	stored := decimal.RequireFromString("100.00000000")
	written := decimal.NewFromInt(100)
	assert.Equal(t,
		computeHash("e", "t", "a", written, types.LedgerEntryTypeTrade, 3, nil),
		computeHash("e", "t", "a", stored, types.LedgerEntryTypeTrade, 3, nil))
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(ErrNonPositiveAmount))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(ErrInsufficientBalance))
}

func TestNullable(t *testing.T) {
	assert.Equal(t, "", nullable(nil))
	v := "abc"
	assert.Equal(t, "abc", nullable(&v))
}
