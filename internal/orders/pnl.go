package orders

import (
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
)

// Cost is the cash committed to open a position.
func Cost(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty)
}

// Profit is positive when the position moved in the holder's favor: a buy
// gains when exit > entry, a sell gains when exit < entry.
func Profit(side types.OrderSide, entry, exit, qty decimal.Decimal) decimal.Decimal {
	if side == types.OrderSideSell {
		return entry.Sub(exit).Mul(qty)
	}
	return exit.Sub(entry).Mul(qty)
}

// Settle returns what the house pays back on close and the profit actually
// realized. A position can lose at most its cost.
func Settle(cost, profit decimal.Decimal) (proceeds, realized decimal.Decimal) {
	proceeds = cost.Add(profit)
	if proceeds.IsNegative() {
		proceeds = decimal.Zero
	}
	return proceeds, proceeds.Sub(cost)
}
