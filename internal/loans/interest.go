package loans

import (
	"time"

	"tradesim/internal/ledger"

	"github.com/shopspring/decimal"
)

// Allocation splits a repayment between accrued interest and principal.
type Allocation struct {
	ToInterest  decimal.Decimal
	ToPrincipal decimal.Decimal
	Principal   decimal.Decimal
	Interest    decimal.Decimal
}

// Allocate applies amount to interest first and the remainder to principal.
func Allocate(principal, interest, amount decimal.Decimal) (Allocation, error) {
	if !amount.IsPositive() {
		return Allocation{}, ledger.ErrNonPositiveAmount
	}
	if amount.GreaterThan(principal.Add(interest)) {
		return Allocation{}, ErrOverpayment
	}
	a := Allocation{Principal: principal, Interest: interest}
	if amount.GreaterThanOrEqual(interest) {
		a.ToInterest = interest
		a.ToPrincipal = amount.Sub(interest)
		a.Interest = decimal.Zero
		a.Principal = principal.Sub(a.ToPrincipal)
	} else {
		a.ToInterest = amount
		a.ToPrincipal = decimal.Zero
		a.Interest = interest.Sub(amount)
	}
	return a, nil
}

var hoursPerDay = decimal.NewFromInt(24)

// Accrue returns simple interest on outstanding principal for the elapsed
// period, prorated by the hour.
func Accrue(outstanding, dailyRate decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 || !outstanding.IsPositive() || !dailyRate.IsPositive() {
		return decimal.Zero
	}
	hours := decimal.NewFromFloat(elapsed.Hours())
	return outstanding.Mul(dailyRate).Mul(hours).Div(hoursPerDay).Round(ledger.MoneyScale)
}
