// Package depositmethods is the catalog of rails users may name when asking
// to deposit or withdraw. Money never actually moves on these rails.
package depositmethods

import (
	"regexp"
	"strings"

	"tradesim/internal/apperr"
)

type Method struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	Withdraw bool   `json:"withdraw"`
}

var methodCatalog = []Method{
	{ID: "visa", Title: "VISA", Kind: "card", Withdraw: true},
	{ID: "mastercard", Title: "Mastercard", Kind: "card", Withdraw: true},
	{ID: "bank_transfer", Title: "Bank transfer", Kind: "bank", Withdraw: true},
	{ID: "paypal", Title: "PayPal", Kind: "email", Withdraw: true},
	{ID: "usdt", Title: "USDT (TRC20)", Kind: "crypto", Withdraw: true},
	{ID: "btc", Title: "BTC", Kind: "crypto", Withdraw: true},
	{ID: "cash_desk", Title: "Cash desk", Kind: "cash", Withdraw: false},
}

var (
	ErrUnknownMethod  = apperr.Validation("unknown payment method")
	ErrNoWithdrawals  = apperr.Validation("payment method does not support withdrawals")
	ErrInvalidDetails = apperr.Validation("invalid payout details")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	ibanPattern  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{10,30}$`)
)

func All() []Method {
	return append([]Method(nil), methodCatalog...)
}

func Lookup(id string) (Method, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	for _, m := range methodCatalog {
		if m.ID == normalized {
			return m, nil
		}
	}
	return Method{}, ErrUnknownMethod
}

func TitleByID(id string) string {
	if m, err := Lookup(id); err == nil {
		return m.Title
	}
	normalized := strings.ToLower(strings.TrimSpace(id))
	return strings.ToUpper(strings.ReplaceAll(normalized, "_", " "))
}

// NormalizeAndValidateDetails checks payout details against the method's
// format and returns the canonical form that is stored.
func NormalizeAndValidateDetails(methodID, details string) (string, error) {
	m, err := Lookup(methodID)
	if err != nil {
		return "", err
	}
	if !m.Withdraw {
		return "", ErrNoWithdrawals
	}
	value := strings.TrimSpace(details)
	if value == "" {
		return "", apperr.Validation("payout details are required")
	}
	switch m.Kind {
	case "card":
		digits := strings.NewReplacer(" ", "", "-", "").Replace(value)
		if len(digits) < 13 || len(digits) > 19 || !allDigits(digits) || !luhn(digits) {
			return "", ErrInvalidDetails
		}
		return digits, nil
	case "bank":
		iban := strings.ToUpper(strings.ReplaceAll(value, " ", ""))
		if !ibanPattern.MatchString(iban) {
			return "", ErrInvalidDetails
		}
		return iban, nil
	case "email":
		if !emailPattern.MatchString(value) {
			return "", ErrInvalidDetails
		}
		return strings.ToLower(value), nil
	case "crypto":
		if len(value) < 20 || len(value) > 100 || strings.ContainsAny(value, " \t") {
			return "", ErrInvalidDetails
		}
		return value, nil
	}
	return value, nil
}

func MaskPayoutDetails(methodID, details string) string {
	value := strings.TrimSpace(details)
	if value == "" {
		return ""
	}
	m, _ := Lookup(methodID)
	switch m.Kind {
	case "card":
		digits := strings.ReplaceAll(value, " ", "")
		if len(digits) < 4 {
			return "****"
		}
		return "**** **** **** " + digits[len(digits)-4:]
	case "email":
		at := strings.Index(value, "@")
		if at <= 1 {
			return "***"
		}
		return value[:1] + "***" + value[at:]
	case "bank":
		if len(value) <= 8 {
			return "****"
		}
		return value[:4] + "****" + value[len(value)-4:]
	default:
		if len(value) <= 10 {
			return value
		}
		return value[:6] + "..." + value[len(value)-4:]
	}
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
