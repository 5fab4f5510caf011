package model

import (
	"time"

	"tradesim/internal/types"

	"github.com/shopspring/decimal"
)

type DepositRequest struct {
	ID         string              `json:"id"`
	UserID     string              `json:"user_id"`
	Amount     decimal.Decimal     `json:"amount"`
	Method     string              `json:"method"`
	Reference  string              `json:"reference"`
	Status     types.RequestStatus `json:"status"`
	ReviewNote string              `json:"review_note,omitempty"`
	ReviewedBy string              `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time          `json:"reviewed_at"`
	CreatedAt  time.Time           `json:"created_at"`
}

type WithdrawalRequest struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Method        string              `json:"method"`
	PayoutDetails string              `json:"payout_details"`
	Status        types.RequestStatus `json:"status"`
	ReviewNote    string              `json:"review_note,omitempty"`
	ReviewedBy    string              `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time          `json:"reviewed_at"`
	CreatedAt     time.Time           `json:"created_at"`
}

type Loan struct {
	ID                string              `json:"id"`
	UserID            string              `json:"user_id"`
	Principal         decimal.Decimal     `json:"principal"`
	Outstanding       decimal.Decimal     `json:"outstanding_principal"`
	AccruedInterest   decimal.Decimal     `json:"accrued_interest"`
	DailyRate         decimal.Decimal     `json:"daily_rate"`
	TermDays          int                 `json:"term_days"`
	Purpose           string              `json:"purpose"`
	Status            types.RequestStatus `json:"status"`
	ReviewNote        string              `json:"review_note,omitempty"`
	ReviewedBy        string              `json:"reviewed_by,omitempty"`
	ApprovedAt        *time.Time          `json:"approved_at"`
	DueAt             *time.Time          `json:"due_at"`
	InterestAccruedAt *time.Time          `json:"interest_accrued_at"`
	CreatedAt         time.Time           `json:"created_at"`
}
