package model

import (
	"time"

	"tradesim/internal/types"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Symbol     string            `json:"symbol"`
	Side       types.OrderSide   `json:"side"`
	Status     types.OrderStatus `json:"status"`
	Qty        decimal.Decimal   `json:"qty"`
	EntryPrice decimal.Decimal   `json:"entry_price"`
	ExitPrice  *decimal.Decimal  `json:"exit_price"`
	Cost       decimal.Decimal   `json:"cost"`
	Profit     decimal.Decimal   `json:"profit"`
	ReviewNote string            `json:"review_note,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	OpenedAt   *time.Time        `json:"opened_at"`
	CloseReqAt *time.Time        `json:"close_requested_at"`
	ClosedAt   *time.Time        `json:"closed_at"`
}

type Instrument struct {
	Symbol    string               `json:"symbol"`
	Kind      types.InstrumentKind `json:"kind"`
	Active    bool                 `json:"active"`
	MinQty    decimal.Decimal      `json:"min_qty"`
	MaxQty    decimal.Decimal      `json:"max_qty"`
	Precision int                  `json:"precision"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}
