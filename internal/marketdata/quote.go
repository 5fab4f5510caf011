package marketdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
)

var (
	ErrNoQuote          = apperr.Conflict("quote unavailable")
	ErrUnknownSymbol    = apperr.NotFound("instrument not found")
	errUnsupportedQuote = errors.New("symbol not supported by provider")
)

type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Spread decimal.Decimal `json:"spread"`
	Source string          `json:"source"`
	Time   time.Time       `json:"time"`
}

func (q Quote) Valid() bool {
	return q.Bid.IsPositive() && q.Ask.IsPositive() && q.Ask.GreaterThanOrEqual(q.Bid)
}

// EntryPrice is what a new position pays: buyers lift the ask, sellers hit the bid.
func (q Quote) EntryPrice(side types.OrderSide) decimal.Decimal {
	if side == types.OrderSideSell {
		return q.Bid
	}
	return q.Ask
}

// ExitPrice is the opposite side of the book from EntryPrice.
func (q Quote) ExitPrice(side types.OrderSide) decimal.Decimal {
	if side == types.OrderSideSell {
		return q.Ask
	}
	return q.Bid
}

type Provider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (Quote, error)
}

type Cache interface {
	Get(ctx context.Context, symbol string) (Quote, bool, error)
	Set(ctx context.Context, q Quote) error
}

// KindOf guesses the instrument class from the ticker.
func KindOf(symbol string) types.InstrumentKind {
	s := strings.ToUpper(symbol)
	for _, quoteAsset := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(s, quoteAsset) && len(s) > len(quoteAsset) {
			return types.InstrumentKindCrypto
		}
	}
	return types.InstrumentKindForex
}
