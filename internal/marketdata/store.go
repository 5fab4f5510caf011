package marketdata

import (
	"context"
	"errors"
	"strings"

	"tradesim/internal/apperr"
	"tradesim/internal/model"
	"tradesim/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// DefaultInstrument describes a symbol seeded from configuration.
func DefaultInstrument(symbol string) model.Instrument {
	symbol = strings.ToUpper(symbol)
	inst := model.Instrument{
		Symbol:    symbol,
		Kind:      KindOf(symbol),
		Active:    true,
		Precision: int(profileFor(symbol).Prec),
	}
	if inst.Kind == types.InstrumentKindCrypto {
		inst.MinQty = decimal.RequireFromString("0.0001")
		inst.MaxQty = decimal.NewFromInt(100)
	} else {
		inst.MinQty = decimal.RequireFromString("0.01")
		inst.MaxQty = decimal.NewFromInt(100000)
	}
	return inst
}

// Seed inserts missing instruments and leaves existing rows (and any admin
// edits to them) untouched.
func (s *Store) Seed(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		inst := DefaultInstrument(sym)
		_, err := s.pool.Exec(ctx, `
			insert into instruments (symbol, kind, active, min_qty, max_qty, precision)
			values ($1, $2, $3, $4, $5, $6)
			on conflict (symbol) do nothing
		`, inst.Symbol, string(inst.Kind), inst.Active, inst.MinQty, inst.MaxQty, inst.Precision)
		if err != nil {
			return err
		}
	}
	return nil
}

const instrumentColumns = "symbol, kind, active, min_qty, max_qty, precision"

func scanInstrument(row pgx.Row) (model.Instrument, error) {
	var inst model.Instrument
	var kind string
	err := row.Scan(&inst.Symbol, &kind, &inst.Active, &inst.MinQty, &inst.MaxQty, &inst.Precision)
	inst.Kind = types.InstrumentKind(kind)
	return inst, err
}

func (s *Store) List(ctx context.Context, activeOnly bool) ([]model.Instrument, error) {
	q := "select " + instrumentColumns + " from instruments"
	if activeOnly {
		q += " where active"
	}
	rows, err := s.pool.Query(ctx, q+" order by symbol")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Instrument{}
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, symbol string) (model.Instrument, error) {
	inst, err := scanInstrument(s.pool.QueryRow(ctx, "select "+instrumentColumns+" from instruments where symbol = $1", strings.ToUpper(symbol)))
	if errors.Is(err, pgx.ErrNoRows) {
		return inst, ErrUnknownSymbol
	}
	return inst, err
}

type InstrumentUpdate struct {
	Active *bool            `json:"active"`
	MinQty *decimal.Decimal `json:"min_qty"`
	MaxQty *decimal.Decimal `json:"max_qty"`
}

func (s *Store) Update(ctx context.Context, symbol string, upd InstrumentUpdate) (model.Instrument, error) {
	inst, err := s.Get(ctx, symbol)
	if err != nil {
		return inst, err
	}
	if upd.Active != nil {
		inst.Active = *upd.Active
	}
	if upd.MinQty != nil {
		inst.MinQty = *upd.MinQty
	}
	if upd.MaxQty != nil {
		inst.MaxQty = *upd.MaxQty
	}
	if err := validateLimits(inst); err != nil {
		return inst, err
	}
	_, err = s.pool.Exec(ctx, "update instruments set active = $2, min_qty = $3, max_qty = $4 where symbol = $1", inst.Symbol, inst.Active, inst.MinQty, inst.MaxQty)
	return inst, err
}

func validateLimits(inst model.Instrument) error {
	if !inst.MinQty.IsPositive() {
		return apperr.Validation("min_qty must be positive")
	}
	if inst.MaxQty.LessThan(inst.MinQty) {
		return apperr.Validation("max_qty must be >= min_qty")
	}
	return nil
}
