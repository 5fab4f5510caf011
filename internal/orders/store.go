package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const orderColumns = "id, user_id, symbol, side, status, qty, entry_price, exit_price, cost, profit, review_note, created_at, updated_at, opened_at, close_requested_at, closed_at"

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, status string
	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &side, &status, &o.Qty, &o.EntryPrice, &o.ExitPrice, &o.Cost, &o.Profit, &o.ReviewNote, &o.CreatedAt, &o.UpdatedAt, &o.OpenedAt, &o.CloseReqAt, &o.ClosedAt)
	o.Side = types.OrderSide(side)
	o.Status = types.OrderStatus(status)
	return o, err
}

func (s *Store) Insert(ctx context.Context, tx pgx.Tx, o model.Order) (model.Order, error) {
	return scanOrder(tx.QueryRow(ctx, `
		insert into orders (user_id, symbol, side, status, qty, entry_price, cost)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+orderColumns,
		o.UserID, o.Symbol, string(o.Side), string(o.Status), o.Qty, o.EntryPrice, o.Cost))
}

// Lock loads an order for update inside tx.
func (s *Store) Lock(ctx context.Context, tx pgx.Tx, id string) (model.Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

// Save writes the mutable fields of o, guarded by the status it was read
// with. A lost race surfaces as ErrInvalidState.
func (s *Store) Save(ctx context.Context, tx pgx.Tx, o model.Order, from types.OrderStatus) (model.Order, error) {
	saved, err := scanOrder(tx.QueryRow(ctx, `
		update orders set
			status = $3, exit_price = $4, profit = $5, review_note = $6,
			opened_at = $7, close_requested_at = $8, closed_at = $9, updated_at = now()
		where id = $1 and status = $2
		returning `+orderColumns,
		o.ID, string(from), string(o.Status), o.ExitPrice, o.Profit, o.ReviewNote, o.OpenedAt, o.CloseReqAt, o.ClosedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return saved, ErrInvalidState
	}
	return saved, err
}

func (s *Store) Get(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

type Filter struct {
	UserID   string
	Statuses []types.OrderStatus
	Symbol   string
	Limit    int
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = any($%d)", len(args)))
	}
	if f.Symbol != "" {
		args = append(args, strings.ToUpper(f.Symbol))
		conds = append(conds, fmt.Sprintf("symbol = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	clause := ""
	if len(conds) > 0 {
		clause = " where " + strings.Join(conds, " and ")
	}
	return clause + fmt.Sprintf(" order by created_at desc limit %d", limit), args
}

func (s *Store) List(ctx context.Context, f Filter) ([]model.Order, error) {
	clause, args := f.where()
	rows, err := s.pool.Query(ctx, "select "+orderColumns+" from orders"+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type Summary struct {
	Counts         map[types.OrderStatus]int `json:"counts"`
	Invested       decimal.Decimal           `json:"invested"`
	RealizedProfit decimal.Decimal           `json:"realized_profit"`
}

// Summarize aggregates one user's orders, or every order when userID is empty.
func (s *Store) Summarize(ctx context.Context, userID string) (Summary, error) {
	sum := Summary{Counts: map[types.OrderStatus]int{}}
	rows, err := s.pool.Query(ctx, `
		select status, count(*),
			coalesce(sum(cost) filter (where status in ('open', 'pending_sell')), 0),
			coalesce(sum(profit) filter (where status = 'closed'), 0)
		from orders
		where ($1 = '' or user_id::text = $1)
		group by status
	`, userID)
	if err != nil {
		return sum, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		var invested, realized decimal.Decimal
		if err := rows.Scan(&status, &n, &invested, &realized); err != nil {
			return sum, err
		}
		sum.Counts[types.OrderStatus(status)] = n
		sum.Invested = sum.Invested.Add(invested)
		sum.RealizedProfit = sum.RealizedProfit.Add(realized)
	}
	return sum, rows.Err()
}
