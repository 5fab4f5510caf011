package orders

import (
	"context"
	"strings"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/db"
	"tradesim/internal/events"
	"tradesim/internal/ledger"
	"tradesim/internal/marketdata"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound         = apperr.NotFound("order not found")
	ErrInvalidState     = apperr.Conflict("order is not in a state that allows this action")
	ErrInvalidSide      = apperr.Validation("side must be buy or sell")
	ErrInstrumentClosed = apperr.Conflict("instrument is not tradable")
)

type QuoteSource interface {
	Current(ctx context.Context, symbol string) (marketdata.Quote, error)
}

type Instruments interface {
	Get(ctx context.Context, symbol string) (model.Instrument, error)
}

type Service struct {
	pool        *pgxpool.Pool
	store       *Store
	ledger      *ledger.Service
	quotes      QuoteSource
	instruments Instruments
	events      events.Sink
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

func NewService(pool *pgxpool.Pool, store *Store, ledgerSvc *ledger.Service, quotes QuoteSource, instruments Instruments, sink events.Sink, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		pool:        pool,
		store:       store,
		ledger:      ledgerSvc,
		quotes:      quotes,
		instruments: instruments,
		events:      sink,
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

type PlaceOrderRequest struct {
	UserID string
	Symbol string
	Side   types.OrderSide
	Qty    decimal.Decimal
}

func validateQty(inst model.Instrument, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return apperr.Validation("qty must be positive")
	}
	if qty.LessThan(inst.MinQty) {
		return apperr.Validation("qty below instrument minimum " + inst.MinQty.String())
	}
	if qty.GreaterThan(inst.MaxQty) {
		return apperr.Validation("qty above instrument maximum " + inst.MaxQty.String())
	}
	if qty.Exponent() < -ledger.MoneyScale {
		return apperr.Validation("qty has too many decimal places")
	}
	return nil
}

// PlaceOrder prices the order off the live quote and holds its cost in the
// user's reserved account until an admin opens or rejects it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (model.Order, error) {
	if !req.Side.Valid() {
		return model.Order{}, ErrInvalidSide
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	inst, err := s.instruments.Get(ctx, symbol)
	if err != nil {
		return model.Order{}, err
	}
	if !inst.Active {
		return model.Order{}, ErrInstrumentClosed
	}
	if err := validateQty(inst, req.Qty); err != nil {
		return model.Order{}, err
	}
	quote, err := s.quotes.Current(ctx, symbol)
	if err != nil {
		return model.Order{}, err
	}
	price := quote.EntryPrice(req.Side)
	cost := Cost(price, req.Qty).Round(ledger.MoneyScale)
	if !cost.IsPositive() {
		return model.Order{}, apperr.Validation("order value rounds to zero")
	}

	var out model.Order
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		o, err := s.store.Insert(ctx, tx, model.Order{
			UserID:     req.UserID,
			Symbol:     symbol,
			Side:       req.Side,
			Status:     types.OrderStatusPending,
			Qty:        req.Qty,
			EntryPrice: price,
			Cost:       cost,
		})
		if err != nil {
			return err
		}
		if err := s.ledger.Move(ctx, tx, req.UserID, ledger.EndpointAvailable, ledger.EndpointReserved, cost, types.LedgerEntryTypeReserve, "order:"+o.ID); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return out, err
	}
	s.metrics.OrderTransition("new", string(types.OrderStatusPending))
	s.log.Info("order placed", zap.String("order_id", out.ID), zap.String("user_id", out.UserID), zap.String("symbol", symbol), zap.String("side", string(req.Side)), zap.String("cost", cost.String()))
	s.events.Notify(events.Event{Type: events.TypeOrder, UserID: out.UserID, Data: out})
	return out, nil
}

// transition is the only path that changes an order's status. It locks the
// row, checks the move against the transition table and the owner, lets
// apply mutate the order and move money, then saves with a status guard.
func (s *Service) transition(ctx context.Context, id, owner string, to types.OrderStatus, apply func(tx pgx.Tx, o *model.Order) error) (model.Order, error) {
	var out model.Order
	var from types.OrderStatus
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		o, err := s.store.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if owner != "" && o.UserID != owner {
			return ErrNotFound
		}
		if !types.CanTransition(o.Status, to) {
			return ErrInvalidState
		}
		from = o.Status
		o.Status = to
		if err := apply(tx, &o); err != nil {
			return err
		}
		out, err = s.store.Save(ctx, tx, o, from)
		return err
	})
	if err != nil {
		return out, err
	}
	s.metrics.OrderTransition(string(from), string(to))
	s.log.Info("order transition", zap.String("order_id", out.ID), zap.String("user_id", out.UserID), zap.String("from", string(from)), zap.String("status", string(to)))
	s.events.Notify(events.Event{Type: events.TypeOrder, UserID: out.UserID, Data: out})
	return out, nil
}

// ApproveOpen funds the position: the reserved cost moves to the house.
func (s *Service) ApproveOpen(ctx context.Context, id, note string) (model.Order, error) {
	return s.transition(ctx, id, "", types.OrderStatusOpen, func(tx pgx.Tx, o *model.Order) error {
		now := s.now().UTC()
		o.OpenedAt = &now
		o.Profit = decimal.Zero
		o.ReviewNote = note
		return s.ledger.Move(ctx, tx, o.UserID, ledger.EndpointReserved, ledger.EndpointSystem, o.Cost, types.LedgerEntryTypeTrade, "order:"+o.ID)
	})
}

func (s *Service) RejectOpen(ctx context.Context, id, note string) (model.Order, error) {
	return s.transition(ctx, id, "", types.OrderStatusRejected, func(tx pgx.Tx, o *model.Order) error {
		now := s.now().UTC()
		o.ClosedAt = &now
		o.ReviewNote = note
		return s.ledger.Move(ctx, tx, o.UserID, ledger.EndpointReserved, ledger.EndpointAvailable, o.Cost, types.LedgerEntryTypeRelease, "order:"+o.ID)
	})
}

// Cancel lets the owner withdraw an order nobody has reviewed yet.
func (s *Service) Cancel(ctx context.Context, userID, id string) (model.Order, error) {
	return s.transition(ctx, id, userID, types.OrderStatusCanceled, func(tx pgx.Tx, o *model.Order) error {
		now := s.now().UTC()
		o.ClosedAt = &now
		return s.ledger.Move(ctx, tx, o.UserID, ledger.EndpointReserved, ledger.EndpointAvailable, o.Cost, types.LedgerEntryTypeRelease, "order:"+o.ID)
	})
}

// RequestClose prices the exit off the live quote and records the projected
// profit for the admin to review.
func (s *Service) RequestClose(ctx context.Context, userID, id string) (model.Order, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return current, err
	}
	if current.UserID != userID {
		return model.Order{}, ErrNotFound
	}
	quote, err := s.quotes.Current(ctx, current.Symbol)
	if err != nil {
		return model.Order{}, err
	}
	return s.transition(ctx, id, userID, types.OrderStatusPendingSell, func(tx pgx.Tx, o *model.Order) error {
		exit := quote.ExitPrice(o.Side)
		now := s.now().UTC()
		o.ExitPrice = &exit
		o.Profit = Profit(o.Side, o.EntryPrice, exit, o.Qty).Round(ledger.MoneyScale)
		o.CloseReqAt = &now
		return nil
	})
}

// ApproveClose pays out cost plus profit at the requested exit price.
func (s *Service) ApproveClose(ctx context.Context, id, note string) (model.Order, error) {
	return s.transition(ctx, id, "", types.OrderStatusClosed, func(tx pgx.Tx, o *model.Order) error {
		if o.ExitPrice == nil {
			return ErrInvalidState
		}
		profit := Profit(o.Side, o.EntryPrice, *o.ExitPrice, o.Qty).Round(ledger.MoneyScale)
		proceeds, realized := Settle(o.Cost, profit)
		now := s.now().UTC()
		o.Profit = realized
		o.ClosedAt = &now
		o.ReviewNote = note
		if !proceeds.IsPositive() {
			return nil
		}
		return s.ledger.Move(ctx, tx, o.UserID, ledger.EndpointSystem, ledger.EndpointAvailable, proceeds, types.LedgerEntryTypeSettle, "order:"+o.ID)
	})
}

// RejectClose keeps the position open and discards the projected exit.
func (s *Service) RejectClose(ctx context.Context, id, note string) (model.Order, error) {
	return s.transition(ctx, id, "", types.OrderStatusOpen, func(tx pgx.Tx, o *model.Order) error {
		o.ExitPrice = nil
		o.CloseReqAt = nil
		o.Profit = decimal.Zero
		o.ReviewNote = note
		return nil
	})
}

type OrderView struct {
	model.Order
	CurrentPrice     *decimal.Decimal `json:"current_price,omitempty"`
	UnrealizedProfit *decimal.Decimal `json:"unrealized_profit,omitempty"`
}

func (s *Service) List(ctx context.Context, f Filter) ([]OrderView, error) {
	items, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]OrderView, 0, len(items))
	for _, o := range items {
		out = append(out, s.view(ctx, o))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (OrderView, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	if userID != "" && o.UserID != userID {
		return OrderView{}, ErrNotFound
	}
	return s.view(ctx, o), nil
}

// view marks open positions to market. A missing quote leaves the fields empty.
func (s *Service) view(ctx context.Context, o model.Order) OrderView {
	v := OrderView{Order: o}
	if o.Status != types.OrderStatusOpen {
		return v
	}
	q, err := s.quotes.Current(ctx, o.Symbol)
	if err != nil {
		return v
	}
	price := q.ExitPrice(o.Side)
	pnl := Profit(o.Side, o.EntryPrice, price, o.Qty).Round(ledger.MoneyScale)
	v.CurrentPrice = &price
	v.UnrealizedProfit = &pnl
	return v
}

// UnrealizedProfit sums mark-to-market profit over a user's open positions.
func (s *Service) UnrealizedProfit(ctx context.Context, userID string) (decimal.Decimal, error) {
	open, err := s.List(ctx, Filter{UserID: userID, Statuses: []types.OrderStatus{types.OrderStatusOpen}, Limit: 500})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range open {
		if v.UnrealizedProfit != nil {
			total = total.Add(*v.UnrealizedProfit)
		}
	}
	return total, nil
}

func (s *Service) Summarize(ctx context.Context, userID string) (Summary, error) {
	return s.store.Summarize(ctx, userID)
}
