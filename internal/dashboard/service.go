package dashboard

import (
	"context"

	"tradesim/internal/funding"
	"tradesim/internal/ledger"
	"tradesim/internal/loans"
	"tradesim/internal/orders"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type BalanceSource interface {
	Balances(ctx context.Context, userID string) (ledger.Balances, error)
}

type FundingSource interface {
	Totals(ctx context.Context, userID string) (funding.Totals, error)
}

type OrderSource interface {
	Summarize(ctx context.Context, userID string) (orders.Summary, error)
	UnrealizedProfit(ctx context.Context, userID string) (decimal.Decimal, error)
}

type LoanSource interface {
	Totals(ctx context.Context, userID string) (loans.Totals, error)
}

type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

type Service struct {
	balances BalanceSource
	funding  FundingSource
	orders   OrderSource
	loans    LoanSource
}

func NewService(balances BalanceSource, fundingSrc FundingSource, orderSrc OrderSource, loanSrc LoanSource) *Service {
	return &Service{balances: balances, funding: fundingSrc, orders: orderSrc, loans: loanSrc}
}

type Summary struct {
	Balances            *ledger.Balances          `json:"balances,omitempty"`
	ApprovedDeposits    decimal.Decimal           `json:"approved_deposits"`
	ApprovedWithdrawals decimal.Decimal           `json:"approved_withdrawals"`
	PendingDeposits     int                       `json:"pending_deposits"`
	PendingWithdrawals  int                       `json:"pending_withdrawals"`
	Orders              map[types.OrderStatus]int `json:"orders"`
	Invested            decimal.Decimal           `json:"invested"`
	RealizedProfit      decimal.Decimal           `json:"realized_profit"`
	UnrealizedProfit    decimal.Decimal           `json:"unrealized_profit"`
	LoanDebt            decimal.Decimal           `json:"loan_debt"`
	ActiveLoans         int                       `json:"active_loans"`
	PendingLoans        int                       `json:"pending_loans"`
}

// ForUser gathers every aggregate for one user concurrently.
func (s *Service) ForUser(ctx context.Context, userID string) (Summary, error) {
	sum, err := s.aggregate(ctx, userID)
	if err != nil {
		return sum, err
	}
	bal, err := s.balances.Balances(ctx, userID)
	if err != nil {
		return sum, err
	}
	sum.Balances = &bal
	return sum, nil
}

func (s *Service) aggregate(ctx context.Context, userID string) (Summary, error) {
	var (
		sum        Summary
		ft         funding.Totals
		os         orders.Summary
		unrealized decimal.Decimal
		lt         loans.Totals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ft, err = s.funding.Totals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		os, err = s.orders.Summarize(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		unrealized, err = s.orders.UnrealizedProfit(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		lt, err = s.loans.Totals(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return sum, err
	}
	sum.ApprovedDeposits = ft.ApprovedDeposits
	sum.ApprovedWithdrawals = ft.ApprovedWithdrawals
	sum.PendingDeposits = ft.PendingDeposits
	sum.PendingWithdrawals = ft.PendingWithdrawals
	sum.Orders = os.Counts
	if sum.Orders == nil {
		sum.Orders = map[types.OrderStatus]int{}
	}
	sum.Invested = os.Invested
	sum.RealizedProfit = os.RealizedProfit
	sum.UnrealizedProfit = unrealized
	sum.LoanDebt = lt.Outstanding
	sum.ActiveLoans = lt.Active
	sum.PendingLoans = lt.Pending
	return sum, nil
}

type Overview struct {
	Users int `json:"users"`
	Summary
	PendingOrders int `json:"pending_orders"`
	PendingCloses int `json:"pending_closes"`
	OpenPositions int `json:"open_positions"`
}

// Platform aggregates across every user for the admin console.
func (s *Service) Platform(ctx context.Context, users UserCounter) (Overview, error) {
	sum, err := s.aggregate(ctx, "")
	if err != nil {
		return Overview{}, err
	}
	n, err := users.CountUsers(ctx)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Users:         n,
		Summary:       sum,
		PendingOrders: sum.Orders[types.OrderStatusPending],
		PendingCloses: sum.Orders[types.OrderStatusPendingSell],
		OpenPositions: sum.Orders[types.OrderStatusOpen] + sum.Orders[types.OrderStatusPendingSell],
	}, nil
}
