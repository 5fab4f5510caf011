package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/db"
	"tradesim/internal/depositmethods"
	"tradesim/internal/events"
	"tradesim/internal/ledger"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = apperr.NotFound("request not found")
	ErrInvalidState   = apperr.Conflict("request already decided")
	ErrAmountTooLarge = apperr.Validation("amount exceeds the maximum")
)

type Service struct {
	pool      *pgxpool.Pool
	ledger    *ledger.Service
	events    events.Sink
	metrics   *metrics.Metrics
	log       *zap.Logger
	maxAmount decimal.Decimal
}

func NewService(pool *pgxpool.Pool, ledgerSvc *ledger.Service, sink events.Sink, m *metrics.Metrics, log *zap.Logger, maxAmount decimal.Decimal) *Service {
	return &Service{pool: pool, ledger: ledgerSvc, events: sink, metrics: m, log: log, maxAmount: maxAmount}
}

func (s *Service) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ledger.ErrNonPositiveAmount
	}
	if s.maxAmount.IsPositive() && amount.GreaterThan(s.maxAmount) {
		return ErrAmountTooLarge
	}
	if amount.Exponent() < -ledger.MoneyScale {
		return apperr.Validation("amount has too many decimal places")
	}
	return nil
}

func (s *Service) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal, methodID, reference string) (model.DepositRequest, error) {
	var out model.DepositRequest
	if err := s.validateAmount(amount); err != nil {
		return out, err
	}
	method, err := depositmethods.Lookup(methodID)
	if err != nil {
		return out, err
	}
	reference = strings.TrimSpace(reference)
	if len(reference) > 200 {
		return out, apperr.Validation("reference is too long")
	}
	row := s.pool.QueryRow(ctx, "insert into deposit_requests (user_id, amount, method, reference) values ($1, $2, $3, $4) returning "+depositColumns, userID, amount, method.ID, reference)
	out, err = scanDeposit(row)
	if err != nil {
		return out, err
	}
	s.log.Info("deposit requested", zap.String("user_id", userID), zap.String("deposit_id", out.ID), zap.String("amount", amount.String()))
	s.events.Notify(events.Event{Type: events.TypeDeposit, UserID: userID, Data: out})
	return out, nil
}

// RequestWithdrawal holds the amount in the reserved account until an admin
// decides, so the same funds cannot back another request or order.
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, methodID, payoutDetails string) (model.WithdrawalRequest, error) {
	var out model.WithdrawalRequest
	if err := s.validateAmount(amount); err != nil {
		return out, err
	}
	method, err := depositmethods.Lookup(methodID)
	if err != nil {
		return out, err
	}
	details, err := depositmethods.NormalizeAndValidateDetails(method.ID, payoutDetails)
	if err != nil {
		return out, err
	}
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, "insert into withdrawal_requests (user_id, amount, method, payout_details) values ($1, $2, $3, $4) returning "+withdrawalColumns, userID, amount, method.ID, details)
		w, err := scanWithdrawal(row)
		if err != nil {
			return err
		}
		if err := s.ledger.Move(ctx, tx, userID, ledger.EndpointAvailable, ledger.EndpointReserved, amount, types.LedgerEntryTypeReserve, "withdrawal:"+w.ID); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return out, err
	}
	out.PayoutDetails = depositmethods.MaskPayoutDetails(out.Method, out.PayoutDetails)
	s.log.Info("withdrawal requested", zap.String("user_id", userID), zap.String("withdrawal_id", out.ID), zap.String("amount", amount.String()))
	s.events.Notify(events.Event{Type: events.TypeWithdrawal, UserID: userID, Data: out})
	return out, nil
}

type Decision struct {
	Approve bool
	Admin   string
	Note    string
}

func (d Decision) status() types.RequestStatus {
	if d.Approve {
		return types.RequestStatusApproved
	}
	return types.RequestStatusRejected
}

func (d Decision) label() string {
	return string(d.status())
}

// DecideDeposit credits the user from the house on approval. The row lock
// and status guard make a repeated decision fail instead of paying twice.
func (s *Service) DecideDeposit(ctx context.Context, id string, d Decision) (model.DepositRequest, error) {
	var out model.DepositRequest
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		dep, err := scanDeposit(tx.QueryRow(ctx, "select "+depositColumns+" from deposit_requests where id = $1 for update", id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if dep.Status != types.RequestStatusPending {
			return ErrInvalidState
		}
		if d.Approve {
			if err := s.ledger.Move(ctx, tx, dep.UserID, ledger.EndpointSystem, ledger.EndpointAvailable, dep.Amount, types.LedgerEntryTypeDeposit, "deposit:"+dep.ID); err != nil {
				return err
			}
		}
		out, err = scanDeposit(tx.QueryRow(ctx, `
			update deposit_requests set status = $2, review_note = $3, reviewed_by = $4, reviewed_at = $5
			where id = $1 and status = 'pending'
			returning `+depositColumns, id, string(d.status()), d.Note, d.Admin, time.Now().UTC()))
		return err
	})
	if err != nil {
		return out, err
	}
	s.metrics.FundingDecision("deposit", d.label())
	s.log.Info("deposit decided", zap.String("deposit_id", id), zap.String("status", string(out.Status)), zap.String("admin", d.Admin))
	s.events.Notify(events.Event{Type: events.TypeDeposit, UserID: out.UserID, Data: out})
	return out, nil
}

// DecideWithdrawal pays the held amount out to the house on approval or
// returns it to the user's available balance on rejection.
func (s *Service) DecideWithdrawal(ctx context.Context, id string, d Decision) (model.WithdrawalRequest, error) {
	var out model.WithdrawalRequest
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		wr, err := scanWithdrawal(tx.QueryRow(ctx, "select "+withdrawalColumns+" from withdrawal_requests where id = $1 for update", id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if wr.Status != types.RequestStatusPending {
			return ErrInvalidState
		}
		ref := "withdrawal:" + wr.ID
		if d.Approve {
			err = s.ledger.Move(ctx, tx, wr.UserID, ledger.EndpointReserved, ledger.EndpointSystem, wr.Amount, types.LedgerEntryTypeWithdraw, ref)
		} else {
			err = s.ledger.Move(ctx, tx, wr.UserID, ledger.EndpointReserved, ledger.EndpointAvailable, wr.Amount, types.LedgerEntryTypeRelease, ref)
		}
		if err != nil {
			return fmt.Errorf("settle withdrawal hold: %w", err)
		}
		out, err = scanWithdrawal(tx.QueryRow(ctx, `
			update withdrawal_requests set status = $2, review_note = $3, reviewed_by = $4, reviewed_at = $5
			where id = $1 and status = 'pending'
			returning `+withdrawalColumns, id, string(d.status()), d.Note, d.Admin, time.Now().UTC()))
		return err
	})
	if err != nil {
		return out, err
	}
	out.PayoutDetails = depositmethods.MaskPayoutDetails(out.Method, out.PayoutDetails)
	s.metrics.FundingDecision("withdrawal", d.label())
	s.log.Info("withdrawal decided", zap.String("withdrawal_id", id), zap.String("status", string(out.Status)), zap.String("admin", d.Admin))
	s.events.Notify(events.Event{Type: events.TypeWithdrawal, UserID: out.UserID, Data: out})
	return out, nil
}

type Filter struct {
	UserID string
	Status types.RequestStatus
	Limit  int
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
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

func (s *Service) ListDeposits(ctx context.Context, f Filter) ([]model.DepositRequest, error) {
	clause, args := f.where()
	rows, err := s.pool.Query(ctx, "select "+depositColumns+" from deposit_requests"+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DepositRequest{}
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListWithdrawals masks payout details unless reveal is set (admin review).
func (s *Service) ListWithdrawals(ctx context.Context, f Filter, reveal bool) ([]model.WithdrawalRequest, error) {
	clause, args := f.where()
	rows, err := s.pool.Query(ctx, "select "+withdrawalColumns+" from withdrawal_requests"+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.WithdrawalRequest{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		if !reveal {
			w.PayoutDetails = depositmethods.MaskPayoutDetails(w.Method, w.PayoutDetails)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type Totals struct {
	ApprovedDeposits    decimal.Decimal `json:"approved_deposits"`
	ApprovedWithdrawals decimal.Decimal `json:"approved_withdrawals"`
	PendingDeposits     int             `json:"pending_deposits"`
	PendingWithdrawals  int             `json:"pending_withdrawals"`
}

// Totals aggregates over one user, or over everyone when userID is empty.
func (s *Service) Totals(ctx context.Context, userID string) (Totals, error) {
	var t Totals
	err := s.pool.QueryRow(ctx, `
		select
			coalesce((select sum(amount) from deposit_requests where status = 'approved' and ($1 = '' or user_id::text = $1)), 0),
			coalesce((select sum(amount) from withdrawal_requests where status = 'approved' and ($1 = '' or user_id::text = $1)), 0),
			(select count(*) from deposit_requests where status = 'pending' and ($1 = '' or user_id::text = $1)),
			(select count(*) from withdrawal_requests where status = 'pending' and ($1 = '' or user_id::text = $1))
	`, userID).Scan(&t.ApprovedDeposits, &t.ApprovedWithdrawals, &t.PendingDeposits, &t.PendingWithdrawals)
	return t, err
}

const depositColumns = "id, user_id, amount, method, reference, status, review_note, reviewed_by, reviewed_at, created_at"

const withdrawalColumns = "id, user_id, amount, method, payout_details, status, review_note, reviewed_by, reviewed_at, created_at"

func scanDeposit(row pgx.Row) (model.DepositRequest, error) {
	var d model.DepositRequest
	var status string
	err := row.Scan(&d.ID, &d.UserID, &d.Amount, &d.Method, &d.Reference, &status, &d.ReviewNote, &d.ReviewedBy, &d.ReviewedAt, &d.CreatedAt)
	d.Status = types.RequestStatus(status)
	return d, err
}

func scanWithdrawal(row pgx.Row) (model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	var status string
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Method, &w.PayoutDetails, &status, &w.ReviewNote, &w.ReviewedBy, &w.ReviewedAt, &w.CreatedAt)
	w.Status = types.RequestStatus(status)
	return w, err
}
