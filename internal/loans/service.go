package loans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/db"
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
	ErrNotFound       = apperr.NotFound("loan not found")
	ErrInvalidState   = apperr.Conflict("loan is not in a state that allows this action")
	ErrPendingExists  = apperr.Conflict("a loan request is already pending")
	ErrOverpayment    = apperr.Validation("repayment exceeds outstanding debt")
	ErrAmountTooLarge = apperr.Validation("amount exceeds the maximum loan")
	ErrInvalidTerm    = apperr.Validation("term_days must be between 1 and 365")
)

const (
	MinTermDays = 1
	MaxTermDays = 365
)

type Service struct {
	pool      *pgxpool.Pool
	ledger    *ledger.Service
	events    events.Sink
	metrics   *metrics.Metrics
	log       *zap.Logger
	dailyRate decimal.Decimal
	maxAmount decimal.Decimal
	now       func() time.Time
}

func NewService(pool *pgxpool.Pool, ledgerSvc *ledger.Service, sink events.Sink, m *metrics.Metrics, log *zap.Logger, dailyRate, maxAmount decimal.Decimal) *Service {
	return &Service{
		pool:      pool,
		ledger:    ledgerSvc,
		events:    sink,
		metrics:   m,
		log:       log,
		dailyRate: dailyRate,
		maxAmount: maxAmount,
		now:       time.Now,
	}
}

func (s *Service) validateRequest(amount decimal.Decimal, termDays int) error {
	if !amount.IsPositive() {
		return ledger.ErrNonPositiveAmount
	}
	if amount.GreaterThan(s.maxAmount) {
		return ErrAmountTooLarge
	}
	if amount.Exponent() < -ledger.MoneyScale {
		return apperr.Validation("amount has too many decimal places")
	}
	if termDays < MinTermDays || termDays > MaxTermDays {
		return ErrInvalidTerm
	}
	return nil
}

func (s *Service) Request(ctx context.Context, userID string, amount decimal.Decimal, termDays int, purpose string) (model.Loan, error) {
	if err := s.validateRequest(amount, termDays); err != nil {
		return model.Loan{}, err
	}
	purpose = strings.TrimSpace(purpose)
	if len(purpose) > 500 {
		return model.Loan{}, apperr.Validation("purpose is too long")
	}
	loan, err := scanLoan(s.pool.QueryRow(ctx, `
		insert into loans (user_id, principal, outstanding_principal, daily_rate, term_days, purpose)
		values ($1, $2, $2, $3, $4, $5)
		returning `+loanColumns, userID, amount, s.dailyRate, termDays, purpose))
	if db.UniqueViolation(err) {
		return model.Loan{}, ErrPendingExists
	}
	if err != nil {
		return model.Loan{}, err
	}
	s.log.Info("loan requested", zap.String("loan_id", loan.ID), zap.String("user_id", userID), zap.String("amount", amount.String()))
	s.events.Notify(events.Event{Type: events.TypeLoan, UserID: userID, Data: loan})
	return loan, nil
}

func (s *Service) lock(ctx context.Context, tx pgx.Tx, id string) (model.Loan, error) {
	loan, err := scanLoan(tx.QueryRow(ctx, "select "+loanColumns+" from loans where id = $1 for update", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return loan, ErrNotFound
	}
	return loan, err
}

func (s *Service) save(ctx context.Context, tx pgx.Tx, l model.Loan, from types.RequestStatus) (model.Loan, error) {
	saved, err := scanLoan(tx.QueryRow(ctx, `
		update loans set
			status = $3, outstanding_principal = $4, accrued_interest = $5, review_note = $6,
			reviewed_by = $7, approved_at = $8, due_at = $9, interest_accrued_at = $10
		where id = $1 and status = $2
		returning `+loanColumns,
		l.ID, string(from), string(l.Status), l.Outstanding, l.AccruedInterest, l.ReviewNote,
		l.ReviewedBy, l.ApprovedAt, l.DueAt, l.InterestAccruedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return saved, ErrInvalidState
	}
	return saved, err
}

// Approve pays the principal into the user's available balance and starts
// the interest clock.
func (s *Service) Approve(ctx context.Context, id, admin, note string) (model.Loan, error) {
	return s.decide(ctx, id, admin, note, true)
}

func (s *Service) Reject(ctx context.Context, id, admin, note string) (model.Loan, error) {
	return s.decide(ctx, id, admin, note, false)
}

func (s *Service) decide(ctx context.Context, id, admin, note string, approve bool) (model.Loan, error) {
	var out model.Loan
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		loan, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if loan.Status != types.RequestStatusPending {
			return ErrInvalidState
		}
		loan.ReviewNote = note
		loan.ReviewedBy = admin
		if approve {
			now := s.now().UTC()
			due := now.Add(time.Duration(loan.TermDays) * 24 * time.Hour)
			loan.Status = types.RequestStatusApproved
			loan.ApprovedAt = &now
			loan.InterestAccruedAt = &now
			loan.DueAt = &due
			if err := s.ledger.Move(ctx, tx, loan.UserID, ledger.EndpointSystem, ledger.EndpointAvailable, loan.Principal, types.LedgerEntryTypeLoan, "loan:"+loan.ID); err != nil {
				return err
			}
		} else {
			loan.Status = types.RequestStatusRejected
		}
		out, err = s.save(ctx, tx, loan, types.RequestStatusPending)
		return err
	})
	if err != nil {
		return out, err
	}
	s.metrics.LoanDecision(string(out.Status))
	s.log.Info("loan decided", zap.String("loan_id", id), zap.String("status", string(out.Status)), zap.String("admin", admin))
	s.events.Notify(events.Event{Type: events.TypeLoan, UserID: out.UserID, Data: out})
	return out, nil
}

// Repay settles interest accrued up to now before applying the payment.
func (s *Service) Repay(ctx context.Context, userID, id string, amount decimal.Decimal) (model.Loan, Allocation, error) {
	var out model.Loan
	var alloc Allocation
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		loan, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if loan.UserID != userID {
			return ErrNotFound
		}
		if loan.Status != types.RequestStatusApproved {
			return ErrInvalidState
		}
		s.accrueInto(&loan, s.now().UTC())
		alloc, err = Allocate(loan.Outstanding, loan.AccruedInterest, amount.Round(ledger.MoneyScale))
		if err != nil {
			return err
		}
		paid := alloc.ToInterest.Add(alloc.ToPrincipal)
		if err := s.ledger.Move(ctx, tx, userID, ledger.EndpointAvailable, ledger.EndpointSystem, paid, types.LedgerEntryTypeRepay, "loan:"+loan.ID); err != nil {
			return err
		}
		loan.Outstanding = alloc.Principal
		loan.AccruedInterest = alloc.Interest
		if loan.Outstanding.IsZero() && loan.AccruedInterest.IsZero() {
			loan.Status = types.RequestStatusRepaid
		}
		out, err = s.save(ctx, tx, loan, types.RequestStatusApproved)
		return err
	})
	if err != nil {
		return out, alloc, err
	}
	if out.Status == types.RequestStatusRepaid {
		s.metrics.LoanDecision(string(types.RequestStatusRepaid))
	}
	s.log.Info("loan repayment", zap.String("loan_id", id), zap.String("user_id", userID), zap.String("to_interest", alloc.ToInterest.String()), zap.String("to_principal", alloc.ToPrincipal.String()), zap.String("status", string(out.Status)))
	s.events.Notify(events.Event{Type: events.TypeLoan, UserID: out.UserID, Data: out})
	return out, alloc, nil
}

func (s *Service) accrueInto(loan *model.Loan, now time.Time) {
	since := loan.InterestAccruedAt
	if since == nil {
		since = loan.ApprovedAt
	}
	if since == nil {
		loan.InterestAccruedAt = &now
		return
	}
	interest := Accrue(loan.Outstanding, loan.DailyRate, now.Sub(*since))
	if interest.IsPositive() {
		loan.AccruedInterest = loan.AccruedInterest.Add(interest)
	}
	loan.InterestAccruedAt = &now
}

// AccrueInterest brings every active loan's interest up to now. Loans are
// processed one per transaction so a failure only skips that loan.
func (s *Service) AccrueInterest(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, "select id from loans where status = 'approved'")
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	updated := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
			loan, err := s.lock(ctx, tx, id)
			if err != nil {
				return err
			}
			if loan.Status != types.RequestStatusApproved {
				return nil
			}
			s.accrueInto(&loan, s.now().UTC())
			_, err = s.save(ctx, tx, loan, types.RequestStatusApproved)
			return err
		})
		if err != nil {
			s.log.Error("accrue loan interest", zap.String("loan_id", id), zap.Error(err))
			continue
		}
		updated++
	}
	return updated, nil
}

type Filter struct {
	UserID string
	Status types.RequestStatus
	Limit  int
}

func (s *Service) List(ctx context.Context, f Filter) ([]model.Loan, error) {
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
	q := "select " + loanColumns + " from loans"
	if len(conds) > 0 {
		q += " where " + strings.Join(conds, " and ")
	}
	rows, err := s.pool.Query(ctx, q+fmt.Sprintf(" order by created_at desc limit %d", limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type Totals struct {
	Outstanding decimal.Decimal `json:"outstanding"`
	Active      int             `json:"active"`
	Pending     int             `json:"pending"`
}

// Totals aggregates one user's loans, or everyone's when userID is empty.
func (s *Service) Totals(ctx context.Context, userID string) (Totals, error) {
	var t Totals
	err := s.pool.QueryRow(ctx, `
		select
			coalesce(sum(outstanding_principal + accrued_interest) filter (where status = 'approved'), 0),
			count(*) filter (where status = 'approved'),
			count(*) filter (where status = 'pending')
		from loans
		where ($1 = '' or user_id::text = $1)
	`, userID).Scan(&t.Outstanding, &t.Active, &t.Pending)
	return t, err
}

const loanColumns = "id, user_id, principal, outstanding_principal, accrued_interest, daily_rate, term_days, purpose, status, review_note, reviewed_by, approved_at, due_at, interest_accrued_at, created_at"

func scanLoan(row pgx.Row) (model.Loan, error) {
	var l model.Loan
	var status string
	err := row.Scan(&l.ID, &l.UserID, &l.Principal, &l.Outstanding, &l.AccruedInterest, &l.DailyRate, &l.TermDays, &l.Purpose, &status, &l.ReviewNote, &l.ReviewedBy, &l.ApprovedAt, &l.DueAt, &l.InterestAccruedAt, &l.CreatedAt)
	l.Status = types.RequestStatus(status)
	return l, err
}
