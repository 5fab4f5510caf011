package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNonPositiveAmount   = apperr.Validation("amount must be positive")
	ErrInsufficientBalance = apperr.Conflict("insufficient balance")
)

// Service is a double-entry ledger. Every movement writes a debit and a
// credit that sum to zero; balances are the sum of an account's entries.
// All writes happen inside the caller's transaction.
type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Service) EnsureAccount(ctx context.Context, tx pgx.Tx, userID string, kind types.AccountKind) (string, error) {
	var id string
	err := tx.QueryRow(ctx, "select id from accounts where owner_type = 'user' and owner_user_id = $1 and kind = $2", userID, string(kind)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = tx.QueryRow(ctx, "insert into accounts (owner_type, owner_user_id, kind) values ('user', $1, $2) on conflict do nothing returning id", userID, string(kind)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, "select id from accounts where owner_type = 'user' and owner_user_id = $1 and kind = $2", userID, string(kind)).Scan(&id)
	}
	return id, err
}

// EnsureSystemAccount returns the house account that funds credits and
// absorbs debits.
func (s *Service) EnsureSystemAccount(ctx context.Context, tx pgx.Tx) (string, error) {
	var id string
	err := tx.QueryRow(ctx, "select id from accounts where owner_type = 'system' and kind = $1", string(types.AccountKindAvailable)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = tx.QueryRow(ctx, "insert into accounts (owner_type, owner_user_id, kind) values ('system', null, $1) on conflict do nothing returning id", string(types.AccountKindAvailable)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, "select id from accounts where owner_type = 'system' and kind = $1", string(types.AccountKindAvailable)).Scan(&id)
	}
	return id, err
}

func (s *Service) GetBalance(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.QueryRow(ctx, "select coalesce(sum(amount), 0) from ledger_entries where account_id = $1", accountID).Scan(&sum)
	return sum, err
}

type Balances struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Total     decimal.Decimal `json:"total"`
}

func (s *Service) Balances(ctx context.Context, userID string) (Balances, error) {
	rows, err := s.pool.Query(ctx, "select a.kind, coalesce(sum(le.amount), 0) from accounts a left join ledger_entries le on le.account_id = a.id where a.owner_type = 'user' and a.owner_user_id = $1 group by a.kind", userID)
	if err != nil {
		return Balances{}, err
	}
	defer rows.Close()
	var b Balances
	for rows.Next() {
		var kind string
		var amount decimal.Decimal
		if err := rows.Scan(&kind, &amount); err != nil {
			return Balances{}, err
		}
		switch types.AccountKind(kind) {
		case types.AccountKindAvailable:
			b.Available = amount
		case types.AccountKindReserved:
			b.Reserved = amount
		}
	}
	b.Total = b.Available.Add(b.Reserved)
	return b, rows.Err()
}

// Move transfers between two of a user's own accounts or between a user and
// the house, refusing to overdraw a user account.
func (s *Service) Move(ctx context.Context, tx pgx.Tx, userID string, from, to Endpoint, amount decimal.Decimal, entryType types.LedgerEntryType, ref string) error {
	amount = amount.Round(MoneyScale)
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	fromID, err := s.resolve(ctx, tx, userID, from)
	if err != nil {
		return err
	}
	toID, err := s.resolve(ctx, tx, userID, to)
	if err != nil {
		return err
	}
	if from != EndpointSystem {
		bal, err := s.GetBalance(ctx, tx, fromID)
		if err != nil {
			return err
		}
		if bal.LessThan(amount) {
			return ErrInsufficientBalance
		}
	}
	_, err = s.Transfer(ctx, tx, fromID, toID, amount, entryType, ref)
	return err
}

type Endpoint int

const (
	EndpointSystem Endpoint = iota
	EndpointAvailable
	EndpointReserved
)

func (s *Service) resolve(ctx context.Context, tx pgx.Tx, userID string, e Endpoint) (string, error) {
	switch e {
	case EndpointAvailable:
		return s.EnsureAccount(ctx, tx, userID, types.AccountKindAvailable)
	case EndpointReserved:
		return s.EnsureAccount(ctx, tx, userID, types.AccountKindReserved)
	default:
		return s.EnsureSystemAccount(ctx, tx)
	}
}

// MoneyScale matches the numeric scale of ledger columns.
const MoneyScale = 8

func (s *Service) Transfer(ctx context.Context, tx pgx.Tx, fromAccountID, toAccountID string, amount decimal.Decimal, entryType types.LedgerEntryType, ref string) (string, error) {
	amount = amount.Round(MoneyScale)
	if !amount.IsPositive() {
		return "", ErrNonPositiveAmount
	}
	var txID string
	err := tx.QueryRow(ctx, "insert into ledger_txs (ref, created_at) values ($1, $2) returning id", ref, time.Now().UTC()).Scan(&txID)
	if err != nil {
		return "", err
	}
	if _, err := s.appendEntry(ctx, tx, txID, fromAccountID, amount.Neg(), entryType); err != nil {
		return "", err
	}
	if _, err := s.appendEntry(ctx, tx, txID, toAccountID, amount, entryType); err != nil {
		return "", err
	}
	return txID, nil
}

// appendEntry serializes writers on an advisory lock so the hash chain has a
// single linear history.
func (s *Service) appendEntry(ctx context.Context, tx pgx.Tx, txID, accountID string, amount decimal.Decimal, entryType types.LedgerEntryType) (string, error) {
	_, err := tx.Exec(ctx, "select pg_advisory_xact_lock(1)")
	if err != nil {
		return "", err
	}
	var prevHash *string
	err = tx.QueryRow(ctx, "select encode(hash, 'hex') from ledger_entries order by sequence desc limit 1").Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	var entryID string
	var seq int64
	err = tx.QueryRow(ctx, "insert into ledger_entries (tx_id, account_id, amount, entry_type, prev_hash, created_at) values ($1, $2, $3, $4, decode(nullif($5,''), 'hex'), $6) returning id, sequence", txID, accountID, amount, string(entryType), nullable(prevHash), time.Now().UTC()).Scan(&entryID, &seq)
	if err != nil {
		return "", err
	}
	hash := computeHash(entryID, txID, accountID, amount, entryType, seq, prevHash)
	_, err = tx.Exec(ctx, "update ledger_entries set hash = decode($1, 'hex') where id = $2", hash, entryID)
	if err != nil {
		return "", err
	}
	return entryID, nil
}

func computeHash(entryID, txID, accountID string, amount decimal.Decimal, entryType types.LedgerEntryType, seq int64, prevHash *string) string {
	buf := entryID + "|" + txID + "|" + accountID + "|" + amount.String() + "|" + string(entryType) + "|" + strconv.FormatInt(seq, 10) + "|"
	if prevHash != nil {
		buf += *prevHash
	}
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

func nullable(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// VerifyChain recomputes every entry hash in sequence order and reports the
// first sequence number that does not match.
func (s *Service) VerifyChain(ctx context.Context) (int64, error) {
	rows, err := s.pool.Query(ctx, "select id, tx_id, account_id, amount, entry_type, sequence, encode(prev_hash, 'hex'), encode(hash, 'hex') from ledger_entries order by sequence")
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var prev *string
	for rows.Next() {
		var id, txID, accountID, entryType string
		var amount decimal.Decimal
		var seq int64
		var prevHash, hash *string
		if err := rows.Scan(&id, &txID, &accountID, &amount, &entryType, &seq, &prevHash, &hash); err != nil {
			return 0, err
		}
		if nullable(prevHash) != nullable(prev) || hash == nil || computeHash(id, txID, accountID, amount, types.LedgerEntryType(entryType), seq, prevHash) != *hash {
			return seq, nil
		}
		prev = hash
	}
	return 0, rows.Err()
}
