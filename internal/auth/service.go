package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/db"
	"tradesim/internal/ledger"
	"tradesim/internal/model"
	"tradesim/internal/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLen = 8

var (
	ErrInvalidCredentials = apperr.Unauthorized("invalid credentials")
	ErrEmailTaken         = apperr.Conflict("email already registered")
	ErrBlocked            = apperr.Forbidden("account is blocked")
	ErrInvalidToken       = apperr.Unauthorized("invalid token")
	ErrUserNotFound       = apperr.NotFound("user not found")
)

type Service struct {
	pool   *pgxpool.Pool
	ledger *ledger.Service
	log    *zap.Logger
	issuer string
	secret []byte
	ttl    time.Duration
}

func NewService(pool *pgxpool.Pool, ledgerSvc *ledger.Service, log *zap.Logger, issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{pool: pool, ledger: ledgerSvc, log: log, issuer: issuer, secret: secret, ttl: ttl}
}

func (s *Service) TTL() time.Duration { return s.ttl }

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("invalid email")
	}
	return email, nil
}

func validateRegistration(name, email, password string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", apperr.Validation("name is required")
	}
	if len(name) > 100 {
		return "", "", apperr.Validation("name is too long")
	}
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", "", err
	}
	if len(password) < MinPasswordLen {
		return "", "", apperr.Validation("password must be at least 8 characters")
	}
	return name, email, nil
}

// Register creates the user, its credentials and its ledger accounts in one
// transaction.
func (s *Service) Register(ctx context.Context, name, email, password string) (string, error) {
	name, email, err := validateRegistration(name, email, password)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	var userID string
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, "insert into users (name, email) values ($1, $2) returning id", name, email).Scan(&userID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "insert into user_credentials (user_id, password_hash) values ($1, $2)", userID, string(hash)); err != nil {
			return err
		}
		if _, err := s.ledger.EnsureAccount(ctx, tx, userID, types.AccountKindAvailable); err != nil {
			return err
		}
		_, err = s.ledger.EnsureAccount(ctx, tx, userID, types.AccountKindReserved)
		return err
	})
	if db.UniqueViolation(err) {
		return "", ErrEmailTaken
	}
	if err != nil {
		return "", err
	}
	s.log.Info("user registered", zap.String("user_id", userID))
	return userID, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var userID, hash string
	var blocked bool
	err := s.pool.QueryRow(ctx, `
		select u.id, c.password_hash, u.blocked
		from users u join user_credentials c on c.user_id = u.id
		where u.email = $1
	`, email).Scan(&userID, &hash, &blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	if blocked {
		return "", ErrBlocked
	}
	return s.signToken(userID, time.Now().UTC())
}

func (s *Service) signToken(userID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Issuer != s.issuer {
		return "", ErrInvalidToken
	}
	// Admin tokens share the signing key. User tokens carry no audience.
	if len(claims.Audience) > 0 {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, "select id, name, email, blocked, created_at from users where id = $1", userID).
		Scan(&u.ID, &u.Name, &u.Email, &u.Blocked, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}

// Active reports whether the user exists and is not blocked. Tokens issued
// before a block are refused through this check.
func (s *Service) Active(ctx context.Context, userID string) error {
	var blocked bool
	err := s.pool.QueryRow(ctx, "select blocked from users where id = $1", userID).Scan(&blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}
	return nil
}
