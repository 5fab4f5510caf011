package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/httputil"

	"github.com/golang-jwt/jwt/v5"
)

const adminAudience = "admin"

var ErrInvalidCredentials = apperr.Unauthorized("invalid credentials")

// Claims is the admin session token body.
type Claims struct {
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Rights   []string `json:"rights"`
	jwt.RegisteredClaims
}

// Principal is the authenticated admin attached to a request context.
type Principal struct {
	ID       int64
	Username string
	Role     string
	Rights   map[string]bool
}

func (p Principal) Has(right string) bool {
	return p.Role == RoleOwner || p.Rights[right]
}

func newPrincipal(id int64, username, role string, rights []string) Principal {
	p := Principal{ID: id, Username: username, Role: role, Rights: map[string]bool{}}
	for _, r := range rights {
		p.Rights[r] = true
	}
	if role == RoleOwner {
		for _, r := range AllRights {
			p.Rights[r] = true
		}
	}
	return p
}

// Directory looks up panel admins by id. *Store implements it.
type Directory interface {
	Get(ctx context.Context, id int64) (PanelAdmin, error)
}

type Tokens struct {
	issuer string
	secret []byte
	ttl    time.Duration
}

func NewTokens(issuer string, secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{issuer: issuer, secret: secret, ttl: ttl}
}

func (t *Tokens) Issue(a PanelAdmin, now time.Time) (string, time.Time, error) {
	exp := now.Add(t.ttl)
	rights := a.Rights
	if a.Role == RoleOwner {
		rights = append([]string{}, AllRights...)
	}
	claims := Claims{
		Username: a.Username,
		Role:     a.Role,
		Rights:   rights,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(a.ID, 10),
			Audience:  jwt.ClaimStrings{adminAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	return s, exp, err
}

func (t *Tokens) Parse(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithAudience(adminAudience))
	if err != nil || !parsed.Valid {
		return Principal{}, apperr.Unauthorized("invalid token")
	}
	if claims.Role != RoleOwner && claims.Role != RoleAdmin {
		return Principal{}, apperr.Forbidden("admin access required")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, apperr.Unauthorized("invalid token")
	}
	return newPrincipal(id, claims.Username, claims.Role, claims.Rights), nil
}

// Authorize parses the token and reloads the admin it names. Role and rights
// come from the stored row, so deleting an admin or cutting its rights takes
// effect on the next request.
func (t *Tokens) Authorize(ctx context.Context, admins Directory, token string) (Principal, error) {
	claimed, err := t.Parse(token)
	if err != nil {
		return Principal{}, err
	}
	a, err := admins.Get(ctx, claimed.ID)
	if errors.Is(err, ErrAdminNotFound) {
		return Principal{}, apperr.Unauthorized("admin account no longer exists")
	}
	if err != nil {
		return Principal{}, err
	}
	return newPrincipal(a.ID, a.Username, a.Role, a.Rights), nil
}

type contextKey string

const principalKey contextKey = "admin_principal"

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(r *http.Request) (Principal, bool) {
	p, ok := r.Context().Value(principalKey).(Principal)
	return p, ok
}

// Name returns the reviewing admin's username for audit fields.
func Name(r *http.Request) string {
	p, _ := PrincipalFrom(r)
	return p.Username
}

// BearerOrQuery extracts a token from the Authorization header, falling back
// to the token query parameter for websocket clients.
func BearerOrQuery(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// AdminAuthMiddleware validates the admin JWT against the admin directory.
func AdminAuthMiddleware(tokens *Tokens, admins Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerOrQuery(r)
			if raw == "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "missing authorization"})
				return
			}
			p, err := tokens.Authorize(r.Context(), admins, raw)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func requireOwner(w http.ResponseWriter, r *http.Request) bool {
	p, _ := PrincipalFrom(r)
	if p.Role != RoleOwner {
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "owner access required"})
		return false
	}
	return true
}

func RequireRight(right string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r)
			if !ok || !p.Has(right) {
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: "insufficient rights"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
