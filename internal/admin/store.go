package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/db"
	"tradesim/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

const (
	RightFunding = "funding"
	RightOrders  = "orders"
	RightLoans   = "loans"
	RightUsers   = "users"
)

var AllRights = []string{RightFunding, RightOrders, RightLoans, RightUsers}

var (
	ErrAdminNotFound  = apperr.NotFound("admin not found")
	ErrUsernameTaken  = apperr.Conflict("username already exists")
	ErrUserNotFound   = apperr.NotFound("user not found")
	ErrOwnerProtected = apperr.Forbidden("the owner account cannot be changed here")
)

// PanelAdmin is a console operator. Owners implicitly hold every right.
type PanelAdmin struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Rights    []string  `json:"rights"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeRights dedups and validates a rights list, keeping AllRights order.
func NormalizeRights(in []string) ([]string, error) {
	want := map[string]bool{}
	for _, r := range in {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		known := false
		for _, k := range AllRights {
			if k == r {
				known = true
				break
			}
		}
		if !known {
			return nil, apperr.Validation(fmt.Sprintf("unknown right %q", r))
		}
		want[r] = true
	}
	out := []string{}
	for _, k := range AllRights {
		if want[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 64 {
		return "", apperr.Validation("username must be 3-64 characters")
	}
	if len(password) < 8 {
		return "", apperr.Validation("password must be at least 8 characters")
	}
	return username, nil
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const adminColumns = "id, username, role, rights, created_at, updated_at"

func scanAdmin(row pgx.Row) (PanelAdmin, error) {
	var a PanelAdmin
	err := row.Scan(&a.ID, &a.Username, &a.Role, &a.Rights, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ErrAdminNotFound
	}
	if a.Rights == nil {
		a.Rights = []string{}
	}
	return a, err
}

// Authenticate checks a username and password. Unknown users and bad
// passwords are indistinguishable to the caller.
func (s *Store) Authenticate(ctx context.Context, username, password string) (PanelAdmin, error) {
	var hash string
	var a PanelAdmin
	err := s.pool.QueryRow(ctx, "select "+adminColumns+", password_hash from admin_users where username = $1", strings.TrimSpace(username)).
		Scan(&a.ID, &a.Username, &a.Role, &a.Rights, &a.CreatedAt, &a.UpdatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ErrInvalidCredentials
	}
	if err != nil {
		return a, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return a, ErrInvalidCredentials
	}
	return a, nil
}

func (s *Store) Get(ctx context.Context, id int64) (PanelAdmin, error) {
	return scanAdmin(s.pool.QueryRow(ctx, "select "+adminColumns+" from admin_users where id = $1", id))
}

func (s *Store) List(ctx context.Context) ([]PanelAdmin, error) {
	rows, err := s.pool.Query(ctx, "select "+adminColumns+" from admin_users order by id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	admins := []PanelAdmin{}
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

func (s *Store) Create(ctx context.Context, username, password, role string, rights []string) (PanelAdmin, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return PanelAdmin{}, err
	}
	if role != RoleOwner && role != RoleAdmin {
		return PanelAdmin{}, apperr.Validation("role must be owner or admin")
	}
	if rights, err = NormalizeRights(rights); err != nil {
		return PanelAdmin{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return PanelAdmin{}, err
	}
	a, err := scanAdmin(s.pool.QueryRow(ctx, `
		insert into admin_users (username, password_hash, role, rights)
		values ($1, $2, $3, $4)
		returning `+adminColumns, username, string(hash), role, rights))
	if db.UniqueViolation(err) {
		return a, ErrUsernameTaken
	}
	return a, err
}

// Update replaces an admin's rights and, when password is non-empty, its
// password. Owners are managed only through the CLI.
func (s *Store) Update(ctx context.Context, id int64, rights []string, password string) (PanelAdmin, error) {
	rights, err := NormalizeRights(rights)
	if err != nil {
		return PanelAdmin{}, err
	}
	var hash *string
	if password != "" {
		if len(password) < 8 {
			return PanelAdmin{}, apperr.Validation("password must be at least 8 characters")
		}
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return PanelAdmin{}, err
		}
		h := string(b)
		hash = &h
	}
	a, err := scanAdmin(s.pool.QueryRow(ctx, `
		update admin_users
		set rights = $2, password_hash = coalesce($3, password_hash), updated_at = now()
		where id = $1 and role = 'admin'
		returning `+adminColumns, id, rights, hash))
	if errors.Is(err, ErrAdminNotFound) {
		return a, s.ownerOrMissing(ctx, id)
	}
	return a, err
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "delete from admin_users where id = $1 and role = 'admin'", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.ownerOrMissing(ctx, id)
	}
	return nil
}

func (s *Store) ownerOrMissing(ctx context.Context, id int64) error {
	var role string
	err := s.pool.QueryRow(ctx, "select role from admin_users where id = $1", id).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAdminNotFound
	}
	if err != nil {
		return err
	}
	return ErrOwnerProtected
}

// EnsureOwner creates the owner account on first start. An existing account
// with the same username is left untouched.
func (s *Store) EnsureOwner(ctx context.Context, username, password string) (bool, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		insert into admin_users (username, password_hash, role, rights)
		values ($1, $2, 'owner', $3)
		on conflict (username) do nothing
	`, username, string(hash), AllRights)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "select count(*) from users").Scan(&n)
	return n, err
}

type UserFilter struct {
	Query   string
	Blocked *bool
	Limit   int
}

func (s *Store) ListUsers(ctx context.Context, f UserFilter) ([]model.User, error) {
	var conds []string
	var args []any
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		conds = append(conds, fmt.Sprintf("(lower(email) like $%d or lower(name) like $%d)", len(args), len(args)))
	}
	if f.Blocked != nil {
		args = append(args, *f.Blocked)
		conds = append(conds, fmt.Sprintf("blocked = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := "select id, name, email, blocked, created_at from users"
	if len(conds) > 0 {
		q += " where " + strings.Join(conds, " and ")
	}
	rows, err := s.pool.Query(ctx, q+fmt.Sprintf(" order by created_at desc limit %d", limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Blocked, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, "select id, name, email, blocked, created_at from users where id = $1", id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Blocked, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}

func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `
		update users set blocked = $2 where id = $1
		returning id, name, email, blocked, created_at
	`, id, blocked).Scan(&u.ID, &u.Name, &u.Email, &u.Blocked, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}
