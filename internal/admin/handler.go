package admin

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradesim/internal/dashboard"
	"tradesim/internal/httputil"
	"tradesim/internal/model"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the admin console endpoints that are not owned by a domain
// package: login, users, overview and panel admin management.
type Handler struct {
	store     *Store
	tokens    *Tokens
	dashboard *dashboard.Service
	log       *zap.Logger
}

func NewHandler(store *Store, tokens *Tokens, dash *dashboard.Service, log *zap.Logger) *Handler {
	return &Handler{store: store, tokens: tokens, dashboard: dash, log: log}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Rights    []string  `json:"rights"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	a, err := h.store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.log.Warn("admin login failed", zap.String("username", req.Username))
		httputil.WriteError(w, err)
		return
	}
	token, exp, err := h.tokens.Issue(a, time.Now().UTC())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rights := a.Rights
	if a.Role == RoleOwner {
		rights = AllRights
	}
	h.log.Info("admin login", zap.String("username", a.Username), zap.String("role", a.Role))
	httputil.WriteJSON(w, http.StatusOK, loginResponse{Token: token, Username: a.Username, Role: a.Role, Rights: rights, ExpiresAt: exp})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r)
	rights := []string{}
	for _, right := range AllRights {
		if p.Has(right) {
			rights = append(rights, right)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":       p.ID,
		"username": p.Username,
		"role":     p.Role,
		"rights":   rights,
	})
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.dashboard.Platform(r.Context(), h.store)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ov)
}

func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	f := UserFilter{Query: r.URL.Query().Get("q"), Limit: httputil.QueryLimit(r, 100, 500)}
	if raw := r.URL.Query().Get("blocked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid blocked filter"})
			return
		}
		f.Blocked = &b
	}
	users, err := h.store.ListUsers(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

type userDetail struct {
	model.User
	Summary dashboard.Summary `json:"summary"`
}

func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sum, err := h.dashboard.ForUser(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, userDetail{User: u, Summary: sum})
}

func (h *Handler) Block(w http.ResponseWriter, r *http.Request)   { h.setBlocked(w, r, true) }
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) { h.setBlocked(w, r, false) }

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.store.SetBlocked(r.Context(), id, blocked)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("user block changed", zap.String("user_id", id), zap.Bool("blocked", blocked), zap.String("admin", Name(r)))
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) GetPanelAdmins(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	admins, err := h.store.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, admins)
}

type panelAdminInput struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Rights   []string `json:"rights"`
}

func (h *Handler) CreatePanelAdmin(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	var req panelAdminInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	a, err := h.store.Create(r.Context(), req.Username, req.Password, RoleAdmin, req.Rights)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("panel admin created", zap.String("username", a.Username), zap.Strings("rights", a.Rights))
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func panelAdminID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) UpdatePanelAdmin(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	id, ok := panelAdminID(r)
	if !ok {
		httputil.WriteError(w, httputil.ErrInvalidID)
		return
	}
	var req panelAdminInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	a, err := h.store.Update(r.Context(), id, req.Rights, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("panel admin updated", zap.Int64("id", id), zap.Strings("rights", a.Rights))
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) DeletePanelAdmin(w http.ResponseWriter, r *http.Request) {
	if !requireOwner(w, r) {
		return
	}
	id, ok := panelAdminID(r)
	if !ok {
		httputil.WriteError(w, httputil.ErrInvalidID)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("panel admin deleted", zap.Int64("id", id))
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
