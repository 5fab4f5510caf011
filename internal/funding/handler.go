package funding

import (
	"net/http"
	"strings"

	"tradesim/internal/depositmethods"
	"tradesim/internal/httputil"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type depositRequestInput struct {
	Amount    string `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

type withdrawalRequestInput struct {
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	PayoutDetails string `json:"payout_details"`
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, depositmethods.All())
}

func (h *Handler) RequestDeposit(w http.ResponseWriter, r *http.Request, userID string) {
	var req depositRequestInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	dep, err := h.svc.RequestDeposit(r.Context(), userID, amount, req.Method, req.Reference)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dep)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request, userID string) {
	var req withdrawalRequestInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	wr, err := h.svc.RequestWithdrawal(r.Context(), userID, amount, req.Method, req.PayoutDetails)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wr)
}

func statusFilter(r *http.Request) (types.RequestStatus, bool) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if raw == "" {
		return "", true
	}
	st := types.RequestStatus(raw)
	return st, st.Valid()
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request, userID string) {
	h.listDeposits(w, r, userID)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request, userID string) {
	h.listWithdrawals(w, r, userID, false)
}

func (h *Handler) AdminListDeposits(w http.ResponseWriter, r *http.Request) {
	h.listDeposits(w, r, "")
}

func (h *Handler) AdminListWithdrawals(w http.ResponseWriter, r *http.Request) {
	h.listWithdrawals(w, r, "", true)
}

func (h *Handler) listDeposits(w http.ResponseWriter, r *http.Request, userID string) {
	status, ok := statusFilter(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid status"})
		return
	}
	items, err := h.svc.ListDeposits(r.Context(), Filter{UserID: userID, Status: status, Limit: httputil.QueryLimit(r, 100, 500)})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) listWithdrawals(w http.ResponseWriter, r *http.Request, userID string, reveal bool) {
	status, ok := statusFilter(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid status"})
		return
	}
	items, err := h.svc.ListWithdrawals(r.Context(), Filter{UserID: userID, Status: status, Limit: httputil.QueryLimit(r, 100, 500)}, reveal)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

// DecideDeposit returns an admin handler; adminName resolves the reviewer
// from the request.
func (h *Handler) DecideDeposit(approve bool, adminName func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, note, ok := httputil.ReadReview(w, r)
		if !ok {
			return
		}
		d := Decision{Approve: approve, Admin: adminName(r), Note: note}
		dep, err := h.svc.DecideDeposit(r.Context(), id, d)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, dep)
	}
}

func (h *Handler) DecideWithdrawal(approve bool, adminName func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, note, ok := httputil.ReadReview(w, r)
		if !ok {
			return
		}
		d := Decision{Approve: approve, Admin: adminName(r), Note: note}
		wr, err := h.svc.DecideWithdrawal(r.Context(), id, d)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, wr)
	}
}
