package loans

import (
	"net/http"
	"strings"

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

type loanRequestInput struct {
	Amount   string `json:"amount"`
	TermDays int    `json:"term_days"`
	Purpose  string `json:"purpose"`
}

type repayInput struct {
	Amount string `json:"amount"`
}

type repayResponse struct {
	Loan        any             `json:"loan"`
	ToInterest  decimal.Decimal `json:"to_interest"`
	ToPrincipal decimal.Decimal `json:"to_principal"`
}

func (h *Handler) Request(w http.ResponseWriter, r *http.Request, userID string) {
	var req loanRequestInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	loan, err := h.svc.Request(r.Context(), userID, amount, req.TermDays, req.Purpose)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) Repay(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req repayInput
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	loan, alloc, err := h.svc.Repay(r.Context(), userID, id, amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, repayResponse{Loan: loan, ToInterest: alloc.ToInterest, ToPrincipal: alloc.ToPrincipal})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	h.list(w, r, userID)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, userID string) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	status := types.RequestStatus(raw)
	if raw != "" && !status.Valid() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid status"})
		return
	}
	items, err := h.svc.List(r.Context(), Filter{UserID: userID, Status: status, Limit: httputil.QueryLimit(r, 100, 500)})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

// Decide returns an admin handler approving or rejecting a pending loan.
func (h *Handler) Decide(approve bool, adminName func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, note, ok := httputil.ReadReview(w, r)
		if !ok {
			return
		}
		fn := h.svc.Reject
		if approve {
			fn = h.svc.Approve
		}
		loan, err := fn(r.Context(), id, adminName(r), note)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, loan)
	}
}
