package orders

import (
	"context"
	"net/http"
	"strings"

	"tradesim/internal/httputil"
	"tradesim/internal/model"
	"tradesim/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type placeOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Qty    string `json:"qty"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request, userID string) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	side := types.OrderSide(strings.ToLower(strings.TrimSpace(req.Side)))
	if !side.Valid() {
		httputil.WriteError(w, ErrInvalidSide)
		return
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(req.Qty))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid qty"})
		return
	}
	o, err := h.svc.PlaceOrder(r.Context(), PlaceOrderRequest{UserID: userID, Symbol: symbol, Side: side, Qty: qty})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

func parseStatuses(r *http.Request) ([]types.OrderStatus, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, true
	}
	var out []types.OrderStatus
	for _, part := range strings.Split(raw, ",") {
		st := types.OrderStatus(strings.ToLower(strings.TrimSpace(part)))
		if !st.Valid() {
			return nil, false
		}
		out = append(out, st)
	}
	return out, true
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	h.list(w, r, userID)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, userID string) {
	statuses, ok := parseStatuses(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid status"})
		return
	}
	items, err := h.svc.List(r.Context(), Filter{
		UserID:   userID,
		Statuses: statuses,
		Symbol:   r.URL.Query().Get("symbol"),
		Limit:    httputil.QueryLimit(r, 100, 500),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID string) {
	h.ownerAction(w, r, userID, h.svc.Cancel)
}

func (h *Handler) RequestClose(w http.ResponseWriter, r *http.Request, userID string) {
	h.ownerAction(w, r, userID, h.svc.RequestClose)
}

func (h *Handler) ownerAction(w http.ResponseWriter, r *http.Request, userID string, fn func(ctx context.Context, userID, id string) (model.Order, error)) {
	id, err := httputil.PathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := fn(r.Context(), userID, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) ApproveOpen(w http.ResponseWriter, r *http.Request)  { h.review(w, r, h.svc.ApproveOpen) }
func (h *Handler) RejectOpen(w http.ResponseWriter, r *http.Request)   { h.review(w, r, h.svc.RejectOpen) }
func (h *Handler) ApproveClose(w http.ResponseWriter, r *http.Request) { h.review(w, r, h.svc.ApproveClose) }
func (h *Handler) RejectClose(w http.ResponseWriter, r *http.Request)  { h.review(w, r, h.svc.RejectClose) }

func (h *Handler) review(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, note string) (model.Order, error)) {
	id, note, ok := httputil.ReadReview(w, r)
	if !ok {
		return
	}
	o, err := fn(r.Context(), id, note)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}
