package ledger

import (
	"net/http"

	"tradesim/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request, userID string) {
	balances, err := h.svc.Balances(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balances)
}

// VerifyChain is an admin audit endpoint over the entry hash chain.
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	broken, err := h.svc.VerifyChain(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if broken != 0 {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": false, "broken_sequence": broken})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
