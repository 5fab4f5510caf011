package marketdata

import (
	"net/http"
	"strings"

	"tradesim/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	store  *Store
	poller *Poller
}

func NewHandler(store *Store, poller *Poller) *Handler {
	return &Handler{store: store, poller: poller}
}

func (h *Handler) Instruments(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context(), true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.poller.All(r.Context()))
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	inst, err := h.store.Get(r.Context(), symbol)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !inst.Active {
		httputil.WriteError(w, ErrUnknownSymbol)
		return
	}
	q, err := h.poller.Current(r.Context(), symbol)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

// AdminInstruments lists every instrument including disabled ones.
func (h *Handler) AdminInstruments(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context(), false)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) AdminUpdateInstrument(w http.ResponseWriter, r *http.Request) {
	var req InstrumentUpdate
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	inst, err := h.store.Update(r.Context(), chi.URLParam(r, "symbol"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if items, err := h.store.List(r.Context(), true); err == nil {
		symbols := make([]string, 0, len(items))
		for _, it := range items {
			symbols = append(symbols, it.Symbol)
		}
		h.poller.SetSymbols(symbols)
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}
