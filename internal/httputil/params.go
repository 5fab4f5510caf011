package httputil

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tradesim/internal/apperr"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var ErrInvalidID = apperr.Validation("invalid id")

// PathID reads a uuid route parameter in canonical form.
func PathID(r *http.Request, name string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, name)))
	if err != nil {
		return "", ErrInvalidID
	}
	return id.String(), nil
}

func QueryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

type reviewInput struct {
	Note string `json:"note"`
}

// ReadReview reads the target id from the path and an optional review note
// from the body. On failure the response has already been written.
func ReadReview(w http.ResponseWriter, r *http.Request) (id, note string, ok bool) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, err)
		return "", "", false
	}
	var in reviewInput
	if r.ContentLength != 0 {
		if err := ReadJSON(r, &in); err != nil && !errors.Is(err, ErrEmptyBody) {
			WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return "", "", false
		}
	}
	note = strings.TrimSpace(in.Note)
	if len(note) > 500 {
		note = note[:500]
	}
	return id, note, true
}
