package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/store"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine and store errors onto the HTTP taxonomy: malformed
// requests 400, unknown resources 404, conflicts 409, well-formed requests
// for unavailable slots 422.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var vErr *engine.ValidationError
	if errors.As(err, &vErr) {
		http.Error(w, vErr.Error(), http.StatusBadRequest)
		return
	}
	var uErr *engine.UnavailableError
	if errors.As(err, &uErr) {
		http.Error(w, uErr.Error(), http.StatusUnprocessableEntity)
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	default:
		if logger != nil {
			logger.Error("request failed", "err", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
