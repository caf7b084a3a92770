package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	middleware "github.com/Guntherdrb30/TrendsTech.com-sub000/internal/api/middlewares"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "err", err)
	}
}

// writeError maps sentinel errors to status codes. Internal errors are logged
// and hidden from the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, core.ErrExtraction):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func tenantOrUnauthorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := middleware.TenantID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "tenant not found in context"})
	}
	return tenantID, ok
}
