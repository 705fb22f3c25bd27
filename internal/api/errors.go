package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jeobran69367/Mspr4-produits/internal/domain"
)

type errorBody struct {
	Detail string            `json:"detail"`
	Errors validation.Errors `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeError maps validation and business errors to 400, missing entities
// to 404 and anything else to 500 without leaking the cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "validation failed", Errors: fieldErrs})
		return
	}

	var de *domain.Error
	switch {
	case domain.IsNotFound(err) && errors.As(err, &de):
		writeDetail(w, http.StatusNotFound, de.Message)
	case domain.IsValidation(err) && errors.As(err, &de):
		writeDetail(w, http.StatusBadRequest, de.Message)
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal server error")
	}
}
