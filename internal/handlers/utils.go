package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/types"
)

type contextKey string

const contextClaimsKey contextKey = "claims"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func withClaims(ctx context.Context, claims types.Claims) context.Context {
	return context.WithValue(ctx, contextClaimsKey, claims)
}

func claimsFromContext(ctx context.Context) (types.Claims, bool) {
	claims, ok := ctx.Value(contextClaimsKey).(types.Claims)
	return claims, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service and store errors to a status. Anything
// unrecognized is logged and reported with the generic fallback message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrNotAuthor),
		errors.Is(err, store.ErrDuplicateUsername):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "invalid token")
	default:
		log.Error(r.Context(), fallback, "error", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
