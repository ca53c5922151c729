package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"viola-joke/internal/service"
	"viola-joke/pkg/logger"
)

// apiError is the JSON error envelope every endpoint returns.
type apiError struct {
	Code    string
	Message string
	Status  int
}

func newError(code, message string, status int) apiError {
	return apiError{Code: code, Message: sanitize(message, 512), Status: status}
}

func writeError(ctx context.Context, w http.ResponseWriter, e apiError) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := middleware.GetReqID(ctx); id != "" {
		payload["request_id"] = sanitize(id, 80)
	}

	writeJSON(w, e.Status, payload)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Anything unrecognised is logged and reported as a generic 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(ctx, w, newError("invalid_request", vErr.Reason, http.StatusBadRequest))
	case errors.Is(err, service.ErrUnauthorized):
		writeError(ctx, w, newError("unauthorized", "Unauthorized", http.StatusUnauthorized))
	case errors.Is(err, service.ErrPaywall):
		writeError(ctx, w, newError("paywall", "Daily free joke limit reached. Go premium for unlimited jokes.", http.StatusPaymentRequired))
	case errors.Is(err, service.ErrNotFound):
		writeError(ctx, w, newError("not_found", "Not found", http.StatusNotFound))
	case errors.Is(err, service.ErrRateLimited):
		writeError(ctx, w, newError("rate_limited", "Too many submissions. Please try again later.", http.StatusTooManyRequests))
	default:
		logger.Error("Request failed",
			logger.String("request_id", middleware.GetReqID(ctx)),
			logger.Err(err),
		)
		writeError(ctx, w, newError("internal", "Internal server error", http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
