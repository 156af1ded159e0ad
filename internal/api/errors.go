package api

import (
	"errors"
	"net/http"

	"github.com/sungwon/batch-messenger/internal/dispatch"
	"github.com/sungwon/batch-messenger/internal/logger"
	"github.com/sungwon/batch-messenger/internal/media"
	"github.com/sungwon/batch-messenger/internal/status"
)

// respondServiceError maps a domain error to its HTTP status. Unknown
// errors are logged and answered with 500 carrying only the error text.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidBatchRequest),
		errors.Is(err, status.ErrInvalidQuery):
		respondErrorCause(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, dispatch.ErrSessionNotFound),
		errors.Is(err, dispatch.ErrSessionNotReady):
		// The batch endpoint reports every session problem as 400.
		respondErrorCause(w, http.StatusBadRequest, "session not ready", err)
	case errors.Is(err, media.ErrMediaProcessing):
		respondErrorCause(w, http.StatusBadRequest, "media processing failed", err)
	case errors.Is(err, status.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, status.ErrNotFound),
		errors.Is(err, dispatch.ErrBatchNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		respondErrorCause(w, http.StatusInternalServerError, "internal server error", err)
	}
}
