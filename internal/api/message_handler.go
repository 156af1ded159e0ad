package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/auth"
	"github.com/sungwon/batch-messenger/internal/dispatch"
	"github.com/sungwon/batch-messenger/internal/media"
	"github.com/sungwon/batch-messenger/internal/status"
	"github.com/sungwon/batch-messenger/internal/storage"
)

// BatchSubmitter accepts batches for sending.
type BatchSubmitter interface {
	Submit(ctx context.Context, userID uuid.UUID, req dispatch.Request, in media.Input) (dispatch.Accepted, error)
}

// MessageReader is the read side of message status.
type MessageReader interface {
	List(ctx context.Context, userID uuid.UUID, p status.ListParams) (*status.Page, error)
	Get(ctx context.Context, userID, messageID uuid.UUID) (storage.Message, error)
}

// ProgressReader returns the latest progress snapshot of a batch.
type ProgressReader interface {
	Latest(ctx context.Context, batchID uuid.UUID) (dispatch.BatchProgress, error)
}

// batchResponse is the answer to POST /api/v1/messages/batch.
type batchResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	BatchID    uuid.UUID   `json:"batchId"`
	MessageIDs []uuid.UUID `json:"messageIds"`
}

// SubmitBatchHandler handles POST /api/v1/messages/batch.
// Accepts multipart/form-data (numbers, content, mediaUrl, optional file
// field "media") or a JSON body, and returns as soon as the messages are
// persisted and handed to the session.
func SubmitBatchHandler(svc BatchSubmitter, v *validator.Validate, maxBytes int64) http.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		req, in, verrs, err := parseBatchRequest(r, v, maxBytes)
		if err != nil {
			respondErrorCause(w, http.StatusBadRequest, "invalid upload", err)
			return
		}
		if len(verrs) > 0 {
			respondValidationErrors(w, verrs)
			return
		}

		acc, err := svc.Submit(r.Context(), userID, req, in)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		respondJSON(w, http.StatusOK, batchResponse{
			Success:    true,
			Message:    "Messages queued for sending: " + strconv.Itoa(acc.Count),
			BatchID:    acc.BatchID,
			MessageIDs: acc.MessageIDs,
		})
	}
}

// ListMessagesHandler handles GET /api/v1/messages?page=&limit=&status=.
func ListMessagesHandler(svc MessageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		q := r.URL.Query()
		page, err := intParam(q.Get("page"))
		if err != nil {
			respondErrorCause(w, http.StatusBadRequest, "invalid page", err)
			return
		}
		limit, err := intParam(q.Get("limit"))
		if err != nil {
			respondErrorCause(w, http.StatusBadRequest, "invalid limit", err)
			return
		}

		res, err := svc.List(r.Context(), userID, status.ListParams{
			Page:   page,
			Limit:  limit,
			Status: q.Get("status"),
		})
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondData(w, http.StatusOK, res)
	}
}

// GetMessageHandler handles GET /api/v1/messages/{id}.
func GetMessageHandler(svc MessageReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Malformed ids cannot exist, so they are reported like unknown ones.
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}

		m, err := svc.Get(r.Context(), userID, id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondData(w, http.StatusOK, m)
	}
}

// BatchProgressHandler handles GET /api/v1/messages/batches/{batchId}/progress.
// Only batches of the caller's own session are visible.
func BatchProgressHandler(progress ProgressReader, sessions SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		batchID, err := uuid.Parse(chi.URLParam(r, "batchId"))
		if err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}

		client, err := sessions.GetClientByUserID(r.Context(), userID)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		bp, err := progress.Latest(r.Context(), batchID)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		if bp.ClientID != client.ID {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		respondData(w, http.StatusOK, bp)
	}
}

// intParam parses an optional integer query parameter; "" is 0.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
