package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/auth"
	"github.com/sungwon/batch-messenger/internal/session"
	"github.com/sungwon/batch-messenger/internal/storage"
)

// SessionStore persists messaging sessions.
type SessionStore interface {
	CreateClient(ctx context.Context, userID uuid.UUID) (storage.Client, error)
	GetClientByUserID(ctx context.Context, userID uuid.UUID) (storage.Client, error)
}

// SessionRuntimes drives live session runtimes.
type SessionRuntimes interface {
	Get(clientID uuid.UUID) (*session.Runtime, bool)
	Start(ctx context.Context, clientID uuid.UUID) (storage.ClientStatus, error)
	Stop(ctx context.Context, clientID uuid.UUID, status storage.ClientStatus) error
}

type sessionResponse struct {
	storage.Client
	Active bool `json:"active"`
	Busy   bool `json:"busy"`
}

func describeSession(c storage.Client, runtimes SessionRuntimes) sessionResponse {
	resp := sessionResponse{Client: c}
	if rt, ok := runtimes.Get(c.ID); ok {
		resp.Active = true
		resp.Busy = rt.Busy()
	}
	return resp
}

// CreateSessionHandler handles POST /api/v1/sessions.
// Creates the user's session on first call and (re)connects it. Each user
// has at most one session.
func CreateSessionHandler(store SessionStore, runtimes SessionRuntimes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		created := false
		client, err := store.GetClientByUserID(r.Context(), userID)
		if errors.Is(err, storage.ErrNotFound) {
			client, err = store.CreateClient(r.Context(), userID)
			created = err == nil
			if errors.Is(err, storage.ErrConflict) {
				// lost a race with a concurrent create
				client, err = store.GetClientByUserID(r.Context(), userID)
			}
		}
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		st, err := runtimes.Start(r.Context(), client.ID)
		if st != "" {
			client.Status = st
		}
		if errors.Is(err, session.ErrConnect) {
			respondJSON(w, http.StatusBadGateway, envelope{
				Message: "session could not connect",
				Error:   err.Error(),
				Data:    describeSession(client, runtimes),
			})
			return
		}
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		respondData(w, code, describeSession(client, runtimes))
	}
}

// GetSessionHandler handles GET /api/v1/sessions/me.
func GetSessionHandler(store SessionStore, runtimes SessionRuntimes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		client, err := store.GetClientByUserID(r.Context(), userID)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondData(w, http.StatusOK, describeSession(client, runtimes))
	}
}

// LogoutSessionHandler handles DELETE /api/v1/sessions/me.
// Tears down the runtime; messages it had not reached are failed.
func LogoutSessionHandler(store SessionStore, runtimes SessionRuntimes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r.Context())
		if userID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		client, err := store.GetClientByUserID(r.Context(), userID)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		if err := runtimes.Stop(r.Context(), client.ID, storage.ClientLogout); err != nil {
			respondServiceError(w, r, err)
			return
		}
		client.Status = storage.ClientLogout
		respondData(w, http.StatusOK, describeSession(client, runtimes))
	}
}
