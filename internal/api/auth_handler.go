package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/auth"
	"github.com/sungwon/batch-messenger/internal/logger"
	"github.com/sungwon/batch-messenger/internal/metrics"
	"github.com/sungwon/batch-messenger/internal/storage"
)

// UserStore looks up accounts for login.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (storage.User, error)
}

// TokenIssuer mints access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID uuid.UUID, email string) (string, time.Time, error)
}

// loginRequest is the JSON body for POST /api/v1/auth/login.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// LoginHandler handles POST /api/v1/auth/login.
// Authenticates by email and password and returns a JWT access token.
// Repeated failures for one email are locked out by limiter.
func LoginHandler(users UserStore, tokens TokenIssuer, limiter *auth.LoginLimiter, v *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if err := v.Struct(req); err != nil {
			respondValidationErrors(w, validationMessages(err))
			return
		}

		log := logger.FromContext(r.Context())

		if err := limiter.Check(r.Context(), req.Email); err != nil {
			if errors.Is(err, auth.ErrLoginLocked) {
				metrics.APIAuthFailuresTotal.WithLabelValues("locked").Inc()
				respondError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
				return
			}
			log.Warn().Err(err).Msg("login rate limit unavailable")
		}

		user, err := users.GetUserByEmail(r.Context(), req.Email)
		if err == nil {
			err = auth.VerifyPassword(user.PasswordHash, req.Password)
		}
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, auth.ErrPasswordMismatch) {
				respondServiceError(w, r, err)
				return
			}
			metrics.APIAuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
			if rerr := limiter.RecordFailure(r.Context(), req.Email); rerr != nil {
				log.Warn().Err(rerr).Msg("record failed login")
			}
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}

		if err := limiter.Clear(r.Context(), req.Email); err != nil {
			log.Warn().Err(err).Msg("clear login failures")
		}

		token, expiresAt, err := tokens.GenerateAccessToken(user.ID, user.Email)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}

		respondData(w, http.StatusOK, tokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   expiresAt,
		})
	}
}
