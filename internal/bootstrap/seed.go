// Package bootstrap provides startup-time initialization routines
// such as seeding the initial login account.
package bootstrap

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/batch-messenger/internal/auth"
	"github.com/sungwon/batch-messenger/internal/storage"
)

// UserStore is the account storage used by SeedUser.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (storage.User, error)
	CreateUser(ctx context.Context, email, passwordHash string) (storage.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// SeedUser ensures a login account for email exists with password.
// It is idempotent and safe on every startup. An existing account whose
// password differs gets the configured one. Empty credentials skip seeding.
func SeedUser(ctx context.Context, users UserStore, log zerolog.Logger, email, password string) error {
	if email == "" || password == "" {
		log.Debug().Msg("no seed credentials configured, skipping")
		return nil
	}

	user, err := users.GetUserByEmail(ctx, email)
	if err == nil {
		if auth.VerifyPassword(user.PasswordHash, password) == nil {
			log.Info().Str("email", email).Msg("seed user already exists, skipping")
			return nil
		}
		return updatePassword(ctx, users, log, user, password)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user, err = users.CreateUser(ctx, email, hash)
	if errors.Is(err, storage.ErrConflict) {
		// another instance seeded it first
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("email", email).
		Msg("seed user created")
	return nil
}

func updatePassword(ctx context.Context, users UserStore, log zerolog.Logger, user storage.User, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := users.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return err
	}

	log.Info().Str("email", user.Email).Msg("seed user password updated from configuration")
	return nil
}
