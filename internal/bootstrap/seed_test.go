package bootstrap

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/batch-messenger/internal/auth"
	"github.com/sungwon/batch-messenger/internal/storage"
)

type memUsers struct {
	users   map[string]storage.User
	creates int
	updates int
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]storage.User{}}
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (storage.User, error) {
	u, ok := m.users[email]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) CreateUser(_ context.Context, email, hash string) (storage.User, error) {
	if _, ok := m.users[email]; ok {
		return storage.User{}, storage.ErrConflict
	}
	m.creates++
	u := storage.User{ID: uuid.New(), Email: email, PasswordHash: hash}
	m.users[email] = u
	return u, nil
}

func (m *memUsers) UpdateUserPassword(_ context.Context, id uuid.UUID, hash string) error {
	for email, u := range m.users {
		if u.ID == id {
			u.PasswordHash = hash
			m.users[email] = u
			m.updates++
			return nil
		}
	}
	return storage.ErrNotFound
}

func TestSeedUser_CreatesOnce(t *testing.T) {
	users := newMemUsers()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := SeedUser(ctx, users, zerolog.Nop(), "admin@example.com", "secret-1"); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	if users.creates != 1 {
		t.Errorf("expected 1 create, got %d", users.creates)
	}
	if users.updates != 0 {
		t.Errorf("expected no password update, got %d", users.updates)
	}
	if err := auth.VerifyPassword(users.users["admin@example.com"].PasswordHash, "secret-1"); err != nil {
		t.Errorf("expected stored hash to match: %v", err)
	}
}

func TestSeedUser_UpdatesChangedPassword(t *testing.T) {
	users := newMemUsers()
	ctx := context.Background()

	if err := SeedUser(ctx, users, zerolog.Nop(), "admin@example.com", "old"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := SeedUser(ctx, users, zerolog.Nop(), "admin@example.com", "new"); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	if users.updates != 1 {
		t.Errorf("expected 1 password update, got %d", users.updates)
	}
	if err := auth.VerifyPassword(users.users["admin@example.com"].PasswordHash, "new"); err != nil {
		t.Errorf("expected new password to verify: %v", err)
	}
}

func TestSeedUser_NoCredentials(t *testing.T) {
	users := newMemUsers()
	if err := SeedUser(context.Background(), users, zerolog.Nop(), "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if users.creates != 0 {
		t.Errorf("expected nothing created, got %d", users.creates)
	}
}
