package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const clientColumns = `id, user_id, status, created_at, updated_at`

func scanClient(row interface{ Scan(dest ...any) error }) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const createClient = `INSERT INTO clients (user_id, status)
VALUES ($1, $2)
RETURNING ` + clientColumns

// CreateClient opens the user's session row in INITIALIZING state.
// A user that already owns a session yields ErrConflict.
func (s *Store) CreateClient(ctx context.Context, userID uuid.UUID) (Client, error) {
	c, err := scanClient(s.db.QueryRow(ctx, createClient, userID, ClientInitializing))
	if err != nil {
		if isUniqueViolation(err) {
			return Client{}, ErrConflict
		}
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

const getClientByUserID = `SELECT ` + clientColumns + ` FROM clients WHERE user_id = $1`

// GetClientByUserID returns the user's session or ErrNotFound.
func (s *Store) GetClientByUserID(ctx context.Context, userID uuid.UUID) (Client, error) {
	c, err := scanClient(s.db.QueryRow(ctx, getClientByUserID, userID))
	if err != nil {
		return Client{}, notFound(err)
	}
	return c, nil
}

const updateClientStatus = `UPDATE clients SET status = $2, updated_at = now() WHERE id = $1`

func (s *Store) UpdateClientStatus(ctx context.Context, id uuid.UUID, status ClientStatus) error {
	tag, err := s.db.Exec(ctx, updateClientStatus, id, status)
	if err != nil {
		return fmt.Errorf("update client status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const listClientsByStatus = `SELECT ` + clientColumns + ` FROM clients
WHERE status = ANY($1::text[])
ORDER BY created_at`

// ListClientsByStatus returns every session currently in one of statuses.
func (s *Store) ListClientsByStatus(ctx context.Context, statuses ...ClientStatus) ([]Client, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.db.Query(ctx, listClientsByStatus, names)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}
