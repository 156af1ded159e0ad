package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `m.id, m.client_id, m.batch_id, m.number, m.content, m.media_url,
m.status, m.error, m.external_id, m.created_at, m.updated_at, m.sent_at`

func scanMessage(row interface{ Scan(dest ...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.ClientID, &m.BatchID, &m.Number, &m.Content, &m.MediaURL,
		&m.Status, &m.Error, &m.ExternalID, &m.CreatedAt, &m.UpdatedAt, &m.SentAt,
	)
	return m, err
}

const insertMessage = `INSERT INTO messages (id, client_id, batch_id, number, content, media_url)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`

// CreateMessages persists one PENDING row per number inside a single
// transaction and returns them in the order of p.Numbers.
func (s *Store) CreateMessages(ctx context.Context, p CreateMessagesParams) ([]Message, error) {
	msgs := make([]Message, 0, len(p.Numbers))

	err := s.inTx(ctx, pgx.TxOptions{}, func(q querier) error {
		for _, number := range p.Numbers {
			m := Message{
				ID:       uuid.New(),
				ClientID: p.ClientID,
				BatchID:  p.BatchID,
				Number:   number,
				Content:  p.Content,
				MediaURL: p.MediaURL,
				Status:   MessagePending,
			}
			err := q.QueryRow(ctx, insertMessage,
				m.ID, m.ClientID, m.BatchID, m.Number, m.Content, m.MediaURL,
			).Scan(&m.CreatedAt, &m.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert message for %s: %w", number, err)
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create messages: %w", err)
	}
	return msgs, nil
}

const listMessages = `SELECT ` + messageColumns + ` FROM messages m
WHERE m.client_id = $1 AND ($2::text IS NULL OR m.status = $2)
ORDER BY m.created_at DESC, m.id DESC
LIMIT $3 OFFSET $4`

const countMessages = `SELECT count(*) FROM messages m
WHERE m.client_id = $1 AND ($2::text IS NULL OR m.status = $2)`

// ListMessagesForUser looks up the user's session and reads one page of its
// messages plus the matching total inside one read-only REPEATABLE READ
// transaction. A user without a session yields ErrNotFound.
func (s *Store) ListMessagesForUser(ctx context.Context, userID uuid.UUID, p ListMessagesParams) (*MessagePage, error) {
	var status *string
	if p.Status != nil {
		v := string(*p.Status)
		status = &v
	}

	page := &MessagePage{Messages: []Message{}}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

	err := s.inTx(ctx, opts, func(q querier) error {
		c, err := scanClient(q.QueryRow(ctx, getClientByUserID, userID))
		if err != nil {
			return notFound(err)
		}
		page.Client = c

		rows, err := q.Query(ctx, listMessages, c.ID, status, p.Limit, p.Offset)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan message: %w", err)
			}
			page.Messages = append(page.Messages, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if err := q.QueryRow(ctx, countMessages, c.ID, status).Scan(&page.Total); err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

const getMessageForUser = `SELECT ` + messageColumns + ` FROM messages m
JOIN clients c ON c.id = m.client_id
WHERE m.id = $1 AND c.user_id = $2`

// GetMessageForUser returns the message only when its session belongs to
// userID. Any other case, including another user's message, is ErrNotFound.
func (s *Store) GetMessageForUser(ctx context.Context, userID, messageID uuid.UUID) (Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, getMessageForUser, messageID, userID))
	if err != nil {
		return Message{}, notFound(err)
	}
	return m, nil
}

const markMessageSent = `UPDATE messages
SET status = 'SENT', external_id = $2, sent_at = $3, updated_at = now()
WHERE id = $1 AND status = 'PENDING'`

// MarkMessageSent moves a PENDING message to SENT. It reports false when the
// message had already reached a terminal state.
func (s *Store) MarkMessageSent(ctx context.Context, id uuid.UUID, externalID string, sentAt time.Time) (bool, error) {
	var ext *string
	if externalID != "" {
		ext = &externalID
	}
	tag, err := s.db.Exec(ctx, markMessageSent, id, ext, sentAt)
	if err != nil {
		return false, fmt.Errorf("mark message sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const markMessageFailed = `UPDATE messages
SET status = 'FAILED', error = $2, updated_at = now()
WHERE id = $1 AND status = 'PENDING'`

// MarkMessageFailed moves a PENDING message to FAILED with reason.
func (s *Store) MarkMessageFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, markMessageFailed, id, reason)
	if err != nil {
		return false, fmt.Errorf("mark message failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const failPendingMessages = `UPDATE messages
SET status = 'FAILED', error = $2, updated_at = now()
WHERE id = ANY($1) AND status = 'PENDING'`

// FailPendingMessages fails every still-PENDING message among ids.
func (s *Store) FailPendingMessages(ctx context.Context, ids []uuid.UUID, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, failPendingMessages, ids, reason)
	if err != nil {
		return 0, fmt.Errorf("fail pending messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
