package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/session"
	"github.com/sungwon/batch-messenger/internal/storage"
)

// Store is the persistence used to build batches.
type Store interface {
	GetClientByUserID(ctx context.Context, userID uuid.UUID) (storage.Client, error)
	CreateMessages(ctx context.Context, p storage.CreateMessagesParams) ([]storage.Message, error)
}

// Runtimes looks up live session runtimes.
type Runtimes interface {
	Get(clientID uuid.UUID) (*session.Runtime, bool)
}

// Request is a batch to send: one message per number, shared content and media.
type Request struct {
	Numbers  []string
	Content  string
	MediaURL string
}

// Batch is a persisted batch bound to the runtime that will send it.
type Batch struct {
	ID       uuid.UUID
	Client   storage.Client
	Runtime  *session.Runtime
	Messages []storage.Message
}

// Normalize trims numbers and the media URL and drops blank numbers.
// Content is kept as sent; it only has to be non-blank. It fails with
// ErrInvalidBatchRequest when nothing sendable remains. Duplicate numbers
// are kept: every entry is one send.
func Normalize(req Request) (Request, error) {
	numbers := make([]string, 0, len(req.Numbers))
	for _, n := range req.Numbers {
		if n = strings.TrimSpace(n); n != "" {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		return Request{}, fmt.Errorf("%w: at least one recipient number is required", ErrInvalidBatchRequest)
	}

	if strings.TrimSpace(req.Content) == "" {
		return Request{}, fmt.Errorf("%w: content must not be empty", ErrInvalidBatchRequest)
	}

	return Request{Numbers: numbers, Content: req.Content, MediaURL: strings.TrimSpace(req.MediaURL)}, nil
}

// Builder materializes batches.
type Builder struct {
	store    Store
	runtimes Runtimes
}

func NewBuilder(store Store, runtimes Runtimes) *Builder {
	return &Builder{store: store, runtimes: runtimes}
}

// Target is a session ready to receive a batch.
type Target struct {
	Client  storage.Client
	Runtime *session.Runtime
}

// Session resolves the user's session to a Target. It fails with
// ErrSessionNotFound or ErrSessionNotReady.
func (b *Builder) Session(ctx context.Context, userID uuid.UUID) (Target, error) {
	client, err := b.store.GetClientByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Target{}, ErrSessionNotFound
		}
		return Target{}, fmt.Errorf("find session: %w", err)
	}
	if client.Status != storage.ClientConnected {
		return Target{}, fmt.Errorf("%w: status is %s", ErrSessionNotReady, client.Status)
	}
	rt, ok := b.runtimes.Get(client.ID)
	if !ok {
		return Target{}, fmt.Errorf("%w: no active runtime", ErrSessionNotReady)
	}
	return Target{Client: client, Runtime: rt}, nil
}

// Build persists one PENDING message per number of req for target,
// returned in input order. req is normalized first; nothing is written
// when it is invalid.
func (b *Builder) Build(ctx context.Context, target Target, req Request) (*Batch, error) {
	req, err := Normalize(req)
	if err != nil {
		return nil, err
	}

	var mediaURL *string
	if req.MediaURL != "" {
		mediaURL = &req.MediaURL
	}

	batchID := uuid.New()
	msgs, err := b.store.CreateMessages(ctx, storage.CreateMessagesParams{
		ClientID: target.Client.ID,
		BatchID:  batchID,
		Numbers:  req.Numbers,
		Content:  req.Content,
		MediaURL: mediaURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create messages: %w", err)
	}

	return &Batch{ID: batchID, Client: target.Client, Runtime: target.Runtime, Messages: msgs}, nil
}
