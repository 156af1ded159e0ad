// Package status is the read side of message delivery: paged listing and
// single lookups, always scoped to the requesting user's session.
package status

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/storage"
)

var (
	ErrNotFound        = errors.New("message not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidQuery    = errors.New("invalid query")
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Store is the read model used by Service.
type Store interface {
	ListMessagesForUser(ctx context.Context, userID uuid.UUID, p storage.ListMessagesParams) (*storage.MessagePage, error)
	GetMessageForUser(ctx context.Context, userID, messageID uuid.UUID) (storage.Message, error)
}

// ListParams selects a page. Zero values mean page 1 with the default limit.
type ListParams struct {
	Page   int
	Limit  int
	Status string
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type Page struct {
	Messages   []storage.Message `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns one page of the user's messages, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, p ListParams) (*Page, error) {
	page, limit := p.Page, p.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if int64(page-1) > math.MaxInt32/int64(limit) {
		return nil, fmt.Errorf("%w: page %d is out of range", ErrInvalidQuery, page)
	}

	params := storage.ListMessagesParams{
		Limit:  int32(limit),
		Offset: int32((page - 1) * limit),
	}
	if raw := strings.TrimSpace(p.Status); raw != "" {
		st := storage.MessageStatus(strings.ToUpper(raw))
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, raw)
		}
		params.Status = &st
	}

	res, err := s.store.ListMessagesForUser(ctx, userID, params)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return &Page{
		Messages: res.Messages,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      res.Total,
			TotalPages: (res.Total + int64(limit) - 1) / int64(limit),
		},
	}, nil
}

// Get returns a message owned by userID. Messages of other users are
// reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, messageID uuid.UUID) (storage.Message, error) {
	m, err := s.store.GetMessageForUser(ctx, userID, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Message{}, ErrNotFound
		}
		return storage.Message{}, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}
