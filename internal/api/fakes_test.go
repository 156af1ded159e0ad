package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/auth"
	"github.com/sungwon/batch-messenger/internal/dispatch"
	"github.com/sungwon/batch-messenger/internal/media"
	"github.com/sungwon/batch-messenger/internal/session"
	"github.com/sungwon/batch-messenger/internal/status"
	"github.com/sungwon/batch-messenger/internal/storage"
)

// withUser authenticates r as userID without a token.
func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(auth.WithUser(r.Context(), userID, "user@example.com"))
}

type fakeSubmitter struct {
	acc   dispatch.Accepted
	err   error
	calls int
	req   dispatch.Request
	in    media.Input
}

func (f *fakeSubmitter) Submit(_ context.Context, _ uuid.UUID, req dispatch.Request, in media.Input) (dispatch.Accepted, error) {
	f.calls++
	f.req, f.in = req, in
	return f.acc, f.err
}

type fakeReader struct {
	page    *status.Page
	message storage.Message
	err     error
	params  status.ListParams
}

func (f *fakeReader) List(_ context.Context, _ uuid.UUID, p status.ListParams) (*status.Page, error) {
	f.params = p
	return f.page, f.err
}

func (f *fakeReader) Get(_ context.Context, _, _ uuid.UUID) (storage.Message, error) {
	return f.message, f.err
}

type fakeProgress map[uuid.UUID]dispatch.BatchProgress

func (f fakeProgress) Latest(_ context.Context, id uuid.UUID) (dispatch.BatchProgress, error) {
	bp, ok := f[id]
	if !ok {
		return dispatch.BatchProgress{}, dispatch.ErrBatchNotFound
	}
	return bp, nil
}

// memStore is an in-memory implementation of every storage interface the
// HTTP layer and the services below it need.
type memStore struct {
	mu       sync.Mutex
	users    map[string]storage.User
	clients  map[uuid.UUID]storage.Client // by user
	messages []storage.Message
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]storage.User{},
		clients: map[uuid.UUID]storage.Client{},
	}
}

func (s *memStore) addUser(email, password string) storage.User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	u := storage.User{ID: uuid.New(), Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	s.mu.Lock()
	s.users[email] = u
	s.mu.Unlock()
	return u
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *memStore) CreateClient(_ context.Context, userID uuid.UUID) (storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[userID]; ok {
		return storage.Client{}, storage.ErrConflict
	}
	c := storage.Client{ID: uuid.New(), UserID: userID, Status: storage.ClientInitializing, CreatedAt: time.Now()}
	s.clients[userID] = c
	return c, nil
}

func (s *memStore) GetClientByUserID(_ context.Context, userID uuid.UUID) (storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[userID]
	if !ok {
		return storage.Client{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *memStore) UpdateClientStatus(_ context.Context, id uuid.UUID, st storage.ClientStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, c := range s.clients {
		if c.ID == id {
			c.Status = st
			s.clients[uid] = c
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) ListClientsByStatus(_ context.Context, statuses ...storage.ClientStatus) ([]storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Client
	for _, c := range s.clients {
		for _, st := range statuses {
			if c.Status == st {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *memStore) CreateMessages(_ context.Context, p storage.CreateMessagesParams) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Message, len(p.Numbers))
	for i, n := range p.Numbers {
		m := storage.Message{
			ID:        uuid.New(),
			ClientID:  p.ClientID,
			BatchID:   p.BatchID,
			Number:    n,
			Content:   p.Content,
			MediaURL:  p.MediaURL,
			Status:    storage.MessagePending,
			CreatedAt: time.Now(),
		}
		s.messages = append(s.messages, m)
		out[i] = m
	}
	return out, nil
}

func (s *memStore) clientIDFor(userID uuid.UUID) (uuid.UUID, bool) {
	c, ok := s.clients[userID]
	return c.ID, ok
}

// ListMessagesForUser pages newest first; later inserts count as newer.
func (s *memStore) ListMessagesForUser(_ context.Context, userID uuid.UUID, p storage.ListMessagesParams) (*storage.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clientID, ok := s.clientIDFor(userID)
	if !ok {
		return nil, storage.ErrNotFound
	}

	var matched []storage.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.ClientID == clientID && (p.Status == nil || m.Status == *p.Status) {
			matched = append(matched, m)
		}
	}

	page := &storage.MessagePage{Messages: []storage.Message{}, Total: int64(len(matched))}
	for i := int(p.Offset); i < len(matched) && i < int(p.Offset+p.Limit); i++ {
		page.Messages = append(page.Messages, matched[i])
	}
	return page, nil
}

func (s *memStore) GetMessageForUser(_ context.Context, userID, messageID uuid.UUID) (storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clientID, ok := s.clientIDFor(userID)
	if !ok {
		return storage.Message{}, storage.ErrNotFound
	}
	for _, m := range s.messages {
		if m.ID == messageID && m.ClientID == clientID {
			return m, nil
		}
	}
	return storage.Message{}, storage.ErrNotFound
}

func (s *memStore) transition(id uuid.UUID, to storage.MessageStatus, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id && s.messages[i].Status == storage.MessagePending {
			s.messages[i].Status = to
			if reason != "" {
				s.messages[i].Error = &reason
			}
			return true
		}
	}
	return false
}

func (s *memStore) MarkMessageSent(_ context.Context, id uuid.UUID, _ string, _ time.Time) (bool, error) {
	return s.transition(id, storage.MessageSent, ""), nil
}

func (s *memStore) MarkMessageFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return s.transition(id, storage.MessageFailed, reason), nil
}

func (s *memStore) FailPendingMessages(_ context.Context, ids []uuid.UUID, reason string) (int64, error) {
	var n int64
	for _, id := range ids {
		if s.transition(id, storage.MessageFailed, reason) {
			n++
		}
	}
	return n, nil
}

// fakeRuntimes is a SessionRuntimes whose Start result is scripted.
type fakeRuntimes struct {
	startStatus storage.ClientStatus
	startErr    error
	stopped     []storage.ClientStatus
	live        map[uuid.UUID]*session.Runtime
}

func (f *fakeRuntimes) Get(id uuid.UUID) (*session.Runtime, bool) {
	rt, ok := f.live[id]
	return rt, ok
}

func (f *fakeRuntimes) Start(context.Context, uuid.UUID) (storage.ClientStatus, error) {
	return f.startStatus, f.startErr
}

func (f *fakeRuntimes) Stop(_ context.Context, _ uuid.UUID, st storage.ClientStatus) error {
	f.stopped = append(f.stopped, st)
	return nil
}
