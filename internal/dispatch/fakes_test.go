package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/batch-messenger/internal/media"
	"github.com/sungwon/batch-messenger/internal/session"
	"github.com/sungwon/batch-messenger/internal/storage"
	"github.com/sungwon/batch-messenger/internal/transport"
)

// fakeStore keeps clients and messages in memory and satisfies both
// Store and session.MessageStore.
type fakeStore struct {
	mu        sync.Mutex
	clients   map[uuid.UUID]storage.Client
	messages  map[uuid.UUID]*storage.Message
	creates   int
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients:  map[uuid.UUID]storage.Client{},
		messages: map[uuid.UUID]*storage.Message{},
	}
}

func (s *fakeStore) addClient(userID uuid.UUID, status storage.ClientStatus) storage.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := storage.Client{ID: uuid.New(), UserID: userID, Status: status}
	s.clients[userID] = c
	return c
}

func (s *fakeStore) GetClientByUserID(_ context.Context, userID uuid.UUID) (storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[userID]
	if !ok {
		return storage.Client{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) CreateMessages(_ context.Context, p storage.CreateMessagesParams) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
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
		stored := m
		s.messages[m.ID] = &stored
		out[i] = m
	}
	return out, nil
}

func (s *fakeStore) transition(id uuid.UUID, to storage.MessageStatus, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.Status != storage.MessagePending {
		return false
	}
	m.Status = to
	if reason != "" {
		m.Error = &reason
	}
	return true
}

func (s *fakeStore) MarkMessageSent(_ context.Context, id uuid.UUID, _ string, _ time.Time) (bool, error) {
	return s.transition(id, storage.MessageSent, ""), nil
}

func (s *fakeStore) MarkMessageFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return s.transition(id, storage.MessageFailed, reason), nil
}

func (s *fakeStore) FailPendingMessages(_ context.Context, ids []uuid.UUID, reason string) (int64, error) {
	var n int64
	for _, id := range ids {
		if s.transition(id, storage.MessageFailed, reason) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) status(id uuid.UUID) storage.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id].Status
}

func (s *fakeStore) message(id uuid.UUID) storage.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type fakeRuntimes map[uuid.UUID]*session.Runtime

func (f fakeRuntimes) Get(id uuid.UUID) (*session.Runtime, bool) {
	rt, ok := f[id]
	return rt, ok
}

// okTransport accepts every send, optionally failing some numbers.
type okTransport struct {
	failNumbers map[string]bool
}

func (t okTransport) Name() string { return "ok" }

func (t okTransport) Send(_ context.Context, msg *transport.Outbound) (*transport.Result, error) {
	if t.failNumbers[msg.Number] {
		return nil, &transport.Error{Transport: "ok", Message: "rejected", Permanent: true}
	}
	return &transport.Result{ExternalID: "ext-" + msg.MessageID, Timestamp: time.Now()}, nil
}

func (t okTransport) HealthCheck(context.Context) error { return nil }

type fakeResolver struct {
	url   string
	err   error
	calls []media.Input
}

func (r *fakeResolver) Resolve(_ context.Context, in media.Input) (string, error) {
	if in.Empty() {
		return "", nil
	}
	r.calls = append(r.calls, in)
	return r.url, r.err
}

// recordingSink collects everything the coordinator reports.
type recordingSink struct {
	mu       sync.Mutex
	snaps    []session.Progress
	last     session.Progress
	finished chan error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{finished: make(chan error, 1)}
}

func (s *recordingSink) Observe(_ context.Context, p session.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, p)
	return nil
}

func (s *recordingSink) Finish(_ context.Context, last session.Progress, err error) error {
	s.mu.Lock()
	s.last = last
	s.mu.Unlock()
	s.finished <- err
	return nil
}

func (s *recordingSink) snapshots() []session.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Progress(nil), s.snaps...)
}

// connectedUser wires a user with a CONNECTED session and a live runtime.
func connectedUser(store *fakeStore, tr transport.Transport, chunk int) (uuid.UUID, fakeRuntimes, *session.Runtime) {
	userID := uuid.New()
	client := store.addClient(userID, storage.ClientConnected)
	rt := session.NewRuntime(client.ID, tr, store, session.Options{
		ChunkSize:   chunk,
		Concurrency: 2,
		Retry:       session.NewRetryStrategy(1),
	}, zerolog.Nop())
	return userID, fakeRuntimes{client.ID: rt}, rt
}
