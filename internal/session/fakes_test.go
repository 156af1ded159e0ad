package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/storage"
	"github.com/sungwon/batch-messenger/internal/transport"
)

// memStore is an in-memory Store enforcing PENDING-only transitions.
type memStore struct {
	mu             sync.Mutex
	messages       map[uuid.UUID]storage.MessageStatus
	reasons        map[uuid.UUID]string
	clientStatuses map[uuid.UUID][]storage.ClientStatus
	restorable     []storage.Client
	updateErr      error
}

func newMemStore() *memStore {
	return &memStore{
		messages:       map[uuid.UUID]storage.MessageStatus{},
		reasons:        map[uuid.UUID]string{},
		clientStatuses: map[uuid.UUID][]storage.ClientStatus{},
	}
}

func (s *memStore) add(msgs []storage.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages[m.ID] = storage.MessagePending
	}
}

func (s *memStore) status(id uuid.UUID) storage.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *memStore) reason(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reasons[id]
}

func (s *memStore) transition(id uuid.UUID, to storage.MessageStatus, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages[id] != storage.MessagePending {
		return false
	}
	s.messages[id] = to
	s.reasons[id] = reason
	return true
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

func (s *memStore) UpdateClientStatus(_ context.Context, id uuid.UUID, status storage.ClientStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.clientStatuses[id] = append(s.clientStatuses[id], status)
	return nil
}

// ListClientsByStatus filters the seeded clients and every client with a
// recorded transition by their current status.
func (s *memStore) ListClientsByStatus(_ context.Context, statuses ...storage.ClientStatus) ([]storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := map[uuid.UUID]storage.ClientStatus{}
	var order []uuid.UUID
	for _, c := range s.restorable {
		current[c.ID] = c.Status
		order = append(order, c.ID)
	}
	for id, history := range s.clientStatuses {
		if _, seen := current[id]; !seen {
			order = append(order, id)
		}
		current[id] = history[len(history)-1]
	}

	var out []storage.Client
	for _, id := range order {
		for _, want := range statuses {
			if current[id] == want {
				out = append(out, storage.Client{ID: id, Status: current[id]})
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) statuses(id uuid.UUID) []storage.ClientStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.ClientStatus(nil), s.clientStatuses[id]...)
}

// scriptedTransport answers each send through fn and tracks concurrency.
type scriptedTransport struct {
	fn        func(ctx context.Context, msg *transport.Outbound, attempt int) error
	healthErr error

	mu          sync.Mutex
	attempts    map[string]int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newScriptedTransport(fn func(ctx context.Context, msg *transport.Outbound, attempt int) error) *scriptedTransport {
	return &scriptedTransport{fn: fn, attempts: map[string]int{}}
}

func (t *scriptedTransport) Name() string { return "scripted" }

func (t *scriptedTransport) Send(ctx context.Context, msg *transport.Outbound) (*transport.Result, error) {
	n := t.inFlight.Add(1)
	defer t.inFlight.Add(-1)
	for {
		cur := t.maxInFlight.Load()
		if n <= cur || t.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	t.mu.Lock()
	attempt := t.attempts[msg.MessageID]
	t.attempts[msg.MessageID]++
	t.mu.Unlock()

	if t.fn != nil {
		if err := t.fn(ctx, msg, attempt); err != nil {
			return nil, err
		}
	}
	return &transport.Result{ExternalID: "ext-" + msg.MessageID, Timestamp: time.Now()}, nil
}

func (t *scriptedTransport) HealthCheck(_ context.Context) error {
	return t.healthErr
}

func (t *scriptedTransport) attemptsFor(id uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[id.String()]
}

var errGatewayDown = errors.New("gateway down")

func makeMessages(clientID uuid.UUID, n int) []storage.Message {
	batchID := uuid.New()
	msgs := make([]storage.Message, n)
	for i := range msgs {
		msgs[i] = storage.Message{
			ID:       uuid.New(),
			ClientID: clientID,
			BatchID:  batchID,
			Number:   "1555000" + string(rune('a'+i%26)),
			Content:  "Hello",
			Status:   storage.MessagePending,
		}
	}
	return msgs
}

func fastOptions(chunk, concurrency int) Options {
	return Options{
		ChunkSize:   chunk,
		Concurrency: concurrency,
		Retry:       &RetryStrategy{MaxRetries: 2, Schedule: []time.Duration{time.Millisecond}},
	}
}
