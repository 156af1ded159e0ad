package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sungwon/batch-messenger/internal/metrics"
	"github.com/sungwon/batch-messenger/internal/storage"
	"github.com/sungwon/batch-messenger/internal/transport"
)

// ErrConnect is returned by Start when the transport is unreachable.
var ErrConnect = errors.New("session could not connect")

// Store is the persistence the registry needs.
type Store interface {
	MessageStore
	UpdateClientStatus(ctx context.Context, id uuid.UUID, status storage.ClientStatus) error
	ListClientsByStatus(ctx context.Context, statuses ...storage.ClientStatus) ([]storage.Client, error)
}

// Registry is the process-wide map from session (client) ID to its live
// Runtime. A runtime is registered exactly while its session is CONNECTED.
type Registry struct {
	store     Store
	transport transport.Transport
	opts      Options
	log       zerolog.Logger

	starts singleflight.Group

	mu       sync.RWMutex
	runtimes map[uuid.UUID]*Runtime
}

func NewRegistry(store Store, tr transport.Transport, opts Options, log zerolog.Logger) *Registry {
	return &Registry{
		store:     store,
		transport: tr,
		opts:      opts,
		log:       log.With().Str("component", "session_registry").Logger(),
		runtimes:  make(map[uuid.UUID]*Runtime),
	}
}

// Get returns the live runtime for clientID.
func (r *Registry) Get(clientID uuid.UUID) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[clientID]
	return rt, ok
}

// Len is the number of registered runtimes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runtimes)
}

// Start connects the session: INITIALIZING, then CONNECTED with a
// registered runtime, or DISCONNECTED and ErrConnect when the transport
// health check fails. Starting a registered session is a no-op.
// Concurrent starts of one session share a single attempt.
func (r *Registry) Start(ctx context.Context, clientID uuid.UUID) (storage.ClientStatus, error) {
	v, err, _ := r.starts.Do(clientID.String(), func() (interface{}, error) {
		return r.start(ctx, clientID)
	})
	status, _ := v.(storage.ClientStatus)
	return status, err
}

func (r *Registry) start(ctx context.Context, clientID uuid.UUID) (storage.ClientStatus, error) {
	if _, ok := r.Get(clientID); ok {
		return storage.ClientConnected, nil
	}

	if err := r.store.UpdateClientStatus(ctx, clientID, storage.ClientInitializing); err != nil {
		return "", fmt.Errorf("mark initializing: %w", err)
	}

	if err := r.transport.HealthCheck(ctx); err != nil {
		r.log.Warn().Err(err).Str("client_id", clientID.String()).Msg("session connect failed")
		if uerr := r.store.UpdateClientStatus(ctx, clientID, storage.ClientDisconnected); uerr != nil {
			return "", fmt.Errorf("mark disconnected: %w", uerr)
		}
		return storage.ClientDisconnected, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	rt := NewRuntime(clientID, r.transport, r.store, r.opts, r.log)
	if err := r.store.UpdateClientStatus(ctx, clientID, storage.ClientConnected); err != nil {
		rt.Close(ctx) //nolint:errcheck
		return "", fmt.Errorf("mark connected: %w", err)
	}

	r.mu.Lock()
	r.runtimes[clientID] = rt
	r.mu.Unlock()
	metrics.ActiveSessionRuntimes.Inc()
	r.log.Info().Str("client_id", clientID.String()).Str("transport", r.transport.Name()).Msg("session connected")
	return storage.ClientConnected, nil
}

// Stop tears down the session's runtime, if any, and persists status
// (DISCONNECTED or LOGOUT). Running batches are cancelled and their
// untouched messages failed.
func (r *Registry) Stop(ctx context.Context, clientID uuid.UUID, status storage.ClientStatus) error {
	r.mu.Lock()
	rt, ok := r.runtimes[clientID]
	if ok {
		delete(r.runtimes, clientID)
		metrics.ActiveSessionRuntimes.Dec()
	}
	r.mu.Unlock()

	var closeErr error
	if ok {
		closeErr = rt.Close(ctx)
	}

	if err := r.store.UpdateClientStatus(context.WithoutCancel(ctx), clientID, status); err != nil {
		return errors.Join(closeErr, fmt.Errorf("mark %s: %w", status, err))
	}
	r.log.Info().Str("client_id", clientID.String()).Str("status", string(status)).Msg("session stopped")
	return closeErr
}

// Restore restarts runtimes for sessions persisted as CONNECTED or
// INITIALIZING, e.g. after a process restart. Sessions that fail to
// connect are left DISCONNECTED.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	clients, err := r.store.ListClientsByStatus(ctx, storage.ClientConnected, storage.ClientInitializing)
	if err != nil {
		return 0, fmt.Errorf("list sessions to restore: %w", err)
	}

	restored := 0
	for _, c := range clients {
		status, err := r.Start(ctx, c.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("client_id", c.ID.String()).Msg("session not restored")
			continue
		}
		if status == storage.ClientConnected {
			restored++
		}
	}
	return restored, nil
}

// Shutdown closes every registered runtime for process exit. Running
// batches are cancelled and their untouched messages failed, but the
// persisted session status is left as is so Restore reconnects the
// sessions on the next start.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	runtimes := make([]*Runtime, 0, len(r.runtimes))
	for id, rt := range r.runtimes {
		runtimes = append(runtimes, rt)
		delete(r.runtimes, id)
		metrics.ActiveSessionRuntimes.Dec()
	}
	r.mu.Unlock()

	var errs []error
	for _, rt := range runtimes {
		if err := rt.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", rt.ClientID(), err))
		}
	}
	r.log.Info().Int("sessions", len(runtimes)).Msg("session runtimes closed")
	return errors.Join(errs...)
}
