package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/batch-messenger/internal/metrics"
	"github.com/sungwon/batch-messenger/internal/storage"
	"github.com/sungwon/batch-messenger/internal/transport"
)

// ErrSessionClosed is the terminal error of a batch cut short by logout,
// disconnect or shutdown.
var ErrSessionClosed = errors.New("session closed")

const closedReason = "session closed before send"

// MessageStore records terminal message states.
type MessageStore interface {
	MarkMessageSent(ctx context.Context, id uuid.UUID, externalID string, sentAt time.Time) (bool, error)
	MarkMessageFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	FailPendingMessages(ctx context.Context, ids []uuid.UUID, reason string) (int64, error)
}

// Options tune how a runtime works through a batch.
type Options struct {
	ChunkSize   int
	Concurrency int
	ChunkDelay  time.Duration
	Retry       *RetryStrategy
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Retry == nil {
		o.Retry = NewRetryStrategy(3)
	}
	return o
}

// Runtime is the live, in-memory handle of one connected session. Batches
// submitted to the same Runtime run one at a time, in submission order of
// acquiring the session.
type Runtime struct {
	clientID  uuid.UUID
	transport transport.Transport
	store     MessageStore
	opts      Options
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	slot   chan struct{}
	active atomic.Int32

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRuntime creates a runtime for clientID. It lives until Close.
func NewRuntime(clientID uuid.UUID, tr transport.Transport, store MessageStore, opts Options, log zerolog.Logger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		clientID:  clientID,
		transport: tr,
		store:     store,
		opts:      opts.withDefaults(),
		log:       log.With().Str("client_id", clientID.String()).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		slot:      make(chan struct{}, 1),
	}
}

func (r *Runtime) ClientID() uuid.UUID { return r.clientID }

func (r *Runtime) chunks(n int) int {
	return (n + r.opts.ChunkSize - 1) / r.opts.ChunkSize
}

// Queued is the snapshot of a batch of n messages before its first chunk
// is sent.
func (r *Runtime) Queued(batchID uuid.UUID, n int) Progress {
	return Progress{
		BatchID:      batchID,
		ClientID:     r.clientID,
		TotalBatches: r.chunks(n),
		Total:        n,
	}
}

// Busy reports whether a batch currently holds or awaits the session.
func (r *Runtime) Busy() bool {
	return r.active.Load() > 0
}

// ProcessBatch starts sending msgs in the background and returns at once.
// Every message ends SENT or FAILED; messages never reached because the
// runtime closed are failed with a "session closed" reason.
func (r *Runtime) ProcessBatch(ctx context.Context, batchID uuid.UUID, msgs []storage.Message) *BatchRun {
	totalChunks := r.chunks(len(msgs))
	run := newBatchRun(batchID, totalChunks)

	// After Close the run still starts; it finds the runtime context
	// cancelled and fails its messages.
	r.mu.Lock()
	tracked := !r.closed
	if tracked {
		r.wg.Add(1)
	}
	r.mu.Unlock()

	r.active.Add(1)
	go func() {
		if tracked {
			defer r.wg.Done()
		}
		defer r.active.Add(-1)
		run.finish(r.process(ctx, run, msgs, totalChunks))
	}()
	return run
}

func (r *Runtime) process(callerCtx context.Context, run *BatchRun, msgs []storage.Message, totalChunks int) error {
	log := r.log.With().Str("batch_id", run.BatchID.String()).Logger()

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	stop := context.AfterFunc(callerCtx, cancel)
	defer stop()

	select {
	case r.slot <- struct{}{}:
		defer func() { <-r.slot }()
	case <-ctx.Done():
		return r.abandon(msgs, log)
	}

	snap := r.Queued(run.BatchID, len(msgs))

	var storeErrs []error
	for i := 0; i < totalChunks; i++ {
		start := i * r.opts.ChunkSize
		end := min(start+r.opts.ChunkSize, len(msgs))

		if ctx.Err() != nil {
			if err := r.abandon(msgs[start:], log); err != nil && !errors.Is(err, ErrSessionClosed) {
				storeErrs = append(storeErrs, err)
			}
			return errors.Join(append([]error{ErrSessionClosed}, storeErrs...)...)
		}

		sent, failed, errs := r.sendChunk(ctx, msgs[start:end], log)
		storeErrs = append(storeErrs, errs...)

		snap.CurrentBatch = i + 1
		snap.Processed = end
		snap.Successful += sent
		snap.Failed += failed
		run.emit(snap)

		if end < len(msgs) && r.opts.ChunkDelay > 0 {
			t := time.NewTimer(r.opts.ChunkDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}

	if ctx.Err() != nil {
		storeErrs = append([]error{ErrSessionClosed}, storeErrs...)
		return errors.Join(storeErrs...)
	}
	if len(storeErrs) > 0 {
		return fmt.Errorf("record message results: %w", errors.Join(storeErrs...))
	}
	return nil
}

// sendChunk delivers one chunk with bounded concurrency and returns the
// sent and failed counts plus any errors persisting the outcome.
func (r *Runtime) sendChunk(ctx context.Context, chunk []storage.Message, log zerolog.Logger) (int, int, []error) {
	var (
		sent, failed atomic.Int32
		mu           sync.Mutex
		errs         []error
	)

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i := range chunk {
		m := &chunk[i]
		g.Go(func() error {
			ok, err := r.deliver(ctx, m, log)
			if ok {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	return int(sent.Load()), int(failed.Load()), errs
}

// deliver sends one message, retrying transient failures, and records the
// single terminal transition. The returned error is a storage error only.
func (r *Runtime) deliver(ctx context.Context, m *storage.Message, log zerolog.Logger) (bool, error) {
	out := &transport.Outbound{
		MessageID: m.ID.String(),
		SessionID: r.clientID.String(),
		Number:    m.Number,
		Content:   m.Content,
	}
	if m.MediaURL != nil {
		out.MediaURL = *m.MediaURL
	}

	// Terminal states are written even when ctx is already cancelled.
	writeCtx := context.WithoutCancel(ctx)

	var (
		sendErr error
		attempt int
	)
	for ; ; attempt++ {
		start := time.Now()
		res, err := r.transport.Send(ctx, out)
		metrics.MessageSendDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.MessageSendsTotal.WithLabelValues("sent").Inc()
			applied, serr := r.store.MarkMessageSent(writeCtx, m.ID, res.ExternalID, res.Timestamp)
			if serr != nil {
				return true, fmt.Errorf("mark %s sent: %w", m.ID, serr)
			}
			if !applied {
				log.Warn().Str("message_id", m.ID.String()).Msg("message already terminal, sent result ignored")
			}
			return true, nil
		}

		sendErr = err
		if ctx.Err() != nil || !transport.IsTransient(err) || !r.opts.Retry.ShouldRetry(attempt) {
			break
		}

		metrics.MessageSendsTotal.WithLabelValues("retried").Inc()
		backoff := r.opts.Retry.NextBackoff(attempt)
		log.Debug().
			Err(err).
			Str("message_id", m.ID.String()).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("transient send failure, retrying")

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
		if ctx.Err() != nil {
			break
		}
	}

	reason := sendErr.Error()
	if ctx.Err() != nil {
		reason = closedReason
	}
	metrics.MessageSendsTotal.WithLabelValues("failed").Inc()
	log.Info().
		Err(sendErr).
		Str("message_id", m.ID.String()).
		Str("number", m.Number).
		Bool("permanent", transport.IsPermanent(sendErr)).
		Int("attempts", attempt+1).
		Msg("message failed")

	if _, serr := r.store.MarkMessageFailed(writeCtx, m.ID, reason); serr != nil {
		return false, fmt.Errorf("mark %s failed: %w", m.ID, serr)
	}
	return false, nil
}

// abandon fails every still-PENDING message and returns ErrSessionClosed,
// or the storage error if that write failed.
func (r *Runtime) abandon(msgs []storage.Message, log zerolog.Logger) error {
	ids := make([]uuid.UUID, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}

	n, err := r.store.FailPendingMessages(context.Background(), ids, closedReason)
	if err != nil {
		return fmt.Errorf("fail pending messages: %w", err)
	}
	log.Warn().Int64("failed", n).Msg("session closed, pending messages failed")
	return ErrSessionClosed
}

// Close stops accepting work, cancels running batches and waits for them
// to record their results or for ctx to expire.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close runtime %s: %w", r.clientID, ctx.Err())
	}
}
