package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/batch-messenger/internal/metrics"
	"github.com/sungwon/batch-messenger/internal/session"
)

// ProgressSink receives the snapshots of running batches. Finish gets the
// last snapshot observed and the batch's terminal error.
type ProgressSink interface {
	Observe(ctx context.Context, p session.Progress) error
	Finish(ctx context.Context, last session.Progress, err error) error
}

// Accepted is the synchronous answer to a dispatch.
type Accepted struct {
	BatchID    uuid.UUID   `json:"batchId"`
	Count      int         `json:"count"`
	MessageIDs []uuid.UUID `json:"messageIds"`
}

// Coordinator hands batches to their session runtime and fans the
// progress stream out to the sinks.
type Coordinator struct {
	sinks []ProgressSink
	log   zerolog.Logger
	wg    sync.WaitGroup
}

func NewCoordinator(log zerolog.Logger, sinks ...ProgressSink) *Coordinator {
	return &Coordinator{sinks: sinks, log: log}
}

// Dispatch starts b in the background and returns at once. The queued
// snapshot is reported before returning, so the batch is visible to the
// sinks from the moment it is accepted. The run is detached from ctx so it
// outlives the request that submitted it.
func (c *Coordinator) Dispatch(ctx context.Context, b *Batch) Accepted {
	ids := make([]uuid.UUID, len(b.Messages))
	for i := range b.Messages {
		ids[i] = b.Messages[i].ID
	}

	metrics.BatchesAcceptedTotal.Inc()
	metrics.MessagesCreatedTotal.Add(float64(len(b.Messages)))

	bgCtx := context.WithoutCancel(ctx)
	queued := b.Runtime.Queued(b.ID, len(b.Messages))
	c.report(bgCtx, queued)
	run := b.Runtime.ProcessBatch(bgCtx, b.ID, b.Messages)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.observe(bgCtx, run, queued)
	}()

	return Accepted{BatchID: b.ID, Count: len(ids), MessageIDs: ids}
}

func (c *Coordinator) report(ctx context.Context, p session.Progress) {
	metrics.BatchProgressEventsTotal.Inc()
	for _, s := range c.sinks {
		if err := s.Observe(ctx, p); err != nil {
			c.log.Warn().Err(err).Str("batch_id", p.BatchID.String()).Msg("progress sink failed")
		}
	}
}

func (c *Coordinator) observe(ctx context.Context, run *session.BatchRun, last session.Progress) {
	log := c.log.With().Str("batch_id", run.BatchID.String()).Logger()

	for p := range run.Progress() {
		c.report(ctx, p)
		last = p
	}
	<-run.Done()

	runErr := run.Err()
	switch {
	case runErr == nil:
		metrics.BatchesCompletedTotal.WithLabelValues("ok").Inc()
	case errors.Is(runErr, session.ErrSessionClosed):
		metrics.BatchesCompletedTotal.WithLabelValues("closed").Inc()
		log.Warn().Err(runErr).Msg("batch interrupted")
	default:
		metrics.BatchesCompletedTotal.WithLabelValues("error").Inc()
		log.Error().Err(runErr).Msg("batch finished with errors")
	}

	for _, s := range c.sinks {
		if err := s.Finish(ctx, last, runErr); err != nil {
			log.Warn().Err(err).Msg("progress sink finish failed")
		}
	}
}

// Shutdown waits until every observed batch has been reported.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for batch observers: %w", ctx.Err())
	}
}
