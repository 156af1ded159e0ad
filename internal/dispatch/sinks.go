package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/batch-messenger/internal/session"
)

// ErrBatchNotFound is returned when no progress is known for a batch.
var ErrBatchNotFound = errors.New("batch progress not found")

const progressStream = "batch:progress"

func progressKey(batchID uuid.UUID) string {
	return "batch:progress:" + batchID.String()
}

// BatchProgress is the latest known state of a batch.
type BatchProgress struct {
	session.Progress
	Finished bool   `json:"finished"`
	Error    string `json:"error,omitempty"`
}

// RedisSink publishes every snapshot to a capped Redis stream and keeps
// the latest one per batch under an expiring key.
type RedisSink struct {
	client    redis.Cmdable
	ttl       time.Duration
	streamLen int64
}

func NewRedisSink(client redis.Cmdable, ttl time.Duration, streamLen int64) *RedisSink {
	return &RedisSink{client: client, ttl: ttl, streamLen: streamLen}
}

func (s *RedisSink) Observe(ctx context.Context, p session.Progress) error {
	data, err := json.Marshal(BatchProgress{Progress: p})
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: progressStream,
		Values: map[string]interface{}{
			"batch_id": p.BatchID.String(),
			"data":     string(data),
		},
	}
	if s.streamLen > 0 {
		args.MaxLen = s.streamLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd to stream %s: %w", progressStream, err)
	}

	if err := s.client.Set(ctx, progressKey(p.BatchID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", progressKey(p.BatchID), err)
	}
	return nil
}

// Finish stores last as the batch's final state. It is written even when
// no earlier snapshot reached Redis.
func (s *RedisSink) Finish(ctx context.Context, last session.Progress, runErr error) error {
	bp := BatchProgress{Progress: last, Finished: true}
	if runErr != nil {
		bp.Error = runErr.Error()
	}
	data, err := json.Marshal(bp)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.Set(ctx, progressKey(last.BatchID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", progressKey(last.BatchID), err)
	}
	return nil
}

// Latest returns the most recent snapshot of batchID.
func (s *RedisSink) Latest(ctx context.Context, batchID uuid.UUID) (BatchProgress, error) {
	raw, err := s.client.Get(ctx, progressKey(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return BatchProgress{}, ErrBatchNotFound
	}
	if err != nil {
		return BatchProgress{}, fmt.Errorf("get %s: %w", progressKey(batchID), err)
	}

	var bp BatchProgress
	if err := json.Unmarshal(raw, &bp); err != nil {
		return BatchProgress{}, fmt.Errorf("decode progress: %w", err)
	}
	return bp, nil
}

// LogSink writes snapshots to the application log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Observe(_ context.Context, p session.Progress) error {
	s.log.Info().
		Str("batch_id", p.BatchID.String()).
		Str("client_id", p.ClientID.String()).
		Int("current_batch", p.CurrentBatch).
		Int("total_batches", p.TotalBatches).
		Int("processed", p.Processed).
		Int("total", p.Total).
		Int("successful", p.Successful).
		Int("failed", p.Failed).
		Msg("batch progress")
	return nil
}

func (s *LogSink) Finish(_ context.Context, last session.Progress, err error) error {
	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("batch_id", last.BatchID.String()).
		Int("successful", last.Successful).
		Int("failed", last.Failed).
		Msg("batch finished")
	return nil
}
