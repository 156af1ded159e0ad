package session

import (
	"sync"

	"github.com/google/uuid"
)

// Progress is a point-in-time snapshot of one batch. It is emitted after
// every chunk and never persisted.
type Progress struct {
	BatchID      uuid.UUID `json:"batchId"`
	ClientID     uuid.UUID `json:"clientId"`
	CurrentBatch int       `json:"currentBatch"`
	TotalBatches int       `json:"totalBatches"`
	Processed    int       `json:"processed"`
	Total        int       `json:"total"`
	Successful   int       `json:"successful"`
	Failed       int       `json:"failed"`
}

// Done reports whether every record has been processed.
func (p Progress) Done() bool {
	return p.Processed >= p.Total
}

// BatchRun is the handle to one asynchronous batch.
type BatchRun struct {
	BatchID uuid.UUID

	progress chan Progress
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// newBatchRun sizes the progress channel to hold every snapshot the run
// will emit, so the sender never blocks on a slow observer.
func newBatchRun(batchID uuid.UUID, totalChunks int) *BatchRun {
	return &BatchRun{
		BatchID:  batchID,
		progress: make(chan Progress, totalChunks+1),
		done:     make(chan struct{}),
	}
}

// Progress streams snapshots and is closed when the run ends.
func (b *BatchRun) Progress() <-chan Progress {
	return b.progress
}

// Done is closed after the progress channel.
func (b *BatchRun) Done() <-chan struct{} {
	return b.done
}

// Err is the run's terminal error. It is only meaningful after Done.
func (b *BatchRun) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *BatchRun) emit(p Progress) {
	b.progress <- p
}

func (b *BatchRun) finish(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
	close(b.progress)
	close(b.done)
}
