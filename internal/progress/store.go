// Package progress implements the Progress/Error Store (spec §4.7): a
// process-wide durable store for run status, stop signalling, stage
// checkpoints, and the bounded error queue, plus the distributed run
// lock guarding against two overlapping sync runs.
package progress

import (
	"context"
	"time"

	"github.com/ignite/campaign-sync-engine/internal/domain"
)

// MaxErrorQueueSize bounds the error queue; the oldest entry is evicted
// once it is exceeded.
const MaxErrorQueueSize = 100

// Store is the Progress/Error Store contract. Implementations must be
// safe for concurrent use by the sync pipeline goroutine and the
// operator HTTP control surface simultaneously.
type Store interface {
	SetStatus(ctx context.Context, status domain.SyncStatusSnapshot) error
	GetStatus(ctx context.Context) (domain.SyncStatusSnapshot, error)

	SetStopFlag(ctx context.Context) error
	ClearStopFlag(ctx context.Context) error
	IsStopped(ctx context.Context) (bool, error)

	SaveCheckpoint(ctx context.Context, cp domain.ProgressCheckpoint) error
	LoadCheckpoint(ctx context.Context) (*domain.ProgressCheckpoint, error)
	ClearCheckpoint(ctx context.Context) error

	EnqueueError(ctx context.Context, entry domain.ErrorQueueEntry) error
	ListErrors(ctx context.Context, limit int) ([]domain.ErrorQueueEntry, error)
	ClearErrors(ctx context.Context) error

	AcquireRunLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context) error
}

// pushBounded appends entry to queue, evicting from the front once
// MaxErrorQueueSize is exceeded. Shared by every Store implementation so
// the eviction policy can't drift between backends.
func pushBounded(queue []domain.ErrorQueueEntry, entry domain.ErrorQueueEntry) []domain.ErrorQueueEntry {
	queue = append(queue, entry)
	if len(queue) > MaxErrorQueueSize {
		queue = queue[len(queue)-MaxErrorQueueSize:]
	}
	return queue
}
