// Package guard implements the Concurrency & Resource Guard: the sync
// pipeline's wall-clock and memory circuit breaker, and its
// abnormal-termination recorder. Its use of runtime.MemStats/runtime.GC
// to watch heap growth is grounded on the memory monitor found elsewhere
// in the example pack (paulround2tele-studio's internal/monitoring), the
// teacher itself having no equivalent.
package guard

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/ignite/campaign-sync-engine/internal/config"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/pkg/logger"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
)

// CacheFlusher is satisfied by any provider client whose idempotent-GET
// cache can be dropped under memory pressure.
type CacheFlusher interface {
	FlushCache()
}

// Guard bounds how long and how much memory a sync run may consume, and
// records the last observed failure for on_shutdown reporting.
type Guard struct {
	cfg   config.SyncConfig
	flush []CacheFlusher
	syncs *postgres.SyncRepo

	mu      sync.Mutex
	lastErr error
}

// New builds a Guard. flushers are every provider client whose cache
// should be dropped when manage_memory runs (currently just the MLP
// client — DDS has no response cache to flush).
func New(cfg config.SyncConfig, syncs *postgres.SyncRepo, flushers ...CacheFlusher) *Guard {
	return &Guard{cfg: cfg, syncs: syncs, flush: flushers}
}

// NewWithMLP is a convenience constructor for the common single-client case.
func NewWithMLP(cfg config.SyncConfig, syncs *postgres.SyncRepo, mlpClient *mlp.Client) *Guard {
	return New(cfg, syncs, mlpClient)
}

// CanContinue reports whether the caller may keep processing: false once
// wall-clock elapsed since start exceeds MaxProcessingSeconds, or
// resident heap exceeds MemoryThresholdPct of MemoryLimitBytes.
func (g *Guard) CanContinue(start time.Time) bool {
	if g.cfg.MaxProcessingSeconds > 0 && time.Since(start) > g.cfg.MaxProcessingTime() {
		return false
	}
	if g.cfg.MemoryLimitBytes == 0 {
		return true
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	limit := g.cfg.MemoryThresholdPct * float64(g.cfg.MemoryLimitBytes)
	return float64(m.HeapAlloc) <= limit
}

// ManageMemory runs a collection pass and flushes every registered
// client-side cache.
func (g *Guard) ManageMemory() {
	runtime.GC()
	for _, f := range g.flush {
		f.FlushCache()
	}
	logger.Info("memory guard ran collection pass")
}

// CaptureError records the most recent pipeline error for a later
// on_shutdown report.
func (g *Guard) CaptureError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastErr = err
}

// OnShutdown writes a Failed sync record carrying the last captured
// error, for abnormal terminations (signal, panic recovery) that bypass
// the pipeline's own failure handling.
func (g *Guard) OnShutdown(ctx context.Context) error {
	g.mu.Lock()
	err := g.lastErr
	g.mu.Unlock()

	message := "abnormal termination"
	if err != nil {
		message = err.Error()
	}
	_, werr := g.syncs.UpsertSyncRecord(ctx, domain.SyncFailed, 0, message)
	return werr
}
