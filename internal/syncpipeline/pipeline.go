// Package syncpipeline implements the five-stage orchestrator that
// populates local campaign/field/group/subscriber/membership tables from
// MLP and reconciles per-campaign tier memberships. Its shape — a single
// logical worker advancing a checkpointed state machine, with bounded
// producer/consumer fan-out inside the page-heavy stages — is adapted from
// the teacher's automation engine (internal/automation/engine.go) and
// campaign processor (internal/worker/campaign_processor.go).
package syncpipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/campaign-sync-engine/internal/config"
	"github.com/ignite/campaign-sync-engine/internal/dds"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/pkg/logger"
	"github.com/ignite/campaign-sync-engine/internal/progress"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
	"github.com/ignite/campaign-sync-engine/internal/tierengine"
)

const totalStages = 5

// ResourceGuard is the subset of the Concurrency & Resource Guard the
// pipeline consults between batches. Defined here rather than imported
// from internal/guard to avoid a dependency cycle (guard, in turn,
// depends on the pipeline's sync-record repo to record on_shutdown
// failures).
type ResourceGuard interface {
	CanContinue(start time.Time) bool
	ManageMemory()
}

// Repos bundles the typed repositories the pipeline writes through.
type Repos struct {
	Campaigns    *postgres.CampaignRepo
	Fields       *postgres.FieldRepo
	Groups       *postgres.GroupRepo
	Subscribers  *postgres.SubscriberRepo
	Memberships  *postgres.MembershipRepo
	Syncs        *postgres.SyncRepo
}

// Pipeline is the five-stage sync orchestrator.
type Pipeline struct {
	cfg    *config.Config
	mlp    *mlp.Client
	repos  Repos
	store  progress.Store
	engine *tierengine.Engine
	guard  ResourceGuard

	// ddsClient backs stage 5's per-subscriber purchase check, which feeds
	// the Tier Engine's tier-advancement decision.
	ddsClient *dds.Client
}

// New builds a Pipeline wired to its dependencies.
func New(cfg *config.Config, mlpClient *mlp.Client, ddsClient *dds.Client, repos Repos, store progress.Store, engine *tierengine.Engine, guard ResourceGuard) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		mlp:       mlpClient,
		ddsClient: ddsClient,
		repos:     repos,
		store:     store,
		engine:    engine,
		guard:     guard,
	}
}

// Run acquires the run lock, resumes from any saved checkpoint, and
// executes stages 1 through 5 in order. It returns nil on a clean
// completion or an operator-requested stop. A stage failure is recorded
// as a Failed sync record before its error is returned; a failure to
// acquire the lock, load the checkpoint or create the sync record, and a
// context cancellation between stages, are returned without one.
func (p *Pipeline) Run(ctx context.Context) error {
	ok, err := p.store.AcquireRunLock(ctx, p.cfg.Sync.MaxProcessingTime())
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("sync already running")
	}
	defer func() {
		if err := p.store.ReleaseRunLock(ctx); err != nil {
			logger.Error("release run lock failed", "error", err)
		}
	}()

	start := time.Now()
	cp, err := p.store.LoadCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		cp = &domain.ProgressCheckpoint{Stage: 1}
	}

	recordID, err := p.repos.Syncs.UpsertSyncRecord(ctx, domain.SyncRunning, 0, "sync started")
	if err != nil {
		return fmt.Errorf("create sync record: %w", err)
	}

	synced := 0
	stages := []func(context.Context, *domain.ProgressCheckpoint) (int, error){
		p.stageSyncCampaigns,
		p.stageSyncFields,
		p.stageSyncGroups,
		p.stageSyncSubscribers,
		p.stageSyncMemberships,
	}

	for stageIdx := cp.Stage; stageIdx <= totalStages; stageIdx++ {
		if stopped, serr := p.store.IsStopped(ctx); serr == nil && stopped {
			p.emitStatus(ctx, domain.StateStopped, stageIdx, "stop flag observed", synced, start)
			_ = p.repos.Syncs.UpdateSyncRecord(ctx, recordID, domain.SyncStopped, synced, "stopped by operator")
			return nil
		}
		if !p.guard.CanContinue(start) {
			p.guard.ManageMemory()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if cp.Stage != stageIdx {
			cp = &domain.ProgressCheckpoint{Stage: stageIdx}
		}
		p.emitStatus(ctx, domain.StateRunning, stageIdx, fmt.Sprintf("stage %d running", stageIdx), synced, start)

		count, err := stages[stageIdx-1](ctx, cp)
		if err != nil {
			p.recordError(ctx, fmt.Sprintf("stage-%d", stageIdx), "", err)
			_ = p.repos.Syncs.UpdateSyncRecord(ctx, recordID, domain.SyncFailed, synced, err.Error())
			p.emitStatus(ctx, domain.StateFailed, stageIdx, err.Error(), synced, start)
			return fmt.Errorf("stage %d: %w", stageIdx, err)
		}
		synced += count

		cp = &domain.ProgressCheckpoint{Stage: stageIdx + 1}
		if err := p.store.SaveCheckpoint(ctx, *cp); err != nil {
			logger.Error("save checkpoint failed", "error", err)
		}
	}

	if err := p.store.ClearCheckpoint(ctx); err != nil {
		logger.Error("clear checkpoint failed", "error", err)
	}
	_ = p.repos.Syncs.UpdateSyncRecord(ctx, recordID, domain.SyncCompleted, synced, "sync completed")
	p.emitStatus(ctx, domain.StateDone, totalStages, "sync completed", synced, start)
	return nil
}

func (p *Pipeline) emitStatus(ctx context.Context, state domain.SyncState, stage int, message string, processed int, start time.Time) {
	snap := domain.SyncStatusSnapshot{
		State:             state,
		Stage:             stage,
		TotalStages:       totalStages,
		Message:           message,
		Processed:         processed,
		LastSyncTime:      time.Now(),
		SubscribersSynced: processed,
	}
	if err := p.store.SetStatus(ctx, snap); err != nil {
		logger.Error("set status failed", "error", err, "stage", stage)
	}
}

func (p *Pipeline) recordError(ctx context.Context, kind, ref string, err error) {
	entry := domain.ErrorQueueEntry{
		Kind:        kind,
		Reference:   ref,
		Message:     err.Error(),
		LastAttempt: time.Now(),
	}
	if qerr := p.store.EnqueueError(ctx, entry); qerr != nil {
		logger.Error("enqueue error failed", "error", qerr)
	}
}

func fieldName(campaignName string) string {
	return campaignName + "_PURCHASE"
}

func groupName(campaignName, tier string) string {
	return campaignName + "_" + tier
}

func purchaseFieldKey(campaignName string) string {
	return strings.ToLower(fieldName(campaignName))
}
