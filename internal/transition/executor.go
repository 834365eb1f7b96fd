// Package transition implements the Transition Executor: moves
// subscriber cohorts from a source campaign to a successor campaign
// according to an operator-supplied tier matrix, verifying purchases
// through DDS before rows that require it. Its per-row bounded
// processing mirrors the teacher's campaign processor's per-item loop
// (internal/worker/campaign_processor.go), generalized from a send queue
// to a fixed list of matrix rows.
package transition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/campaign-sync-engine/internal/dds"
	"github.com/ignite/campaign-sync-engine/internal/dds/snowflake"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/pkg/logger"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
	"github.com/ignite/campaign-sync-engine/internal/tierengine"
)

// Repos bundles the repositories the executor reads and writes through.
type Repos struct {
	Campaigns   *postgres.CampaignRepo
	Groups      *postgres.GroupRepo
	Transitions *postgres.TransitionRepo
}

// Executor runs transition_campaigns.
type Executor struct {
	mlp                 *mlp.Client
	dds                 *dds.Client
	repos               Repos
	engine              *tierengine.Engine
	warehouse           *snowflake.Client
	maxPerSubscriberDay int
}

// New builds an Executor.
func New(mlpClient *mlp.Client, ddsClient *dds.Client, repos Repos, engine *tierengine.Engine) *Executor {
	return &Executor{mlp: mlpClient, dds: ddsClient, repos: repos, engine: engine}
}

// WithDailyRateLimit sets the daily-rate safety cap (spec §4.4): a
// subscriber who has already been moved by `max` or more transitions
// today is skipped instead of moved again, to prevent oscillation
// between campaigns. max<=0 disables the cap.
func (e *Executor) WithDailyRateLimit(max int) *Executor {
	e.maxPerSubscriberDay = max
	return e
}

// WithWarehouse attaches the optional Snowflake cross-validation reader.
// When set, a DDS-validated order is given a second opinion against the
// warehoused sales mirror before the subscriber is treated as eligible;
// a warehouse miss or mismatch does not itself disqualify the
// subscriber — DDS remains the source of truth, the warehouse only logs
// a warning so drift between the two is visible without blocking the
// transition on warehouse availability.
func (e *Executor) WithWarehouse(client *snowflake.Client) *Executor {
	e.warehouse = client
	return e
}

// Result summarizes one transition_campaigns invocation.
type Result struct {
	TransitionID string
	Transferred  int
	SkippedRows  []string
}

// Run resolves the named source and destination campaigns, then walks
// the configured transition matrix moving eligible subscribers between
// the corresponding tier groups. A missing group skips that matrix row
// with a logged warning rather than failing the run; an unhandled error
// marks the Transition row Failed and is returned to the caller.
func (e *Executor) Run(ctx context.Context, sourceCampaignName, destCampaignName string) (Result, error) {
	source, err := e.repos.Campaigns.GetByName(ctx, sourceCampaignName)
	if err != nil {
		return Result{}, fmt.Errorf("resolve source campaign %q: %w", sourceCampaignName, err)
	}
	dest, err := e.repos.Campaigns.GetByName(ctx, destCampaignName)
	if err != nil {
		return Result{}, fmt.Errorf("resolve destination campaign %q: %w", destCampaignName, err)
	}

	transitionID, err := e.repos.Transitions.LogTransition(ctx, source.ID, dest.ID, domain.TransitionRunning, 0)
	if err != nil {
		return Result{}, fmt.Errorf("create transition record: %w", err)
	}

	result := Result{TransitionID: transitionID}
	var auditRows []domain.TransitionSubscriber

	for _, row := range e.engine.Matrix() {
		if err := ctx.Err(); err != nil {
			_ = e.repos.Transitions.UpdateTransition(ctx, transitionID, domain.TransitionFailed, result.Transferred, err.Error())
			return result, err
		}

		moved, skipped, rowErr := e.runRow(ctx, source, dest, row, transitionID, &auditRows)
		if rowErr != nil {
			logger.Error("transition row failed", "source", source.Name, "dest", dest.Name, "tier", row.CurrentTier, "error", rowErr)
		}
		if skipped != "" {
			result.SkippedRows = append(result.SkippedRows, skipped)
			continue
		}
		result.Transferred += moved
	}

	if len(auditRows) > 0 {
		if err := e.repos.Transitions.BulkUpsertTransitionSubscribers(ctx, auditRows); err != nil {
			logger.Error("persist transition audit rows failed", "error", err)
		}
	}

	if err := e.repos.Transitions.UpdateTransition(ctx, transitionID, domain.TransitionComplete, result.Transferred, ""); err != nil {
		return result, fmt.Errorf("finalize transition record: %w", err)
	}
	return result, nil
}

// runRow executes one matrix row: resolve groups, fetch source members,
// apply purchase verification when required, bulk-import survivors into
// the destination group, and append audit rows. Returns the skip reason
// (non-empty) when a required group is missing.
func (e *Executor) runRow(ctx context.Context, source, dest *domain.Campaign, row domain.TransitionRule, transitionID string, audit *[]domain.TransitionSubscriber) (moved int, skipReason string, err error) {
	srcGroupName := source.Name + "_" + row.CurrentTier
	dstGroupName := dest.Name + "_" + row.NextTier

	srcGroup, err := e.repos.Groups.GetByName(ctx, srcGroupName)
	if err != nil {
		return 0, fmt.Sprintf("source group %s missing", srcGroupName), nil
	}
	dstGroup, err := e.repos.Groups.GetByName(ctx, dstGroupName)
	if err != nil {
		return 0, fmt.Sprintf("destination group %s missing", dstGroupName), nil
	}

	members, err := e.fetchAllGroupMembers(ctx, srcGroup.ID)
	if err != nil {
		return 0, "", fmt.Errorf("fetch members of %s: %w", srcGroupName, err)
	}
	if len(members) == 0 {
		return 0, "", nil
	}

	eligible := members
	if row.RequiresPurchase {
		purchaseKey := strings.ToLower(source.Name) + "_purchase"
		eligible = nil
		for _, sub := range members {
			orderID, ok := sub.CustomFields[purchaseKey]
			if !ok || orderID == "" {
				continue
			}
			valid, verr := e.dds.ValidateOrder(ctx, orderID, sub.Email)
			if verr != nil {
				logger.Error("validate order failed", "subscriber", sub.Email, "error", verr)
				continue
			}
			if !valid {
				continue
			}
			if e.warehouse != nil {
				agrees, werr := e.warehouse.CrossValidate(ctx, orderID, sub.Email, source.ProductID)
				if werr != nil {
					logger.Error("warehouse cross-validation failed", "subscriber", sub.Email, "order", orderID, "error", werr)
				} else if !agrees {
					logger.Warn("warehouse cross-validation disagrees with DDS", "subscriber", sub.Email, "order", orderID)
				}
			}
			eligible = append(eligible, sub)
		}
	}
	if len(eligible) == 0 {
		return 0, "", nil
	}

	eligible = e.applyDailyRateLimit(ctx, eligible)
	if len(eligible) == 0 {
		return 0, "", nil
	}

	if err := e.mlp.BulkImportToGroup(ctx, dstGroup.ID, eligible); err != nil {
		return 0, "", fmt.Errorf("bulk import into %s: %w", dstGroupName, err)
	}

	for _, sub := range eligible {
		*audit = append(*audit, domain.TransitionSubscriber{TransitionID: transitionID, SubscriberID: sub.ID})
	}
	return len(eligible), "", nil
}

// applyDailyRateLimit drops subscribers who have already been moved by
// maxPerSubscriberDay or more transitions in the last 24 hours, the
// oscillation guard from spec §4.4. A lookup failure is logged and the
// subscriber is kept rather than silently dropped on a transient error.
func (e *Executor) applyDailyRateLimit(ctx context.Context, subs []domain.Subscriber) []domain.Subscriber {
	if e.maxPerSubscriberDay <= 0 {
		return subs
	}
	since := time.Now().Add(-24 * time.Hour)
	kept := subs[:0:0]
	for _, sub := range subs {
		count, err := e.repos.Transitions.CountRecentForSubscriber(ctx, sub.ID, since)
		if err != nil {
			logger.Error("daily rate limit lookup failed", "subscriber", sub.Email, "error", err)
			kept = append(kept, sub)
			continue
		}
		if count >= e.maxPerSubscriberDay {
			logger.Warn("subscriber over daily transition rate cap, skipping", "subscriber", sub.Email, "count", count, "max", e.maxPerSubscriberDay)
			continue
		}
		kept = append(kept, sub)
	}
	return kept
}

// fetchAllGroupMembers pages through a group's full membership.
func (e *Executor) fetchAllGroupMembers(ctx context.Context, groupID string) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		subs, hasMore, err := e.mlp.GetGroupSubscribers(ctx, groupID, page)
		if err != nil {
			return out, err
		}
		out = append(out, subs...)
		if !hasMore {
			return out, nil
		}
		page++
	}
}
