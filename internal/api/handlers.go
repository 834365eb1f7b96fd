// Package api is the operator HTTP control surface: start/stop the sync
// pipeline, read its status, run connection and group validation sweeps,
// trigger a campaign transition, and drain the error queue. Route setup
// and handler shape (chi + cors.Handler + httputil envelopes) are adapted
// from the teacher's internal/api package.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/campaign-sync-engine/internal/dds"
	"github.com/ignite/campaign-sync-engine/internal/dds/snowflake"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-sync-engine/internal/pkg/logger"
	"github.com/ignite/campaign-sync-engine/internal/progress"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
	"github.com/ignite/campaign-sync-engine/internal/transition"
)

// Pipeline is the subset of *syncpipeline.Pipeline the handlers need —
// narrowed to an interface so tests can substitute a fake run.
type Pipeline interface {
	Run(ctx context.Context) error
}

// Transitioner is the subset of *transition.Executor the handlers need.
type Transitioner interface {
	Run(ctx context.Context, sourceCampaignName, destCampaignName string) (transition.Result, error)
}

// Handlers holds every dependency the operator surface calls into.
type Handlers struct {
	pipeline   Pipeline
	executor   Transitioner
	store      progress.Store
	mlpClient  *mlp.Client
	ddsClient  *dds.Client
	groups     *postgres.GroupRepo
	warehouse  *snowflake.Client

	mu      chan struct{} // 1-buffered: acts as a non-blocking mutex for "one sync at a time"
}

// NewHandlers wires the operator surface to its dependencies. warehouse
// may be nil when the Snowflake cross-validation reader is disabled.
func NewHandlers(pipeline Pipeline, executor Transitioner, store progress.Store, mlpClient *mlp.Client, ddsClient *dds.Client, groups *postgres.GroupRepo, warehouse *snowflake.Client) *Handlers {
	h := &Handlers{
		pipeline:  pipeline,
		executor:  executor,
		store:     store,
		mlpClient: mlpClient,
		ddsClient: ddsClient,
		groups:    groups,
		warehouse: warehouse,
		mu:        make(chan struct{}, 1),
	}
	h.mu <- struct{}{}
	return h
}

// HealthCheck answers liveness probes.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// StartSync launches the sync pipeline in the background. It returns 409
// if a run is already in flight (the pipeline's own distributed run lock
// is the authoritative guard; this in-process lock just avoids spawning
// a doomed goroutine on every double-click).
func (h *Handlers) StartSync(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.mu:
	default:
		httputil.Error(w, http.StatusConflict, "sync already running")
		return
	}

	go func() {
		defer func() { h.mu <- struct{}{} }()
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
		defer cancel()
		if err := h.pipeline.Run(ctx); err != nil {
			logger.Error("sync pipeline run failed", "error", err)
		}
	}()

	httputil.Accepted(w, map[string]string{"status": "started"})
}

// StopSync sets the cooperative stop flag the pipeline checks between
// pages and stages.
func (h *Handlers) StopSync(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SetStopFlag(r.Context()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "stopping"})
}

// GetSyncStatus returns the last published status snapshot.
func (h *Handlers) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.GetStatus(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, status)
}

// ValidateConnections exercises the cheapest authenticated endpoint on
// every provider client.
func (h *Handlers) ValidateConnections(w http.ResponseWriter, r *http.Request) {
	result := map[string]string{}
	if err := h.mlpClient.HealthCheck(r.Context()); err != nil {
		result["mlp"] = "error: " + err.Error()
	} else {
		result["mlp"] = "ok"
	}
	if err := h.ddsClient.HealthCheck(r.Context()); err != nil {
		result["dds"] = "error: " + err.Error()
	} else {
		result["dds"] = "ok"
	}
	if h.warehouse != nil {
		if err := h.warehouse.Ping(r.Context()); err != nil {
			result["snowflake"] = "error: " + err.Error()
		} else {
			result["snowflake"] = "ok"
		}
	}
	httputil.OK(w, result)
}

// ValidateGroupsAgainstUpstream compares locally-known groups against
// MLP's current group list and removes any local group MLP no longer
// reports, per domain.Group's "deleted locally when observed missing
// upstream" invariant.
func (h *Handlers) ValidateGroupsAgainstUpstream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	local, err := h.groups.ListAll(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	upstream, err := h.mlpClient.ListGroups(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	upstreamIDs := make(map[string]struct{}, len(upstream))
	for _, g := range upstream {
		upstreamIDs[g.ID] = struct{}{}
	}

	var removed []string
	for _, g := range local {
		if _, ok := upstreamIDs[g.ID]; ok {
			continue
		}
		if err := h.groups.DeleteByID(ctx, g.ID); err != nil {
			logger.Error("delete stale group failed", "group", g.GroupName, "error", err)
			continue
		}
		removed = append(removed, g.GroupName)
	}
	httputil.OK(w, map[string]interface{}{"removed_groups": removed, "checked": len(local)})
}

// transitionRequest is the transition_campaigns request body.
type transitionRequest struct {
	SourceCampaign      string `json:"source_campaign"`
	DestinationCampaign string `json:"destination_campaign"`
}

// TransitionCampaigns runs transition_campaigns(src, dst).
func (h *Handlers) TransitionCampaigns(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.SourceCampaign = strings.TrimSpace(req.SourceCampaign)
	req.DestinationCampaign = strings.TrimSpace(req.DestinationCampaign)
	if req.SourceCampaign == "" || req.DestinationCampaign == "" {
		httputil.BadRequest(w, "source_campaign and destination_campaign are required")
		return
	}

	result, err := h.executor.Run(r.Context(), req.SourceCampaign, req.DestinationCampaign)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, result)
}

// ClearErrors drains the bounded error queue.
func (h *Handlers) ClearErrors(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearErrors(r.Context()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "cleared"})
}

// ListErrors is an operator convenience endpoint not explicitly named by
// the conceptual command list but needed to inspect the queue before
// deciding to clear it.
func (h *Handlers) ListErrors(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListErrors(r.Context(), 100)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, entries)
}
