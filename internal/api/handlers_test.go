package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sync-engine/internal/dds"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
	"github.com/ignite/campaign-sync-engine/internal/transition"
)

// fakeStore is an in-memory progress.Store, mirroring the one used in
// the sync pipeline's own tests, so handler tests don't need a database.
type fakeStore struct {
	status     domain.SyncStatusSnapshot
	stopped    bool
	checkpoint *domain.ProgressCheckpoint
	errors     []domain.ErrorQueueEntry
	locked     bool
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) SetStatus(ctx context.Context, s domain.SyncStatusSnapshot) error { f.status = s; return nil }
func (f *fakeStore) GetStatus(ctx context.Context) (domain.SyncStatusSnapshot, error) { return f.status, nil }
func (f *fakeStore) SetStopFlag(ctx context.Context) error                           { f.stopped = true; return nil }
func (f *fakeStore) ClearStopFlag(ctx context.Context) error                         { f.stopped = false; return nil }
func (f *fakeStore) IsStopped(ctx context.Context) (bool, error)                     { return f.stopped, nil }
func (f *fakeStore) SaveCheckpoint(ctx context.Context, cp domain.ProgressCheckpoint) error {
	f.checkpoint = &cp
	return nil
}
func (f *fakeStore) LoadCheckpoint(ctx context.Context) (*domain.ProgressCheckpoint, error) {
	return f.checkpoint, nil
}
func (f *fakeStore) ClearCheckpoint(ctx context.Context) error { f.checkpoint = nil; return nil }
func (f *fakeStore) EnqueueError(ctx context.Context, e domain.ErrorQueueEntry) error {
	f.errors = append(f.errors, e)
	return nil
}
func (f *fakeStore) ListErrors(ctx context.Context, limit int) ([]domain.ErrorQueueEntry, error) {
	return f.errors, nil
}
func (f *fakeStore) ClearErrors(ctx context.Context) error { f.errors = nil; return nil }
func (f *fakeStore) AcquireRunLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if f.locked {
		return false, nil
	}
	f.locked = true
	return true, nil
}
func (f *fakeStore) ReleaseRunLock(ctx context.Context) error { f.locked = false; return nil }

type fakePipeline struct {
	called chan struct{}
	err    error
}

func newFakePipeline() *fakePipeline { return &fakePipeline{called: make(chan struct{}, 1)} }

func (f *fakePipeline) Run(ctx context.Context) error {
	f.called <- struct{}{}
	return f.err
}

type fakeExecutor struct {
	result transition.Result
	err    error
	src    string
	dst    string
}

func (f *fakeExecutor) Run(ctx context.Context, src, dst string) (transition.Result, error) {
	f.src, f.dst = src, dst
	return f.result, f.err
}

func newMockGroupRepo(t *testing.T) (*postgres.GroupRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.NewGroupRepo(db), mock
}

func TestStartSyncReturns202AndRunsPipelineAsync(t *testing.T) {
	pipeline := newFakePipeline()
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	h := NewHandlers(pipeline, &fakeExecutor{}, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/start", nil)
	rec := httptest.NewRecorder()
	h.StartSync(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case <-pipeline.called:
	case <-time.After(time.Second):
		t.Fatal("pipeline.Run was not invoked")
	}
}

func TestStartSyncReturns409WhenAlreadyRunning(t *testing.T) {
	pipeline := newFakePipeline()
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	h := NewHandlers(pipeline, &fakeExecutor{}, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)
	<-h.mu // drain the slot to simulate an in-flight run

	req := httptest.NewRequest(http.MethodPost, "/api/sync/start", nil)
	rec := httptest.NewRecorder()
	h.StartSync(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetSyncStatusReturnsStoredSnapshot(t *testing.T) {
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	require.NoError(t, store.SetStatus(context.Background(), domain.SyncStatusSnapshot{State: domain.StateRunning, Stage: 3, Message: "syncing groups"}))

	h := NewHandlers(newFakePipeline(), &fakeExecutor{}, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	rec := httptest.NewRecorder()
	h.GetSyncStatus(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var snap domain.SyncStatusSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, domain.StateRunning, snap.State)
	assert.Equal(t, 3, snap.Stage)
}

func TestTransitionCampaignsRejectsMissingFields(t *testing.T) {
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	h := NewHandlers(newFakePipeline(), &fakeExecutor{}, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transition", strings.NewReader(`{"source_campaign":""}`))
	rec := httptest.NewRecorder()
	h.TransitionCampaigns(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionCampaignsDelegatesToExecutor(t *testing.T) {
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	exec := &fakeExecutor{result: transition.Result{TransitionID: "t-1", Transferred: 5}}
	h := NewHandlers(newFakePipeline(), exec, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transition", strings.NewReader(`{"source_campaign":"2026_A_B","destination_campaign":"2027_A_B"}`))
	rec := httptest.NewRecorder()
	h.TransitionCampaigns(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026_A_B", exec.src)
	assert.Equal(t, "2027_A_B", exec.dst)

	var result transition.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, 5, result.Transferred)
}

func TestClearErrorsDelegatesToStore(t *testing.T) {
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	require.NoError(t, store.EnqueueError(context.Background(), domain.ErrorQueueEntry{Kind: "sync", Message: "boom"}))

	h := NewHandlers(newFakePipeline(), &fakeExecutor{}, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/errors/clear", nil)
	rec := httptest.NewRecorder()
	h.ClearErrors(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	entries, err := store.ListErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRoutesRequireBearerTokenWhenConfigured(t *testing.T) {
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	h := NewHandlers(newFakePipeline(), &fakeExecutor{}, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)
	router := SetupRoutes(h, "secret")

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sync/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sync/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestHealthCheckNeedsNoAuth(t *testing.T) {
	groups, _ := newMockGroupRepo(t)
	store := newFakeStore()
	h := NewHandlers(newFakePipeline(), &fakeExecutor{}, store, mlp.NewClient(mlp.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), dds.NewClient(dds.Config{BaseURL: "http://unused", APIKey: "k", Timeout: time.Second}, nil), groups, nil)
	router := SetupRoutes(h, "secret")

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
