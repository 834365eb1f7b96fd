package guard

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sync-engine/internal/config"
	"github.com/ignite/campaign-sync-engine/internal/repository/postgres"
)

func newMockSyncRepo(t *testing.T) (*postgres.SyncRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.NewSyncRepo(db), mock
}

func TestCanContinueFalseWhenProcessingTimeExceeded(t *testing.T) {
	repo, _ := newMockSyncRepo(t)
	g := New(config.SyncConfig{MaxProcessingSeconds: 1}, repo)

	assert.True(t, g.CanContinue(time.Now()))
	assert.False(t, g.CanContinue(time.Now().Add(-2*time.Second)))
}

func TestCanContinueTrueWhenNoMemoryLimitConfigured(t *testing.T) {
	repo, _ := newMockSyncRepo(t)
	g := New(config.SyncConfig{MaxProcessingSeconds: 300}, repo)
	assert.True(t, g.CanContinue(time.Now()))
}

type fakeFlusher struct{ flushed bool }

func (f *fakeFlusher) FlushCache() { f.flushed = true }

func TestManageMemoryFlushesRegisteredClients(t *testing.T) {
	repo, _ := newMockSyncRepo(t)
	flusher := &fakeFlusher{}
	g := New(config.SyncConfig{}, repo, flusher)

	g.ManageMemory()
	assert.True(t, flusher.flushed)
}

func TestOnShutdownWritesFailedSyncRecord(t *testing.T) {
	repo, mock := newMockSyncRepo(t)
	mock.ExpectExec("INSERT INTO sync_records").WillReturnResult(sqlmock.NewResult(1, 1))

	g := New(config.SyncConfig{}, repo)
	g.CaptureError(assertErr("disk full"))

	err := g.OnShutdown(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
