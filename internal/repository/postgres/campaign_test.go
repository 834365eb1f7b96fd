package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestCampaignRepoGetByName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepo(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "product_id", "artist", "album", "year", "created_at", "updated_at"}).
		AddRow("c1", "2026_ARTIST_ALBUM", "p1", "Artist", "Album", 2026, now, now)
	mock.ExpectQuery("SELECT id, name, product_id, artist, album, year, created_at, updated_at").
		WithArgs("2026_ARTIST_ALBUM").WillReturnRows(rows)

	c, err := repo.GetByName(context.Background(), "2026_ARTIST_ALBUM")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoGetByNameNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepo(db)

	mock.ExpectQuery("SELECT id, name, product_id, artist, album, year, created_at, updated_at").
		WithArgs("MISSING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "product_id", "artist", "album", "year", "created_at", "updated_at"}))

	_, err := repo.GetByName(context.Background(), "MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignRepoUpsertBulk(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO campaigns").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UpsertBulk(context.Background(), []domain.Campaign{
		{ID: "c1", Name: "2026_A_B"},
		{ID: "c2", Name: "2026_C_D"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoUpsertBulkRetriesOnDeadlock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").WillReturnError(assertDeadlockErr{})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UpsertBulk(context.Background(), []domain.Campaign{{ID: "c1", Name: "2026_A_B"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type assertDeadlockErr struct{}

func (assertDeadlockErr) Error() string { return "pq: deadlock detected" }

func TestCampaignRepoDeleteByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCampaignRepo(db)

	mock.ExpectExec("DELETE FROM campaigns").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
