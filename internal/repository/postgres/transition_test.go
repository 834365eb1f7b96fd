package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestTransitionRepoLogAndUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransitionRepo(db)

	mock.ExpectExec("INSERT INTO transitions").
		WithArgs(sqlmock.AnyArg(), "src", "dst", domain.TransitionRunning, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := repo.LogTransition(context.Background(), "src", "dst", domain.TransitionRunning, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	mock.ExpectExec("UPDATE transitions SET status").
		WithArgs(id, domain.TransitionComplete, 42, "", true).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.UpdateTransition(context.Background(), id, domain.TransitionComplete, 42, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRepoBulkUpsertSubscribers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransitionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transition_subscribers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.BulkUpsertTransitionSubscribers(context.Background(), []domain.TransitionSubscriber{
		{TransitionID: "t1", SubscriberID: "s1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
