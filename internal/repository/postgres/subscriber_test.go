package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberRepoGetByNameDecodesCustomFields(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepo(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "status", "first_name", "last_name", "display_name", "custom_fields", "created_at", "updated_at"}).
		AddRow("s1", "a@x.io", domain.SubscriberActive, "A", "X", "A X", []byte(`{"2026_A_B_PURCHASE":"1"}`), now, now)
	mock.ExpectQuery("SELECT id, email, status, first_name, last_name, display_name, custom_fields, created_at, updated_at").
		WithArgs("a@x.io").WillReturnRows(rows)

	s, err := repo.GetByName(context.Background(), "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "1", s.CustomFields["2026_A_B_PURCHASE"])
}

func TestSubscriberRepoUpsertBulk(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO subscribers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UpsertBulk(context.Background(), []domain.Subscriber{
		{ID: "s1", Email: "a@x.io", Status: domain.SubscriberActive},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriberRepoUpdateSubscriberPurchaseStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriberRepo(db)

	mock.ExpectExec("UPDATE campaign_group_subscribers SET purchase_id").
		WithArgs("a@x.io", "c1", "order-123").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpdateSubscriberPurchaseStatus(context.Background(), "a@x.io", "c1", true, "order-123")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
