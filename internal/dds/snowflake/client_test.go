package snowflake

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Client{db: db}, mock
}

func TestLookupOrderFound(t *testing.T) {
	client, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"ORDER_ID", "EMAIL", "PRODUCT_ID", "SOLD_AT"}).
		AddRow("123", "a@x.io", "p1", time.Now())
	mock.ExpectQuery("SELECT ORDER_ID, EMAIL, PRODUCT_ID, SOLD_AT").WithArgs("123").WillReturnRows(rows)

	rec, found, err := client.LookupOrder(context.Background(), "123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a@x.io", rec.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupOrderNotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT ORDER_ID, EMAIL, PRODUCT_ID, SOLD_AT").
		WithArgs("999").
		WillReturnRows(sqlmock.NewRows([]string{"ORDER_ID", "EMAIL", "PRODUCT_ID", "SOLD_AT"}))

	_, found, err := client.LookupOrder(context.Background(), "999")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCrossValidateMatches(t *testing.T) {
	client, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"ORDER_ID", "EMAIL", "PRODUCT_ID", "SOLD_AT"}).
		AddRow("123", "a@x.io", "p1", time.Now())
	mock.ExpectQuery("SELECT ORDER_ID, EMAIL, PRODUCT_ID, SOLD_AT").WithArgs("123").WillReturnRows(rows)

	ok, err := client.CrossValidate(context.Background(), "123", "a@x.io", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCrossValidateMismatch(t *testing.T) {
	client, mock := newMockClient(t)

	rows := sqlmock.NewRows([]string{"ORDER_ID", "EMAIL", "PRODUCT_ID", "SOLD_AT"}).
		AddRow("123", "a@x.io", "p1", time.Now())
	mock.ExpectQuery("SELECT ORDER_ID, EMAIL, PRODUCT_ID, SOLD_AT").WithArgs("123").WillReturnRows(rows)

	ok, err := client.CrossValidate(context.Background(), "123", "wrong@x.io", "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}
