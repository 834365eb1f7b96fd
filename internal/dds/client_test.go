package dds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, loopback LoopbackQuerier) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:    server.URL,
		APIKey:     "key",
		Token:      "token",
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		ProductCodeMap: map[string]string{
			"ALBM": "Greatest Hits",
		},
	}, loopback)
	return client, server
}

func TestListProducts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/products", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		body, _ := json.Marshal([]Product{{ID: "p1", Title: "Artist Greatest Hits"}})
		_, _ = w.Write(body)
	}, nil)

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
}

func TestFindProductByTitlePattern(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal([]Product{{ID: "p1", Title: "Artist Greatest Hits"}})
		_, _ = w.Write(body)
	}, nil)

	productID, err := client.FindProductByTitlePattern(context.Background(), "Artist", "ALBM")
	require.NoError(t, err)
	assert.Equal(t, "p1", productID)
}

func TestFindProductByTitlePatternNoMatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal([]Product{{ID: "p1", Title: "Unrelated"}})
		_, _ = w.Write(body)
	}, nil)

	productID, err := client.FindProductByTitlePattern(context.Background(), "Artist", "ALBM")
	require.NoError(t, err)
	assert.Empty(t, productID)
}

func TestValidateOrder(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(orderLookup{OrderID: "123", Email: "A@X.IO"})
		_, _ = w.Write(body)
	}, nil)

	ok, err := client.ValidateOrder(context.Background(), "123", "a@x.io")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateOrderMismatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(orderLookup{OrderID: "123", Email: "other@x.io"})
		_, _ = w.Write(body)
	}, nil)

	ok, err := client.ValidateOrder(context.Background(), "123", "a@x.io")
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeLoopback struct {
	purchased bool
	orderID   string
}

func (f fakeLoopback) HasPurchased(ctx context.Context, userID, productID string) (bool, string, error) {
	return f.purchased, f.orderID, nil
}

func TestHasUserPurchasedLoopbackMode(t *testing.T) {
	client := NewClient(Config{LoopbackMode: true}, fakeLoopback{purchased: true, orderID: "order-9"})
	ok, orderID, err := client.HasUserPurchased(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "order-9", orderID)
}

func TestHasUserPurchasedRemoteMode(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"purchased":true,"order_id":"order-7"}`))
	}, nil)

	ok, orderID, err := client.HasUserPurchased(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "order-7", orderID)
}

func TestListSalesUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("unauthorized"))
	}, nil)

	_, err := client.ListSales(context.Background(), "", 0, 10)
	require.Error(t, err)
}
