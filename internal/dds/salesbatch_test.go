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

func TestSalesBatchProducerDrainsAllPages(t *testing.T) {
	pages := []SalesPage{
		{Sales: []Sale{{OrderID: "1"}}, HasMore: true},
		{Sales: []Sale{{OrderID: "2"}}, HasMore: true},
		{Sales: []Sale{{OrderID: "3"}}, HasMore: false},
	}
	call := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pages[call]
		call++
		body, _ := json.Marshal(page)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, nil)
	producer := NewSalesBatchProducer(client, "", 10)

	batches, errs := producer.Batches(context.Background(), 2)

	var collected []SalesPage
	for b := range batches {
		collected = append(collected, b)
	}
	require.NoError(t, <-errs)
	assert.Len(t, collected, 3)
	assert.Equal(t, "3", collected[2].Sales[0].OrderID)
}

func TestSalesBatchProducerStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(SalesPage{Sales: []Sale{{OrderID: "1"}}, HasMore: true})
		_, _ = w.Write(body)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, nil)
	producer := NewSalesBatchProducer(client, "", 10)

	ctx, cancel := context.WithCancel(context.Background())
	batches, errs := producer.Batches(ctx, 1)

	<-batches
	cancel()

	for range batches {
	}
	err := <-errs
	assert.Error(t, err)
}
