package mlp

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

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	}, nil)
	return client, server
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, payload interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"metadata":{"error":false},"payload":` + string(body) + `}`))
}

func TestListGroups(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/groups", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		writeEnvelope(t, w, []GroupWire{{ID: "g1", Name: "2025_A_B_GOLD"}})
	})

	groups, err := client.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g1", groups[0].ID)
	assert.Equal(t, "2025_A_B_GOLD", groups[0].GroupName)
}

func TestListSubscribersFollowsCursor(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		cursor := r.URL.Query().Get("cursor")
		if cursor == "" {
			writeEnvelope(t, w, subscriberPage{
				Subscribers: []SubscriberWire{{ID: "s1", Email: "a@x.io"}},
				NextCursor:  "page2",
			})
			return
		}
		writeEnvelope(t, w, subscriberPage{
			Subscribers: []SubscriberWire{{ID: "s2", Email: "b@x.io"}},
		})
	})

	subs, err := client.ListSubscribers(context.Background(), ListSubscribersParams{})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "a@x.io", subs[0].Email)
	assert.Equal(t, "b@x.io", subs[1].Email)
}

func TestListSubscribersRespectsLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, subscriberPage{
			Subscribers: []SubscriberWire{{ID: "s1", Email: "a@x.io"}, {ID: "s2", Email: "b@x.io"}},
			NextCursor:  "more",
		})
	})

	subs, err := client.ListSubscribers(context.Background(), ListSubscribersParams{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestDoRequestNonRetryableClientError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"metadata":{"error":true,"message":"not found"},"payload":null}`))
	})

	_, err := client.ListGroups(context.Background())
	require.Error(t, err)
}

func TestDoRequestAuthenticationError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`unauthorized`))
	})

	_, err := client.ListGroups(context.Background())
	require.Error(t, err)
}

func TestGetRequestsAreCached(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeEnvelope(t, w, []CampaignRef{{ID: "c1", Name: "2025_A_B"}})
	})

	_, err := client.ListCampaignsNameToID(context.Background())
	require.NoError(t, err)
	_, err = client.ListCampaignsNameToID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestHealthCheck(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, []CampaignRef{})
	})
	assert.NoError(t, client.HealthCheck(context.Background()))
}
