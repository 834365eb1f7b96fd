package syncpipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-sync-engine/internal/config"
	"github.com/ignite/campaign-sync-engine/internal/dds"
	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/mlp"
	"github.com/ignite/campaign-sync-engine/internal/tierengine"
)

func TestValidSubscribersFiltersInvalidEmail(t *testing.T) {
	p := &Pipeline{store: &fakeStore{}}
	subs := []domain.Subscriber{
		{ID: "s1", Email: "good@x.io"},
		{ID: "s2", Email: "not-an-email"},
	}

	valid := p.validSubscribers(context.Background(), subs)

	require.Len(t, valid, 1)
	assert.Equal(t, "s1", valid[0].ID)
}

func TestStageSyncCampaignsRejectsInvalidCampaignCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/campaigns/draft" {
			w.Write([]byte(`{"metadata":{"error":false},"payload":{"id":"c-album","name":"2026_ARTIST_ALBUM"}}`))
			return
		}
		w.Write([]byte(`{"metadata":{"error":false},"payload":[]}`))
	}))
	defer server.Close()

	client := mlp.NewClient(mlp.Config{BaseURL: server.URL, APIKey: "k", Timeout: 5 * time.Second}, nil)
	campaignRepo, mock := newMockCampaignRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := &fakeStore{}
	p := &Pipeline{
		cfg: &config.Config{Catalog: []config.CatalogEntry{
			{Name: "not-a-valid-code"},
			{Name: "2026_ARTIST_ALBUM"},
		}},
		mlp:   client,
		repos: Repos{Campaigns: campaignRepo},
		store: store,
		guard: &alwaysContinueGuard{},
	}

	cp := &domain.ProgressCheckpoint{Stage: 1}
	count, err := p.stageSyncCampaigns(context.Background(), cp)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, store.errors, 1)
	assert.Equal(t, "campaign-code", store.errors[0].Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceSubscriberTierMovesGroupAndStampsPurchaseField(t *testing.T) {
	var gotRemove, gotAdd, gotFields bool
	mlpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/groups/g-silver/members/s1":
			gotRemove = true
			w.Write([]byte(`{"metadata":{"error":false},"payload":{}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/v1/groups/g-silver-purchased/members/s1":
			gotAdd = true
			w.Write([]byte(`{"metadata":{"error":false},"payload":{}}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/v1/subscribers/s1/fields":
			gotFields = true
			w.Write([]byte(`{"metadata":{"error":false},"payload":{}}`))
		default:
			t.Fatalf("unexpected mlp request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer mlpServer.Close()

	ddsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"purchased":true,"order_id":"order-42"}`))
	}))
	defer ddsServer.Close()

	mlpClient := mlp.NewClient(mlp.Config{BaseURL: mlpServer.URL, APIKey: "k", Timeout: 5 * time.Second}, nil)
	ddsClient := dds.NewClient(dds.Config{BaseURL: ddsServer.URL, APIKey: "k", Timeout: 5 * time.Second}, nil)
	engine := tierengine.New(tierengine.DefaultConfig())

	p := &Pipeline{mlp: mlpClient, ddsClient: ddsClient, engine: engine}

	g := domain.Group{ID: "g-silver", CampaignID: "camp-1", Tier: "SILVER"}
	campaign := domain.Campaign{ID: "camp-1", Name: "2026_ARTIST_ALBUM", ProductID: "p1"}
	groupByCampaignTier := map[string]domain.Group{
		"camp-1|SILVER_PURCHASED": {ID: "g-silver-purchased", CampaignID: "camp-1", Tier: "SILVER_PURCHASED"},
	}
	sub := domain.Subscriber{ID: "s1", Email: "a@x.io"}

	m := p.advanceSubscriberTier(context.Background(), g, campaign, groupByCampaignTier, sub, "2026_artist_album_purchase")

	assert.True(t, gotRemove)
	assert.True(t, gotAdd)
	assert.True(t, gotFields)
	assert.Equal(t, "SILVER_PURCHASED", m.SubscriberTier)
	assert.Equal(t, "g-silver-purchased", m.GroupID)
	require.NotNil(t, m.PurchaseID)
	assert.Equal(t, "order-42", *m.PurchaseID)
}

func TestAdvanceSubscriberTierNoOpWhenTierUnchanged(t *testing.T) {
	mlpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected mlp request: %s %s", r.Method, r.URL.Path)
	}))
	defer mlpServer.Close()

	ddsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"purchased":false}`))
	}))
	defer ddsServer.Close()

	mlpClient := mlp.NewClient(mlp.Config{BaseURL: mlpServer.URL, APIKey: "k", Timeout: 5 * time.Second}, nil)
	ddsClient := dds.NewClient(dds.Config{BaseURL: ddsServer.URL, APIKey: "k", Timeout: 5 * time.Second}, nil)
	engine := tierengine.New(tierengine.DefaultConfig())

	p := &Pipeline{mlp: mlpClient, ddsClient: ddsClient, engine: engine}

	g := domain.Group{ID: "g-wood", CampaignID: "camp-1", Tier: "WOOD"}
	campaign := domain.Campaign{ID: "camp-1", Name: "2026_ARTIST_ALBUM", ProductID: "p1"}
	sub := domain.Subscriber{ID: "s1", Email: "a@x.io"}

	m := p.advanceSubscriberTier(context.Background(), g, campaign, map[string]domain.Group{}, sub, "2026_artist_album_purchase")

	assert.Equal(t, "WOOD", m.SubscriberTier)
	assert.Equal(t, "g-wood", m.GroupID)
	assert.Nil(t, m.PurchaseID)
}
