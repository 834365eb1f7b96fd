// Package mlp is the provider client for the marketing-list provider:
// authenticated HTTP, cursor pagination, rate-limit honouring, and a
// response cache for idempotent GETs. Its request idiom (doRequest +
// {metadata,payload} envelope, bearer auth) is adapted from the teacher's
// Ongage client, generalized to the group/subscriber/field/campaign
// endpoints this spec needs that Ongage itself does not expose.
package mlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/pkg/apperror"
	"github.com/ignite/campaign-sync-engine/internal/pkg/httpretry"
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MinInterval   time.Duration
	CacheTTL      time.Duration
	VerifyPolls   int
	VerifyDelay   time.Duration
}

// Client is the MLP provider client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
	cache      *responseCache
	budget     *rateBudget

	verifyPolls int
	verifyDelay time.Duration
}

// NewClient builds a Client. redisClient may be nil, in which case the
// X-RateLimit headers are not tracked at all and only the minimum
// request spacing (MinInterval) is enforced.
func NewClient(cfg Config, redisClient *redis.Client) *Client {
	retryClient := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout}, cfg.MaxRetries)
	retryClient.SetLinearBackoff(time.Second)

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	verifyPolls := cfg.VerifyPolls
	if verifyPolls == 0 {
		verifyPolls = 5
	}
	verifyDelay := cfg.VerifyDelay
	if verifyDelay == 0 {
		verifyDelay = 2 * time.Second
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		httpClient:  retryClient,
		cache:       newResponseCache(ttl),
		budget:      newRateBudget(redisClient, "mlp:ratelimit:budget", cfg.MinInterval),
		verifyPolls: verifyPolls,
		verifyDelay: verifyDelay,
	}
}

// SetHTTPClient overrides the HTTP transport, for tests.
func (c *Client) SetHTTPClient(doer httpretry.HTTPDoer) { c.httpClient = doer }

// doRequest performs an authenticated request and returns the decoded
// payload envelope's raw payload bytes. GET requests are served from and
// populate the response cache; any mutating request drops every cached
// response.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	cacheKey := method + " " + endpoint
	if method == http.MethodGet {
		if cached, ok := c.cache.get(cacheKey); ok {
			return cached, nil
		}
	}

	if err := c.budget.waitForBudget(ctx); err != nil {
		return nil, apperror.Wrap(apperror.Cancelled, err, "waiting for rate-limit budget")
	}
	if err := c.budget.waitMinInterval(ctx); err != nil {
		return nil, apperror.Wrap(apperror.Cancelled, err, "waiting for min request interval")
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, err, "marshal request body")
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.WrapAPI(apperror.Transport, method, endpoint, 0, err)
	}
	defer resp.Body.Close()

	c.observeRateLimitHeaders(ctx, resp)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Wrap(apperror.Transport, err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == 401 || resp.StatusCode == 403 {
			return nil, apperror.WrapAPI(apperror.Authentication, method, endpoint, resp.StatusCode, fmt.Errorf("%s", respBody))
		}
		return nil, apperror.WrapAPI(apperror.Classify(resp.StatusCode), method, endpoint, resp.StatusCode, fmt.Errorf("%s", respBody))
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, apperror.Wrap(apperror.Transport, err, "parse response envelope")
	}
	if env.Metadata.Error {
		return nil, apperror.WrapAPI(apperror.Client, method, endpoint, resp.StatusCode, fmt.Errorf("%s", env.Metadata.Message))
	}

	if method == http.MethodGet {
		c.cache.set(cacheKey, env.Payload)
	} else {
		c.cache.flush()
	}

	return env.Payload, nil
}

func resourcePrefix(endpoint string) string {
	for i := len(endpoint) - 1; i >= 0; i-- {
		if endpoint[i] == '/' {
			return endpoint[:i+1]
		}
	}
	return endpoint
}

func (c *Client) observeRateLimitHeaders(ctx context.Context, resp *http.Response) {
	remainingHeader := resp.Header.Get("X-RateLimit-Remaining")
	resetHeader := resp.Header.Get("X-RateLimit-Reset")
	if remainingHeader == "" || resetHeader == "" {
		return
	}
	remaining, err := strconv.Atoi(remainingHeader)
	if err != nil {
		return
	}
	resetSeconds, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil {
		return
	}
	c.budget.observe(ctx, remaining, time.Now().Add(time.Duration(resetSeconds)*time.Second))
}

// ListGroups returns every upstream group.
func (c *Client) ListGroups(ctx context.Context) ([]domain.Group, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/v1/groups", nil)
	if err != nil {
		return nil, err
	}
	var wire []GroupWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, apperror.Wrap(apperror.Transport, err, "parse groups")
	}
	groups := make([]domain.Group, 0, len(wire))
	for _, g := range wire {
		groups = append(groups, domain.Group{ID: g.ID, GroupName: g.Name})
	}
	return groups, nil
}

// CreateGroup creates a new upstream group with the given name.
func (c *Client) CreateGroup(ctx context.Context, name string) (domain.Group, error) {
	payload, err := c.doRequest(ctx, http.MethodPost, "/v1/groups", map[string]string{"name": name})
	if err != nil {
		return domain.Group{}, err
	}
	var wire GroupWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.Group{}, apperror.Wrap(apperror.Transport, err, "parse created group")
	}
	return domain.Group{ID: wire.ID, GroupName: wire.Name}, nil
}

// ListFields returns every upstream custom field.
func (c *Client) ListFields(ctx context.Context) ([]domain.Field, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/v1/fields", nil)
	if err != nil {
		return nil, err
	}
	var wire []FieldWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, apperror.Wrap(apperror.Transport, err, "parse fields")
	}
	fields := make([]domain.Field, 0, len(wire))
	for _, f := range wire {
		fields = append(fields, domain.Field{ID: f.ID, FieldName: f.Name})
	}
	return fields, nil
}

// CreateField creates a new upstream custom field of the given type
// (e.g. "numeric").
func (c *Client) CreateField(ctx context.Context, name, fieldType string) (domain.Field, error) {
	payload, err := c.doRequest(ctx, http.MethodPost, "/v1/fields", map[string]string{"name": name, "type": fieldType})
	if err != nil {
		return domain.Field{}, err
	}
	var wire FieldWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.Field{}, apperror.Wrap(apperror.Transport, err, "parse created field")
	}
	return domain.Field{ID: wire.ID, FieldName: wire.Name}, nil
}

// ListCampaignsNameToID returns every upstream campaign as a name->id map.
func (c *Client) ListCampaignsNameToID(ctx context.Context) (map[string]string, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/v1/campaigns", nil)
	if err != nil {
		return nil, err
	}
	var wire []CampaignRef
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, apperror.Wrap(apperror.Transport, err, "parse campaigns")
	}
	out := make(map[string]string, len(wire))
	for _, ref := range wire {
		out[ref.Name] = ref.ID
	}
	return out, nil
}

// CreateDraftCampaign creates a draft campaign of the given type with the
// given subject line and returns its assigned id.
func (c *Client) CreateDraftCampaign(ctx context.Context, name, campaignType, subject string) (CampaignRef, error) {
	payload, err := c.doRequest(ctx, http.MethodPost, "/v1/campaigns/draft", map[string]string{
		"name": name, "type": campaignType, "subject": subject,
	})
	if err != nil {
		return CampaignRef{}, err
	}
	var wire CampaignRef
	if err := json.Unmarshal(payload, &wire); err != nil {
		return CampaignRef{}, apperror.Wrap(apperror.Transport, err, "parse draft campaign")
	}
	return wire, nil
}

// ListSubscribers enumerates subscribers cursor-page by cursor-page,
// stopping when next_cursor is absent or params.Limit has been met.
func (c *Client) ListSubscribers(ctx context.Context, params ListSubscribersParams) ([]domain.Subscriber, error) {
	var out []domain.Subscriber
	cursor := params.Cursor

	for {
		subs, next, err := c.ListSubscribersPage(ctx, cursor, 0)
		if err != nil {
			return out, err
		}
		for _, s := range subs {
			out = append(out, s)
			if params.Limit > 0 && len(out) >= params.Limit {
				return out, nil
			}
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// ListSubscribersPage fetches a single cursor-paginated page, returning the
// subscribers on that page and the cursor to resume from (empty when the
// listing is exhausted). Callers that need to checkpoint mid-listing — the
// sync pipeline's subscriber stage — should use this instead of
// ListSubscribers, which drains every page before returning.
func (c *Client) ListSubscribersPage(ctx context.Context, cursor string, limit int) ([]domain.Subscriber, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", apperror.Wrap(apperror.Cancelled, err, "listing subscribers")
	}

	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	payload, err := c.doRequest(ctx, http.MethodGet, "/v1/subscribers?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	var page subscriberPage
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, "", apperror.Wrap(apperror.Transport, err, "parse subscriber page")
	}

	out := make([]domain.Subscriber, 0, len(page.Subscribers))
	for _, s := range page.Subscribers {
		out = append(out, wireToSubscriber(s))
	}
	return out, page.NextCursor, nil
}

// GetSubscriber resolves a subscriber by MLP id or email.
func (c *Client) GetSubscriber(ctx context.Context, idOrEmail string) (domain.Subscriber, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/v1/subscribers/"+url.PathEscape(idOrEmail), nil)
	if err != nil {
		return domain.Subscriber{}, err
	}
	var wire SubscriberWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.Subscriber{}, apperror.Wrap(apperror.Transport, err, "parse subscriber")
	}
	return wireToSubscriber(wire), nil
}

// GetGroupSubscribers enumerates one page of a group's subscriber
// membership.
func (c *Client) GetGroupSubscribers(ctx context.Context, groupID string, page int) ([]domain.Subscriber, bool, error) {
	endpoint := fmt.Sprintf("/v1/groups/%s/subscribers?page=%d", url.PathEscape(groupID), page)
	payload, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	var wirePage groupSubscriberPage
	if err := json.Unmarshal(payload, &wirePage); err != nil {
		return nil, false, apperror.Wrap(apperror.Transport, err, "parse group subscriber page")
	}
	out := make([]domain.Subscriber, 0, len(wirePage.Subscribers))
	for _, s := range wirePage.Subscribers {
		out = append(out, wireToSubscriber(s))
	}
	return out, wirePage.HasMore, nil
}

// GetSubscriberGroups returns every group a subscriber currently belongs
// to.
func (c *Client) GetSubscriberGroups(ctx context.Context, subscriberID string) ([]domain.Group, error) {
	payload, err := c.doRequest(ctx, http.MethodGet, "/v1/subscribers/"+url.PathEscape(subscriberID)+"/groups", nil)
	if err != nil {
		return nil, err
	}
	var wire []GroupWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, apperror.Wrap(apperror.Transport, err, "parse subscriber groups")
	}
	groups := make([]domain.Group, 0, len(wire))
	for _, g := range wire {
		groups = append(groups, domain.Group{ID: g.ID, GroupName: g.Name})
	}
	return groups, nil
}

// AddToGroup adds a subscriber to a group.
func (c *Client) AddToGroup(ctx context.Context, subscriberID, groupID string) error {
	endpoint := fmt.Sprintf("/v1/groups/%s/members/%s", url.PathEscape(groupID), url.PathEscape(subscriberID))
	_, err := c.doRequest(ctx, http.MethodPut, endpoint, nil)
	return err
}

// RemoveFromGroup removes a subscriber from a group.
func (c *Client) RemoveFromGroup(ctx context.Context, subscriberID, groupID string) error {
	endpoint := fmt.Sprintf("/v1/groups/%s/members/%s", url.PathEscape(groupID), url.PathEscape(subscriberID))
	_, err := c.doRequest(ctx, http.MethodDelete, endpoint, nil)
	return err
}

// UpdateSubscriberFields sets one or more custom field values on a
// subscriber.
func (c *Client) UpdateSubscriberFields(ctx context.Context, subscriberID string, fields map[string]string) error {
	endpoint := "/v1/subscribers/" + url.PathEscape(subscriberID) + "/fields"
	_, err := c.doRequest(ctx, http.MethodPatch, endpoint, fields)
	return err
}

// BulkImportToGroup imports a batch of subscribers into a group in one
// call.
func (c *Client) BulkImportToGroup(ctx context.Context, groupID string, subscribers []domain.Subscriber) error {
	emails := make([]string, 0, len(subscribers))
	for _, s := range subscribers {
		emails = append(emails, s.Email)
	}
	endpoint := "/v1/groups/" + url.PathEscape(groupID) + "/bulk-import"
	_, err := c.doRequest(ctx, http.MethodPost, endpoint, map[string]interface{}{"emails": emails})
	return err
}

// VerifyTier polls up to the configured number of attempts, with a fixed
// delay between polls, until the subscriber's groups include
// expectedGroupID, or returns false once attempts are exhausted.
func (c *Client) VerifyTier(ctx context.Context, subscriberID, expectedGroupID string) (bool, error) {
	for attempt := 0; attempt < c.verifyPolls; attempt++ {
		groups, err := c.GetSubscriberGroups(ctx, subscriberID)
		if err != nil {
			return false, err
		}
		for _, g := range groups {
			if g.ID == expectedGroupID {
				return true, nil
			}
		}
		if attempt < c.verifyPolls-1 {
			select {
			case <-time.After(c.verifyDelay):
			case <-ctx.Done():
				return false, apperror.Wrap(apperror.Cancelled, ctx.Err(), "verifying tier")
			}
		}
	}
	return false, nil
}

// AbortPending is a no-op placeholder honouring spec §4.1's
// abort_pending() contract: Go's context cancellation already aborts any
// in-flight request through ctx, so there is nothing additional to track.
func (c *Client) AbortPending() {}

// HealthCheck exercises the cheapest authenticated endpoint, used by the
// validate_connections operator command.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListCampaignsNameToID(ctx)
	return err
}

// FlushCache drops every cached GET response, called by the resource
// guard under memory pressure.
func (c *Client) FlushCache() { c.cache.flush() }

func wireToSubscriber(w SubscriberWire) domain.Subscriber {
	return domain.Subscriber{
		ID:           w.ID,
		Email:        w.Email,
		Status:       domain.SubscriberStatus(w.Status),
		FirstName:    w.FirstName,
		LastName:     w.LastName,
		DisplayName:  w.DisplayName,
		CustomFields: w.CustomFields,
	}
}
