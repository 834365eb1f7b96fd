// Package dds is the provider client for the digital-downloads store:
// customer/product/sales lookups over HTTPS, plus a local-loopback mode
// for "has this user purchased this product" queries the embedding host
// can answer in-process. Request idiom and retry policy mirror the MLP
// client (spec §4.2 "retry semantics identical to §4.1").
package dds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/campaign-sync-engine/internal/pkg/apperror"
	"github.com/ignite/campaign-sync-engine/internal/pkg/httpretry"
)

// LoopbackQuerier is the embedding host's in-process purchase lookup,
// used when Config.LoopbackMode is set instead of issuing an HTTP call.
// The returned order id is "" when the host doesn't track one (purchased
// is still authoritative in that case).
type LoopbackQuerier interface {
	HasPurchased(ctx context.Context, userID, productID string) (purchased bool, orderID string, err error)
}

// Config configures a Client.
type Config struct {
	BaseURL         string
	APIKey          string
	Token           string
	Timeout         time.Duration
	LoopbackTimeout time.Duration
	MaxRetries      int
	LoopbackMode    bool
	ProductCodeMap  map[string]string
}

// Client is the DDS provider client.
type Client struct {
	baseURL        string
	apiKey         string
	token          string
	httpClient     httpretry.HTTPDoer
	loopbackMode   bool
	loopbackClient *http.Client
	loopback       LoopbackQuerier
	productCodeMap map[string]string
}

// NewClient builds a Client. loopback may be nil when LoopbackMode is
// false.
func NewClient(cfg Config, loopback LoopbackQuerier) *Client {
	retryClient := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout}, cfg.MaxRetries)
	retryClient.SetLinearBackoff(time.Second)

	loopbackTimeout := cfg.LoopbackTimeout
	if loopbackTimeout == 0 {
		loopbackTimeout = 30 * time.Second
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		token:          cfg.Token,
		httpClient:     retryClient,
		loopbackMode:   cfg.LoopbackMode,
		loopbackClient: &http.Client{Timeout: loopbackTimeout},
		loopback:       loopback,
		productCodeMap: cfg.ProductCodeMap,
	}
}

// SetHTTPClient overrides the HTTP transport, for tests.
func (c *Client) SetHTTPClient(doer httpretry.HTTPDoer) { c.httpClient = doer }

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
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
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-API-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperror.WrapAPI(apperror.Transport, method, endpoint, 0, err)
	}
	defer resp.Body.Close()

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

	return respBody, nil
}

// ListCustomers returns one page of DDS customers.
func (c *Client) ListCustomers(ctx context.Context, page, size int) ([]Customer, bool, error) {
	endpoint := fmt.Sprintf("/v1/customers?page=%d&size=%d", page, size)
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	var wirePage customerPage
	if err := json.Unmarshal(body, &wirePage); err != nil {
		return nil, false, apperror.Wrap(apperror.Transport, err, "parse customer page")
	}
	return wirePage.Customers, wirePage.HasMore, nil
}

// ListProducts returns every DDS product.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/products", nil)
	if err != nil {
		return nil, err
	}
	var products []Product
	if err := json.Unmarshal(body, &products); err != nil {
		return nil, apperror.Wrap(apperror.Transport, err, "parse products")
	}
	return products, nil
}

// ListSales returns one page of sales, optionally filtered by product.
func (c *Client) ListSales(ctx context.Context, productID string, page, size int) (SalesPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if productID != "" {
		q.Set("product", productID)
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/sales?"+q.Encode(), nil)
	if err != nil {
		return SalesPage{}, err
	}
	var sp SalesPage
	if err := json.Unmarshal(body, &sp); err != nil {
		return SalesPage{}, apperror.Wrap(apperror.Transport, err, "parse sales page")
	}
	return sp, nil
}

// FindProductByTitlePattern resolves an internal short code to an upstream
// product id by first translating the code to a title via the
// operator-configurable code table, then matching it against product
// titles. Returns "" (no error) if no match is found.
func (c *Client) FindProductByTitlePattern(ctx context.Context, artist, productCode string) (string, error) {
	title, ok := c.productCodeMap[productCode]
	if !ok {
		title = productCode
	}
	pattern := strings.ToLower(artist + " " + title)

	products, err := c.ListProducts(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Title), pattern) {
			return p.ID, nil
		}
	}
	return "", nil
}

// HasUserPurchased reports whether userID has a purchase of productID, and
// the order id backing that purchase when DDS reports one (used to stamp
// the subscriber's purchase field). In loopback mode this delegates to the
// embedding host's in-process query under the configured loopback timeout
// (30s by default) rather than
// issuing a remote HTTP call.
func (c *Client) HasUserPurchased(ctx context.Context, userID, productID string) (purchased bool, orderID string, err error) {
	if c.loopbackMode {
		loopCtx, cancel := context.WithTimeout(ctx, c.loopbackClient.Timeout)
		defer cancel()
		return c.loopback.HasPurchased(loopCtx, userID, productID)
	}

	endpoint := fmt.Sprintf("/v1/customers/%s/purchased/%s", url.PathEscape(userID), url.PathEscape(productID))
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, "", err
	}
	var result struct {
		Purchased bool   `json:"purchased"`
		OrderID   string `json:"order_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, "", apperror.Wrap(apperror.Transport, err, "parse purchase check")
	}
	return result.Purchased, result.OrderID, nil
}

// ValidateOrder resolves orderID and reports whether its stored email
// equals the supplied email, case-insensitively (spec §4.2).
func (c *Client) ValidateOrder(ctx context.Context, orderID, email string) (bool, error) {
	endpoint := "/v1/orders/" + url.PathEscape(orderID)
	body, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	var order orderLookup
	if err := json.Unmarshal(body, &order); err != nil {
		return false, apperror.Wrap(apperror.Transport, err, "parse order lookup")
	}
	return strings.EqualFold(order.Email, email), nil
}

// HealthCheck exercises the cheapest authenticated endpoint, used by the
// validate_connections operator command.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListProducts(ctx)
	return err
}
