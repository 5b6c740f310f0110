package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// requestTimeout bounds every single HTTP request independently of the
	// retry policy.
	requestTimeout = 30 * time.Second

	// retryInitialDelay is the first backoff delay; it doubles per attempt.
	retryInitialDelay = 1 * time.Second

	// maxRetries bounds retries for idempotent requests. Mutating requests
	// are never retried automatically to avoid duplicate side effects.
	maxRetries = 3
)

// transientStatuses are the response codes worth retrying an idempotent
// request for: rate limiting and transient server failures.
var transientStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// nextPageRe extracts the opaque continuation token from the Link header.
var nextPageRe = regexp.MustCompile(`page_info=([^&>]+)`)

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error (%d): %s", e.StatusCode, e.Body)
}

// Transient reports whether the error is worth retrying.
func (e *APIError) Transient() bool {
	return transientStatuses[e.StatusCode]
}

// Config carries the connection settings needed to reach the store.
type Config struct {
	StoreURL    string
	AccessToken string
	APIVersion  string
}

// Client talks to the remote Admin REST API. All calls block synchronously;
// idempotent GETs are retried with exponential backoff on transient failures.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	apiVersion string
	retryBase  time.Duration
	throttle   *throttle
	logger     *slog.Logger
}

// NewClient creates a new API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(cfg.StoreURL, "/"),
		token:      cfg.AccessToken,
		apiVersion: cfg.APIVersion,
		retryBase:  retryInitialDelay,
		throttle:   newThrottle(apiBucketCapacity, apiRefillPerSecond),
		logger:     logger,
	}
}

// endpoint builds the versioned Admin API URL for a resource path.
func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL, c.apiVersion, path)
}

// ProductQuery filters a product page fetch.
type ProductQuery struct {
	Limit        int
	UpdatedAtMin time.Time
	CreatedAtMin time.Time
	PageToken    string
}

// ProductPage is one bounded page of products plus the continuation token,
// empty when the remote signals no further pages.
type ProductPage struct {
	Products      []Product
	NextPageToken string
}

// productFields is the field projection requested for product fetches.
const productFields = "id,title,variants,images,product_type,created_at,updated_at,vendor,handle,status,options,body_html"

// FetchProducts issues exactly one GET /products.json call. Results are
// sorted by update timestamp ascending so the page's maximum timestamp is a
// safe watermark for the next fetch.
func (c *Client) FetchProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprint(q.Limit))
	params.Set("fields", productFields)

	// When following a continuation token the platform rejects any other
	// filter parameter.
	if q.PageToken != "" {
		params.Set("page_info", q.PageToken)
	} else {
		params.Set("order", "updated_at asc")
		if !q.UpdatedAtMin.IsZero() {
			params.Set("updated_at_min", q.UpdatedAtMin.UTC().Format(time.RFC3339))
		} else if !q.CreatedAtMin.IsZero() {
			params.Set("created_at_min", q.CreatedAtMin.UTC().Format(time.RFC3339))
		}
	}

	var payload struct {
		Products []Product `json:"products"`
	}
	header, err := c.get(ctx, "products.json", params, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	return &ProductPage{
		Products:      payload.Products,
		NextPageToken: parseNextPageToken(header.Get("Link")),
	}, nil
}

// OrderQuery filters an order page fetch.
type OrderQuery struct {
	Limit        int
	UpdatedAtMin time.Time
	CreatedAtMin time.Time
	PageToken    string
}

// OrderPage is one bounded page of orders plus the continuation token.
type OrderPage struct {
	Orders        []Order
	NextPageToken string
}

const orderFields = "id,name,email,created_at,updated_at,total_price,currency,customer,line_items,shipping_address,billing_address,financial_status,fulfillment_status"

// FetchOrders issues exactly one GET /orders.json call, sorted by update
// timestamp ascending, including orders of any status.
func (c *Client) FetchOrders(ctx context.Context, q OrderQuery) (*OrderPage, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprint(q.Limit))
	params.Set("fields", orderFields)

	if q.PageToken != "" {
		params.Set("page_info", q.PageToken)
	} else {
		params.Set("status", "any")
		params.Set("order", "updated_at asc")
		if !q.UpdatedAtMin.IsZero() {
			params.Set("updated_at_min", q.UpdatedAtMin.UTC().Format(time.RFC3339))
		} else if !q.CreatedAtMin.IsZero() {
			params.Set("created_at_min", q.CreatedAtMin.UTC().Format(time.RFC3339))
		}
	}

	var payload struct {
		Orders []Order `json:"orders"`
	}
	header, err := c.get(ctx, "orders.json", params, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	return &OrderPage{
		Orders:        payload.Orders,
		NextPageToken: parseNextPageToken(header.Get("Link")),
	}, nil
}

// CountProducts returns the remote product total.
func (c *Client) CountProducts(ctx context.Context) (int64, error) {
	return c.count(ctx, "products/count.json", nil)
}

// CountOrders returns the remote order total across all statuses.
func (c *Client) CountOrders(ctx context.Context) (int64, error) {
	params := url.Values{}
	params.Set("status", "any")
	return c.count(ctx, "orders/count.json", params)
}

func (c *Client) count(ctx context.Context, path string, params url.Values) (int64, error) {
	var payload struct {
		Count int64 `json:"count"`
	}
	if _, err := c.get(ctx, path, params, &payload); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", path, err)
	}
	return payload.Count, nil
}

// GetShop fetches shop info; used by the connection test.
func (c *Client) GetShop(ctx context.Context) (*Shop, error) {
	var payload struct {
		Shop Shop `json:"shop"`
	}
	if _, err := c.get(ctx, "shop.json", nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch shop info: %w", err)
	}
	return &payload.Shop, nil
}

// GetVariant fetches a single variant; needed to resolve inventory item ids.
func (c *Client) GetVariant(ctx context.Context, id int64) (*Variant, error) {
	var payload struct {
		Variant Variant `json:"variant"`
	}
	path := fmt.Sprintf("variants/%d.json", id)
	if _, err := c.get(ctx, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch variant %d: %w", id, err)
	}
	return &payload.Variant, nil
}

// ListLocations fetches the remote inventory locations.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var payload struct {
		Locations []Location `json:"locations"`
	}
	if _, err := c.get(ctx, "locations.json", nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch locations: %w", err)
	}
	return payload.Locations, nil
}

// ProductPayload is the write shape for product create/update calls.
type ProductPayload struct {
	ID          int64            `json:"id,omitempty"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Status      string           `json:"status,omitempty"`
	Variants    []VariantPayload `json:"variants,omitempty"`
}

// VariantPayload is the write shape for variant create/update calls.
type VariantPayload struct {
	ID                int64   `json:"id,omitempty"`
	Title             string  `json:"title,omitempty"`
	Price             string  `json:"price"`
	SKU               string  `json:"sku"`
	InventoryQuantity int64   `json:"inventory_quantity,omitempty"`
	Weight            float64 `json:"weight,omitempty"`
	Barcode           string  `json:"barcode,omitempty"`
}

// CreateProduct exports a new product. Not retried: mutating call.
func (c *Client) CreateProduct(ctx context.Context, p ProductPayload) (*Product, error) {
	body := map[string]ProductPayload{"product": p}
	var payload struct {
		Product Product `json:"product"`
	}
	if err := c.mutate(ctx, http.MethodPost, "products.json", body, &payload); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &payload.Product, nil
}

// UpdateProduct pushes changed product fields. Not retried: mutating call.
func (c *Client) UpdateProduct(ctx context.Context, id int64, p ProductPayload) error {
	p.ID = id
	body := map[string]ProductPayload{"product": p}
	path := fmt.Sprintf("products/%d.json", id)
	if err := c.mutate(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return nil
}

// UpdateVariant pushes changed variant fields. Not retried: mutating call.
func (c *Client) UpdateVariant(ctx context.Context, id int64, v VariantPayload) error {
	v.ID = id
	body := map[string]VariantPayload{"variant": v}
	path := fmt.Sprintf("variants/%d.json", id)
	if err := c.mutate(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("failed to update variant %d: %w", id, err)
	}
	return nil
}

// SetInventoryLevel sets the available quantity for an inventory item at a
// location. Not retried: mutating call.
func (c *Client) SetInventoryLevel(ctx context.Context, locationID, inventoryItemID, available int64) error {
	body := map[string]int64{
		"location_id":       locationID,
		"inventory_item_id": inventoryItemID,
		"available":         available,
	}
	if err := c.mutate(ctx, http.MethodPost, "inventory_levels/set.json", body, nil); err != nil {
		return fmt.Errorf("failed to set inventory level: %w", err)
	}
	return nil
}

// DownloadImage fetches raw image bytes from an absolute URL. Retried like
// any other idempotent request.
func (c *Client) DownloadImage(ctx context.Context, src string) ([]byte, error) {
	var data []byte
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(c.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: resp.Status}
			if apiErr.Transient() {
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	return data, nil
}

// get performs an idempotent GET with the retry policy and decodes the JSON
// body into result. Returns the response header for Link-based pagination.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) (http.Header, error) {
	if c.token == "" {
		return nil, fmt.Errorf("access token is not configured")
	}

	endpoint := c.endpoint(path)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var header http.Header
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(c.retryBase))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := c.throttle.wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Shopify-Access-Token", c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("request failed, will retry", "path", path, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to read response body: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
			if apiErr.Transient() {
				c.logger.Warn("transient remote error, will retry",
					"path", path, "status", resp.StatusCode, "attempt", attempt)
				return retry.RetryableError(apiErr)
			}
			return apiErr
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		header = resp.Header
		return nil
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// mutate performs a non-idempotent request exactly once.
func (c *Client) mutate(ctx context.Context, method, path string, body, result interface{}) error {
	if c.token == "" {
		return fmt.Errorf("access token is not configured")
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	if err := c.throttle.wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseNextPageToken extracts the continuation token from a Link header,
// returning "" when the header carries no next relation.
func parseNextPageToken(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	// Only the segment flagged rel="next" continues forward; the header may
	// also carry a "previous" relation with its own page_info.
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		m := nextPageRe.FindStringSubmatch(part)
		if len(m) == 2 {
			return m[1]
		}
	}
	return ""
}
