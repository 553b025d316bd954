package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/observability"
)

// Client talks to the delivery service's admin API
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewClient creates a delivery-service client
func NewClient(cfg config.WebhooksConfig, logger *observability.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Ping checks delivery-service connectivity
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/v1/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("delivery service returned status %d", resp.StatusCode)
	}
	return nil
}

// EnsureTenant creates the delivery-service tenant for a workspace. The
// operation is idempotent on the service side.
func (c *Client) EnsureTenant(ctx context.Context, tenantID string) error {
	path := "/api/v1/tenants/" + url.PathEscape(tenantID)
	return c.do(ctx, "ensure_tenant", http.MethodPut, path, nil, nil)
}

// DeleteTenant removes a tenant and all its destinations
func (c *Client) DeleteTenant(ctx context.Context, tenantID string) error {
	path := "/api/v1/tenants/" + url.PathEscape(tenantID)
	return c.do(ctx, "delete_tenant", http.MethodDelete, path, nil, nil)
}

// ListDestinations returns a tenant's configured destinations
func (c *Client) ListDestinations(ctx context.Context, tenantID string) ([]Destination, error) {
	destinations := []Destination{}
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/destinations"
	if err := c.do(ctx, "list_destinations", http.MethodGet, path, nil, &destinations); err != nil {
		return nil, err
	}
	return destinations, nil
}

// GetDestination returns one destination
func (c *Client) GetDestination(ctx context.Context, tenantID, destinationID string) (*Destination, error) {
	var destination Destination
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/destinations/" + url.PathEscape(destinationID)
	if err := c.do(ctx, "get_destination", http.MethodGet, path, nil, &destination); err != nil {
		return nil, err
	}
	return &destination, nil
}

// CreateDestination configures a new destination for a tenant
func (c *Client) CreateDestination(ctx context.Context, tenantID string, req CreateDestinationRequest) (*Destination, error) {
	var destination Destination
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/destinations"
	if err := c.do(ctx, "create_destination", http.MethodPost, path, req, &destination); err != nil {
		return nil, err
	}
	return &destination, nil
}

// UpdateDestination patches a destination
func (c *Client) UpdateDestination(ctx context.Context, tenantID, destinationID string, req UpdateDestinationRequest) (*Destination, error) {
	var destination Destination
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/destinations/" + url.PathEscape(destinationID)
	if err := c.do(ctx, "update_destination", http.MethodPatch, path, req, &destination); err != nil {
		return nil, err
	}
	return &destination, nil
}

// DeleteDestination removes a destination
func (c *Client) DeleteDestination(ctx context.Context, tenantID, destinationID string) error {
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/destinations/" + url.PathEscape(destinationID)
	return c.do(ctx, "delete_destination", http.MethodDelete, path, nil, nil)
}

// EnableDestination re-enables a disabled destination
func (c *Client) EnableDestination(ctx context.Context, tenantID, destinationID string) error {
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/destinations/" + url.PathEscape(destinationID) + "/enable"
	return c.do(ctx, "enable_destination", http.MethodPut, path, nil, nil)
}

// DisableDestination pauses deliveries to a destination
func (c *Client) DisableDestination(ctx context.Context, tenantID, destinationID string) error {
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/destinations/" + url.PathEscape(destinationID) + "/disable"
	return c.do(ctx, "disable_destination", http.MethodPut, path, nil, nil)
}

// ListEvents returns a tenant's most recent events, optionally filtered to
// one destination. A limit of 0 leaves paging to the service default.
func (c *Client) ListEvents(ctx context.Context, tenantID, destinationID string, limit int) ([]Event, error) {
	events := []Event{}
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/events"
	query := url.Values{}
	if destinationID != "" {
		query.Set("destination_id", destinationID)
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	if err := c.do(ctx, "list_events", http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ListDeliveries returns the delivery attempts for one event
func (c *Client) ListDeliveries(ctx context.Context, tenantID, eventID string) ([]Delivery, error) {
	deliveries := []Delivery{}
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/events/" + url.PathEscape(eventID) + "/deliveries"
	if err := c.do(ctx, "list_deliveries", http.MethodGet, path, nil, &deliveries); err != nil {
		return nil, err
	}
	return deliveries, nil
}

// RetryDelivery re-queues one failed delivery
func (c *Client) RetryDelivery(ctx context.Context, tenantID, eventID, destinationID string) error {
	path := "/api/v1/tenants/" + url.PathEscape(tenantID) + "/events/" + url.PathEscape(eventID) +
		"/destinations/" + url.PathEscape(destinationID) + "/retry"
	return c.do(ctx, "retry_delivery", http.MethodPost, path, nil, nil)
}

// Publish submits an event for fan-out to the tenant's destinations
func (c *Client) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	var result PublishResult
	if err := c.do(ctx, "publish", http.MethodPost, "/api/v1/publish", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type serviceError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to encode request", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.count(operation, "transport_error")
		return apperr.Wrap(apperr.KindServiceUnavailable, "webhook delivery service unreachable", err)
	}
	defer resp.Body.Close()

	c.count(operation, fmt.Sprintf("%d", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return c.mapError(resp)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to decode delivery service response", err)
		}
	}
	return nil
}

// mapError translates delivery-service statuses into the shared taxonomy.
func (c *Client) mapError(resp *http.Response) error {
	var svcErr serviceError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	json.Unmarshal(body, &svcErr)

	message := svcErr.Message
	if message == "" {
		message = fmt.Sprintf("webhook delivery service returned status %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFound(message)
	case resp.StatusCode == http.StatusConflict:
		return apperr.Conflict(message)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return apperr.Validation(map[string][]string{"destination": {message}})
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.RateLimited(message)
	case resp.StatusCode == http.StatusBadRequest:
		return apperr.BadRequest(message)
	case resp.StatusCode >= 500:
		return apperr.ServiceUnavailable(message)
	default:
		// 401/403 from the delivery service means our admin key is broken,
		// which is our fault, not the caller's.
		return apperr.New(apperr.KindInternal, "webhook delivery service rejected the request")
	}
}

func (c *Client) count(operation, status string) {
	if c.metrics != nil {
		c.metrics.WebhookProxyRequestsTotal.WithLabelValues(operation, status).Inc()
	}
}
