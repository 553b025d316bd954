// Package webhooks proxies webhook-destination configuration and event
// publishing to the external delivery service. The dashboard owns none of
// this data; it forwards requests and translates failures.
package webhooks

import (
	"encoding/json"
	"time"
)

// Destination is a webhook endpoint configured for one tenant (workspace).
type Destination struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Topics     []string          `json:"topics"`
	Config     map[string]string `json:"config"`
	DisabledAt *time.Time        `json:"disabled_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Event is a published event as reported by the delivery service.
type Event struct {
	ID       string            `json:"id"`
	Topic    string            `json:"topic"`
	Time     time.Time         `json:"time"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Data     json.RawMessage   `json:"data,omitempty"`
}

// Delivery is one attempt to deliver an event to a destination.
type Delivery struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	DestinationID  string    `json:"destination_id"`
	Status         string    `json:"status"`
	ResponseStatus int       `json:"response_status,omitempty"`
	AttemptedAt    time.Time `json:"attempted_at"`
}

// CreateDestinationRequest configures a new destination
type CreateDestinationRequest struct {
	Type   string            `json:"type"`
	Topics []string          `json:"topics"`
	Config map[string]string `json:"config"`
}

// UpdateDestinationRequest patches a destination. Nil fields are untouched.
type UpdateDestinationRequest struct {
	Topics []string          `json:"topics,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

// PublishRequest publishes one event to a tenant's destinations. An empty
// IdempotencyKey is filled in by the client so retried publishes never
// fan out twice.
type PublishRequest struct {
	TenantID       string            `json:"tenant_id"`
	Topic          string            `json:"topic"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Data           json.RawMessage   `json:"data"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// PublishResult identifies the accepted event
type PublishResult struct {
	EventID string `json:"event_id"`
}
