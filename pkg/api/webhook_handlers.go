package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/httputil"
	"github.com/hallwayhq/console/pkg/middleware"
	"github.com/hallwayhq/console/pkg/roles"
	"github.com/hallwayhq/console/pkg/webhooks"
)

// Event list paging. Out-of-range limits fall back to the default rather
// than erroring.
const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// WebhookHandlers proxies destination configuration and event inspection to
// the delivery service, and exposes the external publish endpoint.
type WebhookHandlers struct {
	client     *webhooks.Client
	auth       *middleware.Auth
	translator *middleware.Translator
}

// NewWebhookHandlers creates the webhook handler group
func NewWebhookHandlers(client *webhooks.Client, auth *middleware.Auth, translator *middleware.Translator) *WebhookHandlers {
	return &WebhookHandlers{
		client:     client,
		auth:       auth,
		translator: translator,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	session := func(handler middleware.Handler, required ...roles.Permission) http.HandlerFunc {
		return h.translator.Translate(h.auth.WithSession(handler, required...))
	}

	router.HandleFunc("/api/workspaces/{id}/webhooks", session(h.ListDestinations, roles.PermissionReadWebhooks)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/webhooks", session(h.CreateDestination, roles.PermissionManageWebhooks)).Methods("POST")
	router.HandleFunc("/api/workspaces/{id}/webhooks/{destID}", session(h.GetDestination, roles.PermissionReadWebhooks)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/webhooks/{destID}", session(h.UpdateDestination, roles.PermissionManageWebhooks)).Methods("PATCH")
	router.HandleFunc("/api/workspaces/{id}/webhooks/{destID}", session(h.DeleteDestination, roles.PermissionManageWebhooks)).Methods("DELETE")
	router.HandleFunc("/api/workspaces/{id}/webhooks/{destID}/enable", session(h.EnableDestination, roles.PermissionManageWebhooks)).Methods("POST")
	router.HandleFunc("/api/workspaces/{id}/webhooks/{destID}/disable", session(h.DisableDestination, roles.PermissionManageWebhooks)).Methods("POST")
	router.HandleFunc("/api/workspaces/{id}/webhooks/{destID}/events", session(h.ListDestinationEvents, roles.PermissionReadWebhooks)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/events", session(h.ListEvents, roles.PermissionReadWebhooks)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/events/{eventID}/deliveries", session(h.ListDeliveries, roles.PermissionReadWebhooks)).Methods("GET")
	router.HandleFunc("/api/workspaces/{id}/events/{eventID}/retry", session(h.RetryDelivery, roles.PermissionManageWebhooks)).Methods("POST")

	// External surface: publish as the workspace of the authenticating key.
	router.HandleFunc("/v1/publish", h.translator.Translate(h.auth.WithAPIKey(h.Publish, roles.PermissionManageWebhooks))).Methods("POST")
}

// ListDestinations lists the workspace's webhook destinations
func (h *WebhookHandlers) ListDestinations(w http.ResponseWriter, r *http.Request) error {
	destinations, err := h.client.ListDestinations(r.Context(), httputil.PathString(r, "id"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, destinations)
	return nil
}

// CreateDestination registers a new webhook destination. The tenant is
// created on first use.
func (h *WebhookHandlers) CreateDestination(w http.ResponseWriter, r *http.Request) error {
	var req CreateDestinationRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	workspaceID := httputil.PathString(r, "id")
	if err := h.client.EnsureTenant(r.Context(), workspaceID); err != nil {
		return err
	}

	destination, err := h.client.CreateDestination(r.Context(), workspaceID, webhooks.CreateDestinationRequest{
		Type:   req.Type,
		Topics: req.Topics,
		Config: req.Config,
	})
	if err != nil {
		return err
	}

	httputil.WriteData(w, http.StatusCreated, destination)
	return nil
}

// GetDestination retrieves one destination
func (h *WebhookHandlers) GetDestination(w http.ResponseWriter, r *http.Request) error {
	destination, err := h.client.GetDestination(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "destID"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, destination)
	return nil
}

// UpdateDestination patches a destination's topics or config
func (h *WebhookHandlers) UpdateDestination(w http.ResponseWriter, r *http.Request) error {
	var req UpdateDestinationRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}

	destination, err := h.client.UpdateDestination(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "destID"), webhooks.UpdateDestinationRequest{
		Topics: req.Topics,
		Config: req.Config,
	})
	if err != nil {
		return err
	}

	httputil.WriteData(w, http.StatusOK, destination)
	return nil
}

// DeleteDestination removes a destination
func (h *WebhookHandlers) DeleteDestination(w http.ResponseWriter, r *http.Request) error {
	if err := h.client.DeleteDestination(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "destID")); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// EnableDestination resumes delivery to a destination
func (h *WebhookHandlers) EnableDestination(w http.ResponseWriter, r *http.Request) error {
	if err := h.client.EnableDestination(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "destID")); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// DisableDestination pauses delivery to a destination
func (h *WebhookHandlers) DisableDestination(w http.ResponseWriter, r *http.Request) error {
	if err := h.client.DisableDestination(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "destID")); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// ListEvents lists recent events for the workspace
func (h *WebhookHandlers) ListEvents(w http.ResponseWriter, r *http.Request) error {
	events, err := h.client.ListEvents(r.Context(), httputil.PathString(r, "id"), "", eventListLimit(r))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, events)
	return nil
}

// ListDestinationEvents lists events delivered to one destination
func (h *WebhookHandlers) ListDestinationEvents(w http.ResponseWriter, r *http.Request) error {
	events, err := h.client.ListEvents(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "destID"), eventListLimit(r))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, events)
	return nil
}

func eventListLimit(r *http.Request) int {
	limit := httputil.QueryInt(r, "limit", defaultEventLimit)
	if limit < 1 || limit > maxEventLimit {
		return defaultEventLimit
	}
	return limit
}

// ListDeliveries lists delivery attempts for one event
func (h *WebhookHandlers) ListDeliveries(w http.ResponseWriter, r *http.Request) error {
	deliveries, err := h.client.ListDeliveries(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "eventID"))
	if err != nil {
		return err
	}
	httputil.WriteData(w, http.StatusOK, deliveries)
	return nil
}

// RetryDelivery requeues an event for one destination
func (h *WebhookHandlers) RetryDelivery(w http.ResponseWriter, r *http.Request) error {
	var req RetryDeliveryRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	if err := h.client.RetryDelivery(r.Context(), httputil.PathString(r, "id"), httputil.PathString(r, "eventID"), req.DestinationID); err != nil {
		return err
	}
	httputil.WriteNoContent(w)
	return nil
}

// Publish accepts an event from an external caller and forwards it to the
// delivery service under the authenticating key's workspace.
func (h *WebhookHandlers) Publish(w http.ResponseWriter, r *http.Request) error {
	var req PublishEventRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		return err
	}
	if fieldErrors := req.Validate(); len(fieldErrors) > 0 {
		return apperr.Validation(fieldErrors)
	}

	key := middleware.APIKeyFrom(r)
	result, err := h.client.Publish(r.Context(), webhooks.PublishRequest{
		TenantID:       key.OrganizationID,
		Topic:          req.Topic,
		Metadata:       req.Metadata,
		Data:           req.Data,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}

	httputil.WriteData(w, http.StatusAccepted, PublishResponse{EventID: result.EventID})
	return nil
}
