// Package idp is the management-API client for the external identity
// provider. It owns users, workspaces, memberships, roles, and invitations;
// this service only proxies and caches.
//
// Authentication uses OAuth2 client credentials; the token source refreshes
// tokens automatically and is safe for concurrent use.
package idp

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

	"golang.org/x/oauth2/clientcredentials"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/observability"
)

// Config holds client configuration.
type Config struct {
	// Endpoint is the provider base URL, without trailing slash.
	Endpoint string
	// ClientID/ClientSecret are management API client credentials.
	ClientID     string
	ClientSecret string
	// Resource is the audience requested for management tokens.
	Resource string
	// Timeout applies per request.
	Timeout time.Duration
}

// Client calls the identity provider's management API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewClient creates a management API client. The underlying HTTP client
// injects client-credentials tokens on every request.
func NewClient(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Client {
	ccCfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.Endpoint + "/oidc/token",
	}
	if cfg.Resource != "" {
		ccCfg.EndpointParams = url.Values{"resource": {cfg.Resource}}
	}

	httpClient := ccCfg.Client(context.Background())
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	} else {
		httpClient.Timeout = 10 * time.Second
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}
}

// Ping checks provider reachability for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/status", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}
	return nil
}

// GetUser fetches a user by provider id.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	if err := c.do(ctx, "get_user", http.MethodGet, "/api/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserOrganizations fetches every membership edge for a user.
func (c *Client) GetUserOrganizations(ctx context.Context, userID string) ([]UserOrganization, error) {
	var memberships []UserOrganization
	path := "/api/users/" + url.PathEscape(userID) + "/organizations"
	if err := c.do(ctx, "get_user_organizations", http.MethodGet, path, nil, &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}

// GetOrganization fetches a workspace by id.
func (c *Client) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	var org Organization
	if err := c.do(ctx, "get_organization", http.MethodGet, "/api/organizations/"+url.PathEscape(orgID), nil, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// CreateOrganization creates a workspace.
func (c *Client) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*Organization, error) {
	var org Organization
	if err := c.do(ctx, "create_organization", http.MethodPost, "/api/organizations", req, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// UpdateOrganization patches a workspace.
func (c *Client) UpdateOrganization(ctx context.Context, orgID string, req UpdateOrganizationRequest) (*Organization, error) {
	var org Organization
	path := "/api/organizations/" + url.PathEscape(orgID)
	if err := c.do(ctx, "update_organization", http.MethodPatch, path, req, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// DeleteOrganization deletes a workspace.
func (c *Client) DeleteOrganization(ctx context.Context, orgID string) error {
	return c.do(ctx, "delete_organization", http.MethodDelete, "/api/organizations/"+url.PathEscape(orgID), nil, nil)
}

// ListMembers lists workspace members with their role names.
func (c *Client) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	var members []Member
	path := "/api/organizations/" + url.PathEscape(orgID) + "/users"
	if err := c.do(ctx, "list_members", http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// AddMember adds a user to a workspace with the given roles.
func (c *Client) AddMember(ctx context.Context, orgID, userID string, roleNames []string) error {
	path := "/api/organizations/" + url.PathEscape(orgID) + "/users"
	body := map[string]interface{}{
		"user_id":    userID,
		"role_names": roleNames,
	}
	return c.do(ctx, "add_member", http.MethodPost, path, body, nil)
}

// RemoveMember removes a user from a workspace.
func (c *Client) RemoveMember(ctx context.Context, orgID, userID string) error {
	path := "/api/organizations/" + url.PathEscape(orgID) + "/users/" + url.PathEscape(userID)
	return c.do(ctx, "remove_member", http.MethodDelete, path, nil, nil)
}

// ReplaceMemberRoles replaces a member's workspace roles wholesale.
func (c *Client) ReplaceMemberRoles(ctx context.Context, orgID, userID string, roleNames []string) error {
	path := "/api/organizations/" + url.PathEscape(orgID) + "/users/" + url.PathEscape(userID) + "/roles"
	body := map[string]interface{}{"role_names": roleNames}
	return c.do(ctx, "replace_member_roles", http.MethodPut, path, body, nil)
}

// CreateInvitation creates a provider-side invitation.
func (c *Client) CreateInvitation(ctx context.Context, req CreateInvitationRequest) (*Invitation, error) {
	var inv Invitation
	if err := c.do(ctx, "create_invitation", http.MethodPost, "/api/organization-invitations", req, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvitation fetches one invitation.
func (c *Client) GetInvitation(ctx context.Context, invitationID string) (*Invitation, error) {
	var inv Invitation
	path := "/api/organization-invitations/" + url.PathEscape(invitationID)
	if err := c.do(ctx, "get_invitation", http.MethodGet, path, nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvitations lists invitations for a workspace.
func (c *Client) ListInvitations(ctx context.Context, orgID string) ([]Invitation, error) {
	var invs []Invitation
	path := "/api/organization-invitations?organization_id=" + url.QueryEscape(orgID)
	if err := c.do(ctx, "list_invitations", http.MethodGet, path, nil, &invs); err != nil {
		return nil, err
	}
	return invs, nil
}

// DeleteInvitation revokes a provider-side invitation.
func (c *Client) DeleteInvitation(ctx context.Context, invitationID string) error {
	path := "/api/organization-invitations/" + url.PathEscape(invitationID)
	return c.do(ctx, "delete_invitation", http.MethodDelete, path, nil, nil)
}

// providerError is the provider's error envelope.
type providerError struct {
	Message string `json:"message"`
}

// do executes one management API call and decodes the response into out.
// Provider statuses are mapped onto the service error taxonomy; transport
// failures surface as service-unavailable so callers can degrade.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.IdPRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countRequest(operation, "transport_error")
		return apperr.Wrap(apperr.KindServiceUnavailable, "identity provider unreachable", err)
	}
	defer resp.Body.Close()

	c.countRequest(operation, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapError(operation, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) countRequest(operation, status string) {
	if c.metrics != nil {
		c.metrics.IdPRequestsTotal.WithLabelValues(operation, status).Inc()
	}
}

// mapError translates a provider error status onto the service taxonomy.
func (c *Client) mapError(operation string, resp *http.Response) error {
	var pe providerError
	// Body may not be JSON; the status code is the contract.
	_ = json.NewDecoder(resp.Body).Decode(&pe)

	message := pe.Message
	if message == "" {
		message = fmt.Sprintf("identity provider returned status %d", resp.StatusCode)
	}

	c.logger.WithField("operation", operation).
		WithField("status", resp.StatusCode).
		Debugf("identity provider error: %s", message)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperr.NotFound(message)
	case http.StatusConflict:
		return apperr.Conflict(message)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return apperr.BadRequest(message)
	case http.StatusTooManyRequests:
		return apperr.RateLimited("identity provider rate limit exceeded")
	default:
		if resp.StatusCode >= http.StatusInternalServerError {
			return apperr.ServiceUnavailable("identity provider error")
		}
		// 401/403 from the provider means our management credentials are
		// broken, not the caller's fault.
		return apperr.Internal(fmt.Errorf("identity provider rejected management call %s: status %d: %s", operation, resp.StatusCode, message))
	}
}
