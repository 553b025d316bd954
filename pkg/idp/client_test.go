package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/observability"
)

// newFakeProvider starts an httptest server that issues tokens and serves the
// given management API handlers.
func newFakeProvider(t *testing.T, handlers map[string]http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oidc/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		Endpoint:     srv.URL,
		ClientID:     "m2m",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	}, observability.NewLogger(observability.ErrorLevel, nil), nil)

	return srv, client
}

func TestGetUser(t *testing.T) {
	_, client := newFakeProvider(t, map[string]http.HandlerFunc{
		"/api/users/user_1": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(User{
				ID:           "user_1",
				Username:     "ada",
				PrimaryEmail: "ada@example.com",
			})
		},
	})

	user, err := client.GetUser(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
}

func TestGetUserNotFound(t *testing.T) {
	_, client := newFakeProvider(t, map[string]http.HandlerFunc{
		"/api/users/missing": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "user not found"})
		},
	})

	_, err := client.GetUser(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Contains(t, apperr.From(err).Message, "user not found")
}

func TestGetUserOrganizations(t *testing.T) {
	_, client := newFakeProvider(t, map[string]http.HandlerFunc{
		"/api/users/user_1/organizations": func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]UserOrganization{
				{OrganizationID: "org_a", RoleIDs: []string{"r1"}, RoleNames: []string{"admin"}},
				{OrganizationID: "org_b", RoleIDs: []string{"r2"}, RoleNames: []string{"member"}},
			})
		},
	})

	memberships, err := client.GetUserOrganizations(context.Background(), "user_1")
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	assert.Equal(t, []string{"admin"}, memberships[0].RoleNames)
}

func TestCreateOrganization(t *testing.T) {
	_, client := newFakeProvider(t, map[string]http.HandlerFunc{
		"/api/organizations": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			var req CreateOrganizationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Organization{ID: "org_new", Name: req.Name})
		},
	})

	org, err := client.CreateOrganization(context.Background(), CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "org_new", org.ID)
	assert.Equal(t, "Acme", org.Name)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind apperr.Kind
	}{
		{"conflict", http.StatusConflict, apperr.KindConflict},
		{"bad request", http.StatusBadRequest, apperr.KindBadRequest},
		{"unprocessable", http.StatusUnprocessableEntity, apperr.KindBadRequest},
		{"rate limited", http.StatusTooManyRequests, apperr.KindRateLimited},
		{"server error", http.StatusBadGateway, apperr.KindServiceUnavailable},
		{"management auth broken", http.StatusForbidden, apperr.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newFakeProvider(t, map[string]http.HandlerFunc{
				"/api/organizations/org_x": func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
				},
			})

			_, err := client.GetOrganization(context.Background(), "org_x")
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, tt.wantKind), "got %v", err)
		})
	}
}

func TestTransportErrorIsServiceUnavailable(t *testing.T) {
	srv, client := newFakeProvider(t, nil)
	srv.Close()

	_, err := client.GetUser(context.Background(), "user_1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindServiceUnavailable))
}

func TestDeleteInvitation(t *testing.T) {
	called := false
	_, client := newFakeProvider(t, map[string]http.HandlerFunc{
		"/api/organization-invitations/inv_1": func(w http.ResponseWriter, r *http.Request) {
			called = true
			require.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		},
	})

	require.NoError(t, client.DeleteInvitation(context.Background(), "inv_1"))
	assert.True(t, called)
}
