package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallwayhq/console/pkg/apikeys"
	"github.com/hallwayhq/console/pkg/webhooks"
)

func TestListDestinations(t *testing.T) {
	f := newFixture(t)

	f.webhookMux.HandleFunc("/api/v1/tenants/org_a/destinations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]webhooks.Destination{
			{ID: "dest_1", Type: "webhook", Topics: []string{"invoice.paid"}},
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/org_a/webhooks", nil)
	req.AddCookie(f.login(t))
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)

	var destinations []webhooks.Destination
	decodeData(t, rec, &destinations)
	require.Len(t, destinations, 1)
	assert.Equal(t, "dest_1", destinations[0].ID)
}

func TestListEventsLimit(t *testing.T) {
	f := newFixture(t)

	var limits []string
	f.webhookMux.HandleFunc("/api/v1/tenants/org_a/events", func(w http.ResponseWriter, r *http.Request) {
		limits = append(limits, r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]webhooks.Event{})
	})

	cookie := f.login(t)
	for _, target := range []string{
		"/api/workspaces/org_a/events",
		"/api/workspaces/org_a/events?limit=10",
		"/api/workspaces/org_a/events?limit=9999",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.AddCookie(cookie)
		rec := f.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, []string{"50", "10", "50"}, limits, "out-of-range limits fall back to the default")
}

func TestCreateDestinationEnsuresTenant(t *testing.T) {
	f := newFixture(t)

	tenantEnsured := false
	f.webhookMux.HandleFunc("/api/v1/tenants/org_a", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		tenantEnsured = true
		w.Write([]byte("{}"))
	})
	f.webhookMux.HandleFunc("/api/v1/tenants/org_a/destinations", func(w http.ResponseWriter, r *http.Request) {
		require.True(t, tenantEnsured, "tenant must exist before destinations")
		var req webhooks.CreateDestinationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(webhooks.Destination{ID: "dest_new", Type: req.Type, Topics: req.Topics})
	})

	body := `{"type":"webhook","topics":["invoice.paid"],"config":{"url":"https://example.com/hook"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/org_a/webhooks", strings.NewReader(body))
	req.AddCookie(f.login(t))
	rec := f.do(req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var destination webhooks.Destination
	decodeData(t, rec, &destination)
	assert.Equal(t, "dest_new", destination.ID)
}

func TestCreateDestinationValidation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/org_a/webhooks", strings.NewReader(`{"topics":["x"]}`))
	req.AddCookie(f.login(t))
	rec := f.do(req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "type is required")
}

func TestDeliveryServiceFailureIsServiceUnavailable(t *testing.T) {
	f := newFixture(t)

	f.webhookMux.HandleFunc("/api/v1/tenants/org_a/destinations", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"shard down"}`, http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/org_a/webhooks", nil)
	req.AddCookie(f.login(t))
	rec := f.do(req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRetryDeliveryRequiresDestination(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/workspaces/org_a/events/evt_1/retry", strings.NewReader(`{}`))
	req.AddCookie(f.login(t))
	rec := f.do(req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "destinationId is required")
}

func TestPublishWithAPIKey(t *testing.T) {
	f := newFixture(t)

	plaintext, keyHash, _, err := apikeys.GenerateKey()
	require.NoError(t, err)

	now := time.Now()
	f.sqlMock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
		WithArgs(keyHash).
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).AddRow(
			"key_1", "org_a", "publisher", keyHash, "console_abc12345",
			pq.StringArray{"manage:webhooks"}, "user_1", nil, nil, now, now))
	f.sqlMock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	f.webhookMux.HandleFunc("/api/v1/publish", func(w http.ResponseWriter, r *http.Request) {
		var req webhooks.PublishRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "org_a", req.TenantID, "tenant comes from the key, not the body")
		assert.Equal(t, "invoice.paid", req.Topic)
		json.NewEncoder(w).Encode(webhooks.PublishResult{EventID: "evt_1"})
	})

	body := `{"topic":"invoice.paid","data":{"invoice":"inv_42"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/publish", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec := f.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp PublishResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "evt_1", resp.EventID)
}

func TestPublishRequiresScope(t *testing.T) {
	f := newFixture(t)

	plaintext, keyHash, _, err := apikeys.GenerateKey()
	require.NoError(t, err)

	now := time.Now()
	f.sqlMock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
		WithArgs(keyHash).
		WillReturnRows(sqlmock.NewRows(apiKeyColumns()).AddRow(
			"key_1", "org_a", "reader", keyHash, "console_abc12345",
			pq.StringArray{"read:webhooks"}, "user_1", nil, nil, now, now))
	f.sqlMock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"topic":"invoice.paid","data":{}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/publish", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec := f.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "manage:webhooks")
}
