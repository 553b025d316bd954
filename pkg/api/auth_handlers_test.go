package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registerDiscovery serves the OIDC discovery document for the fake provider
func (f *fixture) registerDiscovery() {
	issuer := f.idpURL + "/oidc"
	f.idpMux.HandleFunc("/oidc/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                   issuer,
			"authorization_endpoint":   issuer + "/auth",
			"token_endpoint":           issuer + "/token",
			"jwks_uri":                 issuer + "/jwks",
			"response_types_supported": []string{"code"},
		})
	})
}

func TestLoginRedirectsToProvider(t *testing.T) {
	f := newFixture(t)
	f.registerDiscovery()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oidc/auth", location.Path)
	assert.Equal(t, "console-app", location.Query().Get("client_id"))
	assert.Equal(t, "http://console.test/auth/callback", location.Query().Get("redirect_uri"))
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookie *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == stateCookieName {
			stateCookie = cookie
		}
	}
	require.NotNil(t, stateCookie, "state cookie must be set")
	assert.Equal(t, state, stateCookie.Value)
	assert.True(t, stateCookie.HttpOnly)
}

func TestCallbackRejectsStateMismatch(t *testing.T) {
	f := newFixture(t)
	f.registerDiscovery()

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=forged&code=abc", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "original"})
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "login state mismatch")
}

func TestCallbackRequiresCode(t *testing.T) {
	f := newFixture(t)
	f.registerDiscovery()

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=abc", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "abc"})
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization code")
}

func TestLoginWithoutDiscoveryIsUnavailable(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
