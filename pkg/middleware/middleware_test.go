package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallwayhq/console/pkg/apikeys"
	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/cache"
	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/idp"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/roles"
	"github.com/hallwayhq/console/pkg/session"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, nil)
}

type authFixture struct {
	auth       *Auth
	translator *Translator
	sessions   *session.Store
	sqlMock    sqlmock.Sqlmock
	sessionCfg config.SessionConfig
}

// newAuthFixture stands up the full session path: miniredis, a fake identity
// provider, and a mocked key store.
func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oidc/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token", "token_type": "Bearer", "expires_in": 3600,
		})
	})
	mux.HandleFunc("/api/users/user_1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(idp.User{ID: "user_1", Username: "ada"})
	})
	mux.HandleFunc("/api/users/user_1/organizations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]idp.UserOrganization{
			{OrganizationID: "org_a", RoleNames: []string{"member"}},
		})
	})
	mux.HandleFunc("/api/organizations/org_a", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(idp.Organization{ID: "org_a", Name: "Acme"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewClient(config.CacheConfig{
		RedisURL:        "redis://" + mr.Addr(),
		UserTTL:         time.Minute,
		MembershipTTL:   time.Minute,
		OrganizationTTL: time.Minute,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cacheClient.Close() })

	idpClient := idp.NewClient(idp.Config{
		Endpoint: srv.URL, ClientID: "m2m", ClientSecret: "secret", Timeout: 5 * time.Second,
	}, testLogger(), nil)

	sessionCfg := config.SessionConfig{
		CookieName:    "console_sid",
		OrgCookieName: "console_org",
		TTL:           time.Hour,
	}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := session.NewStore(cacheClient, sessionCfg)
	resolver := session.NewResolver(cacheClient, idpClient, roles.Default(), testLogger(), nil)
	validator := apikeys.NewValidator(apikeys.NewStore(db), testLogger(), nil)

	return &authFixture{
		auth:       NewAuth(sessions, resolver, validator, sessionCfg),
		translator: NewTranslator(testLogger()),
		sessions:   sessions,
		sqlMock:    mock,
		sessionCfg: sessionCfg,
	}
}

func (f *authFixture) loggedInRequest(t *testing.T, target string) *http.Request {
	t.Helper()

	record, err := f.sessions.Create(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user_1")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.AddCookie(&http.Cookie{Name: f.sessionCfg.CookieName, Value: record.ID})
	return r
}

func TestTranslateClassifiedError(t *testing.T) {
	translator := NewTranslator(testLogger())

	handler := translator.Translate(func(w http.ResponseWriter, r *http.Request) error {
		return apperr.Conflict("name already taken")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"name already taken"}`, rec.Body.String())
}

func TestTranslateUnclassifiedError(t *testing.T) {
	translator := NewTranslator(testLogger())

	handler := translator.Translate(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("dial tcp 10.0.0.5:5432: connection refused")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5", "internal detail must not leak")
}

func TestTranslatePanic(t *testing.T) {
	translator := NewTranslator(testLogger())

	handler := translator.Translate(func(w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestWithSessionNoCookie(t *testing.T) {
	f := newAuthFixture(t)

	handler := f.translator.Translate(f.auth.WithSession(func(w http.ResponseWriter, r *http.Request) error {
		t.Fatal("handler must not run")
		return nil
	}))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithSessionResolvesAndRuns(t *testing.T) {
	f := newAuthFixture(t)

	var got *session.UserSession
	handler := f.translator.Translate(f.auth.WithSession(func(w http.ResponseWriter, r *http.Request) error {
		got = SessionFrom(r)
		w.WriteHeader(http.StatusOK)
		return nil
	}, roles.PermissionReadWorkspace))

	rec := httptest.NewRecorder()
	handler(rec, f.loggedInRequest(t, "/api/session"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user_1", got.User.ID)
	assert.Equal(t, "org_a", got.CurrentOrganization.ID)
}

func TestWithSessionMissingPermission(t *testing.T) {
	f := newAuthFixture(t)

	// user_1 is a member; members cannot manage webhooks
	handler := f.translator.Translate(f.auth.WithSession(func(w http.ResponseWriter, r *http.Request) error {
		t.Fatal("handler must not run")
		return nil
	}, roles.PermissionManageWebhooks))

	rec := httptest.NewRecorder()
	handler(rec, f.loggedInRequest(t, "/api/workspaces/org_a/webhooks"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "requires permission: manage:webhooks")
}

func TestWithSessionForeignWorkspaceReadsAsNotFound(t *testing.T) {
	f := newAuthFixture(t)

	router := mux.NewRouter()
	router.HandleFunc("/api/workspaces/{id}", f.translator.Translate(f.auth.WithSession(func(w http.ResponseWriter, r *http.Request) error {
		t.Fatal("handler must not run")
		return nil
	})))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, f.loggedInRequest(t, "/api/workspaces/org_other"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWithSessionScopesToPathWorkspace(t *testing.T) {
	f := newAuthFixture(t)

	var got *session.UserSession
	router := mux.NewRouter()
	router.HandleFunc("/api/workspaces/{id}", f.translator.Translate(f.auth.WithSession(func(w http.ResponseWriter, r *http.Request) error {
		got = SessionFrom(r)
		w.WriteHeader(http.StatusOK)
		return nil
	}, roles.PermissionReadWorkspace)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, f.loggedInRequest(t, "/api/workspaces/org_a"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "org_a", got.CurrentOrganization.ID)
}

func TestWithSessionExpired(t *testing.T) {
	f := newAuthFixture(t)

	handler := f.translator.Translate(f.auth.WithSession(func(w http.ResponseWriter, r *http.Request) error {
		t.Fatal("handler must not run")
		return nil
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	r.AddCookie(&http.Cookie{Name: f.sessionCfg.CookieName, Value: "no-such-session"})

	rec := httptest.NewRecorder()
	handler(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithAPIKeyMissingBearer(t *testing.T) {
	f := newAuthFixture(t)

	handler := f.translator.Translate(f.auth.WithAPIKey(func(w http.ResponseWriter, r *http.Request) error {
		t.Fatal("handler must not run")
		return nil
	}))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/v1/publish", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWithAPIKeyListsAllMissingScopes(t *testing.T) {
	f := newAuthFixture(t)

	plaintext, keyHash, _, err := apikeys.GenerateKey()
	require.NoError(t, err)

	now := time.Now()
	f.sqlMock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "name", "key_hash", "key_preview", "scopes",
			"created_by", "last_used_at", "expires_at", "created_at", "updated_at",
		}).AddRow("key_1", "org_a", "ci key", keyHash, "console_abc12345",
			pq.StringArray{"read:api-keys"}, "user_1", nil, nil, now, now))
	f.sqlMock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	handler := f.translator.Translate(f.auth.WithAPIKey(func(w http.ResponseWriter, r *http.Request) error {
		t.Fatal("handler must not run")
		return nil
	}, roles.PermissionReadAPIKeys, roles.PermissionWriteAPIKeys, roles.PermissionManageWebhooks))

	r := httptest.NewRequest(http.MethodPost, "/v1/publish", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)

	rec := httptest.NewRecorder()
	handler(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "write:api-keys")
	assert.Contains(t, rec.Body.String(), "manage:webhooks")
}

func TestWithAPIKeyAttachesRecord(t *testing.T) {
	f := newAuthFixture(t)

	plaintext, keyHash, _, err := apikeys.GenerateKey()
	require.NoError(t, err)

	now := time.Now()
	f.sqlMock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "name", "key_hash", "key_preview", "scopes",
			"created_by", "last_used_at", "expires_at", "created_at", "updated_at",
		}).AddRow("key_1", "org_a", "ci key", keyHash, "console_abc12345",
			pq.StringArray{"read:api-keys"}, "user_1", nil, nil, now, now))
	f.sqlMock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	var got *apikeys.Key
	handler := f.translator.Translate(f.auth.WithAPIKey(func(w http.ResponseWriter, r *http.Request) error {
		got = APIKeyFrom(r)
		w.WriteHeader(http.StatusOK)
		return nil
	}, roles.PermissionReadAPIKeys))

	r := httptest.NewRequest(http.MethodPost, "/v1/api-keys/verify", nil)
	r.Header.Set("Authorization", "Bearer "+plaintext)

	rec := httptest.NewRecorder()
	handler(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "org_a", got.OrganizationID)
}
