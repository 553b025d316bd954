package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/cache"
	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/idp"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/roles"
)

type fakeIdP struct {
	srv *httptest.Server

	users       map[string]idp.User
	memberships map[string][]idp.UserOrganization
	orgs        map[string]idp.Organization

	userCalls int64
	orgCalls  int64
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	f := &fakeIdP{
		users:       make(map[string]idp.User),
		memberships: make(map[string][]idp.UserOrganization),
		orgs:        make(map[string]idp.Organization),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oidc/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token", "token_type": "Bearer", "expires_in": 3600,
		})
	})
	mux.HandleFunc("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/users/"):]
		if userID, ok := strings.CutSuffix(id, "/organizations"); ok {
			json.NewEncoder(w).Encode(f.memberships[userID])
			return
		}
		atomic.AddInt64(&f.userCalls, 1)
		user, ok := f.users[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(user)
	})
	mux.HandleFunc("/api/organizations/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.orgCalls, 1)
		id := r.URL.Path[len("/api/organizations/"):]
		org, ok := f.orgs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(org)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func setupResolver(t *testing.T, provider *fakeIdP) (*Resolver, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewClient(config.CacheConfig{
		RedisURL:        "redis://" + mr.Addr(),
		UserTTL:         5 * time.Minute,
		MembershipTTL:   5 * time.Minute,
		OrganizationTTL: 15 * time.Minute,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cacheClient.Close() })

	idpClient := idp.NewClient(idp.Config{
		Endpoint:     provider.srv.URL,
		ClientID:     "m2m",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	}, observability.NewLogger(observability.ErrorLevel, nil), nil)

	resolver := NewResolver(cacheClient, idpClient, roles.Default(), observability.NewLogger(observability.ErrorLevel, nil), nil)
	return resolver, mr
}

func TestResolveZeroMemberships(t *testing.T) {
	provider := newFakeIdP(t)
	provider.users["user_1"] = idp.User{ID: "user_1", Username: "ada"}

	resolver, _ := setupResolver(t, provider)

	sess, err := resolver.Resolve(context.Background(), "user_1", "")
	require.NoError(t, err)
	assert.Empty(t, sess.Organizations)
	assert.Nil(t, sess.CurrentOrganization)
	assert.Empty(t, sess.Permissions)
}

func TestResolveComputesPermissions(t *testing.T) {
	provider := newFakeIdP(t)
	provider.users["user_1"] = idp.User{ID: "user_1", Username: "ada"}
	provider.orgs["org_a"] = idp.Organization{ID: "org_a", Name: "Acme"}
	provider.memberships["user_1"] = []idp.UserOrganization{
		{OrganizationID: "org_a", RoleNames: []string{"member"}},
	}

	resolver, _ := setupResolver(t, provider)

	sess, err := resolver.Resolve(context.Background(), "user_1", "org_a")
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentOrganization)
	assert.Equal(t, "org_a", sess.CurrentOrganization.ID)
	assert.ElementsMatch(t, []roles.Permission{
		roles.PermissionReadWorkspace,
		roles.PermissionReadMembers,
	}, sess.Permissions)
}

func TestResolveStickySelectorIgnoredWhenNotAMember(t *testing.T) {
	provider := newFakeIdP(t)
	provider.users["user_1"] = idp.User{ID: "user_1"}
	provider.orgs["org_a"] = idp.Organization{ID: "org_a", Name: "Acme"}
	provider.orgs["org_b"] = idp.Organization{ID: "org_b", Name: "Globex"}
	provider.memberships["user_1"] = []idp.UserOrganization{
		{OrganizationID: "org_a", RoleNames: []string{"admin"}},
		{OrganizationID: "org_b", RoleNames: []string{"member"}},
	}

	resolver, _ := setupResolver(t, provider)

	// The sticky cookie names an organization the user does not belong to;
	// resolution falls back to the first membership.
	sess, err := resolver.Resolve(context.Background(), "user_1", "org_elsewhere")
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentOrganization)
	assert.Equal(t, "org_a", sess.CurrentOrganization.ID)
}

func TestResolveStickySelectorPicksMembership(t *testing.T) {
	provider := newFakeIdP(t)
	provider.users["user_1"] = idp.User{ID: "user_1"}
	provider.orgs["org_a"] = idp.Organization{ID: "org_a"}
	provider.orgs["org_b"] = idp.Organization{ID: "org_b"}
	provider.memberships["user_1"] = []idp.UserOrganization{
		{OrganizationID: "org_a", RoleNames: []string{"member"}},
		{OrganizationID: "org_b", RoleNames: []string{"owner"}},
	}

	resolver, _ := setupResolver(t, provider)

	sess, err := resolver.Resolve(context.Background(), "user_1", "org_b")
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentOrganization)
	assert.Equal(t, "org_b", sess.CurrentOrganization.ID)
	assert.True(t, sess.HasPermission(roles.PermissionDeleteWorkspace))
}

func TestResolveUnknownUserIsUnauthorized(t *testing.T) {
	provider := newFakeIdP(t)
	resolver, _ := setupResolver(t, provider)

	_, err := resolver.Resolve(context.Background(), "ghost", "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestResolveSuspendedUserIsUnauthorized(t *testing.T) {
	provider := newFakeIdP(t)
	provider.users["user_1"] = idp.User{ID: "user_1", IsSuspended: true}

	resolver, _ := setupResolver(t, provider)

	_, err := resolver.Resolve(context.Background(), "user_1", "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestResolveUsesCacheOnSecondRead(t *testing.T) {
	provider := newFakeIdP(t)
	provider.users["user_1"] = idp.User{ID: "user_1"}
	provider.orgs["org_a"] = idp.Organization{ID: "org_a"}
	provider.memberships["user_1"] = []idp.UserOrganization{
		{OrganizationID: "org_a", RoleNames: []string{"member"}},
	}

	resolver, _ := setupResolver(t, provider)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "user_1", "")
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, "user_1", "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&provider.userCalls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&provider.orgCalls))
}

func TestResolveDegradesWhenCacheDown(t *testing.T) {
	provider := newFakeIdP(t)
	provider.users["user_1"] = idp.User{ID: "user_1"}
	provider.orgs["org_a"] = idp.Organization{ID: "org_a"}
	provider.memberships["user_1"] = []idp.UserOrganization{
		{OrganizationID: "org_a", RoleNames: []string{"admin"}},
	}

	resolver, mr := setupResolver(t, provider)
	mr.Close()

	sess, err := resolver.Resolve(context.Background(), "user_1", "")
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentOrganization)
	assert.Equal(t, "org_a", sess.CurrentOrganization.ID)
}
