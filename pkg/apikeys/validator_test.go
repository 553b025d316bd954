package apikeys

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/roles"
)

func newTestValidator(t *testing.T) (*Validator, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	return NewValidator(NewStore(db), logger, nil), mock
}

func expectKeyRow(mock sqlmock.Sqlmock, keyHash string, scopes pq.StringArray, expiresAt *time.Time) {
	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
		WithArgs(keyHash).
		WillReturnRows(sqlmock.NewRows(keyColumns()).AddRow(
			"key_1", "org_a", "ci key", keyHash, "console_abc12345",
			scopes, "user_1", nil, expiresAt, now, now,
		))
}

func TestAuthenticateSuccess(t *testing.T) {
	validator, mock := newTestValidator(t)

	plaintext, keyHash, _, err := GenerateKey()
	require.NoError(t, err)

	expectKeyRow(mock, keyHash, pq.StringArray{"read:api-keys"}, nil)
	mock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := validator.Authenticate(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, "key_1", key.ID)

	// The last-used update is detached from the request
	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestAuthenticateCachesRecord(t *testing.T) {
	validator, mock := newTestValidator(t)

	plaintext, keyHash, _, err := GenerateKey()
	require.NoError(t, err)

	// One SELECT serves both calls; each call still records usage.
	expectKeyRow(mock, keyHash, pq.StringArray{"read:api-keys"}, nil)
	mock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE api_keys SET last_used_at").WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = validator.Authenticate(context.Background(), plaintext)
	require.NoError(t, err)
	_, err = validator.Authenticate(context.Background(), plaintext)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)
}

func TestAuthenticateMalformedKey(t *testing.T) {
	validator, _ := newTestValidator(t)

	_, err := validator.Authenticate(context.Background(), "not-a-console-key")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestAuthenticateUnknownKey(t *testing.T) {
	validator, mock := newTestValidator(t)

	plaintext, keyHash, _, err := GenerateKey()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM api_keys WHERE key_hash").
		WithArgs(keyHash).
		WillReturnRows(sqlmock.NewRows(keyColumns()))

	_, err = validator.Authenticate(context.Background(), plaintext)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestAuthenticateExpiredKey(t *testing.T) {
	validator, mock := newTestValidator(t)

	plaintext, keyHash, _, err := GenerateKey()
	require.NoError(t, err)

	expired := time.Now().Add(-time.Hour)
	expectKeyRow(mock, keyHash, pq.StringArray{"read:api-keys"}, &expired)

	_, err = validator.Authenticate(context.Background(), plaintext)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	assert.Contains(t, apperr.From(err).Message, "expired")
}

func TestRequireScopesReportsAllMissing(t *testing.T) {
	key := &Key{Scopes: []Scope{roles.PermissionReadAPIKeys}}

	err := RequireScopes(key,
		roles.PermissionReadAPIKeys,
		roles.PermissionWriteAPIKeys,
		roles.PermissionManageWebhooks,
	)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	// Every missing scope is named, not just the first
	msg := apperr.From(err).Message
	assert.Contains(t, msg, "write:api-keys")
	assert.Contains(t, msg, "manage:webhooks")
	assert.NotContains(t, msg, "read:api-keys,")
}

func TestRequireScopesSatisfied(t *testing.T) {
	key := &Key{Scopes: []Scope{roles.PermissionReadAPIKeys, roles.PermissionWriteAPIKeys}}
	assert.NoError(t, RequireScopes(key, roles.PermissionReadAPIKeys))
	assert.NoError(t, RequireScopes(key))
}
