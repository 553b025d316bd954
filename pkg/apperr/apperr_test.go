package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindValidation, http.StatusUnprocessableEntity},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
		{KindServiceUnavailable, http.StatusServiceUnavailable},
		{Kind("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.HTTPStatus())
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindServiceUnavailable, "identity provider unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "identity provider unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFrom(t *testing.T) {
	t.Run("typed error passes through", func(t *testing.T) {
		orig := NotFound("workspace not found")
		result := From(orig)
		assert.Same(t, orig, result)
	})

	t.Run("wrapped typed error is unwrapped", func(t *testing.T) {
		orig := Forbidden("requires permission: manage:members")
		wrapped := fmt.Errorf("checking access: %w", orig)
		result := From(wrapped)
		assert.Equal(t, KindForbidden, result.Kind)
		assert.Equal(t, orig.Message, result.Message)
	})

	t.Run("unknown error becomes internal", func(t *testing.T) {
		result := From(errors.New("boom"))
		assert.Equal(t, KindInternal, result.Kind)
		assert.Equal(t, "internal server error", result.Message)
	})
}

func TestValidationCarriesFieldErrors(t *testing.T) {
	err := Validation(map[string][]string{
		"email": {"must be a valid email address"},
		"role":  {"unknown role", "role is required"},
	})

	require.Equal(t, KindValidation, err.Kind)
	assert.Len(t, err.FieldErrors, 2)
	assert.Equal(t, []string{"must be a valid email address"}, err.FieldErrors["email"])
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("already exists"))
	assert.True(t, IsKind(err, KindConflict))
	assert.False(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(errors.New("plain"), KindConflict))
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("pq: relation does not exist"))
	assert.Equal(t, "internal server error", err.Message)
	assert.ErrorContains(t, err, "pq: relation does not exist")
}
