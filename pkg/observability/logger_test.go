package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hallwayhq/console/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("workspace_id", "org_123").Info("workspace created")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "workspace created", entry["msg"])
	assert.Equal(t, "org_123", entry["workspace_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Debug("not visible")
	logger.Info("not visible either")
	assert.Zero(t, buf.Len())

	logger.Warn("visible")
	assert.NotZero(t, buf.Len())
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(assert.AnError).Error("operation failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, assert.AnError.Error(), entry["error"])

	// Nil errors add nothing.
	buf.Reset()
	logger.WithError(nil).Info("fine")
	entry = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasErr := entry["error"]
	assert.False(t, hasErr)
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	ctx = contextkeys.WithUserID(ctx, "user-42")

	logger.FromContext(ctx).Info("handled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "user-42", entry["user_id"])
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}
