// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/hallwayhq/console/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.SessionKey, sess)
//   sess := ctx.Value(contextkeys.SessionKey).(*session.UserSession)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *session.UserSession
	// Set by: middleware.Auth.WithSession (pkg/middleware/auth.go)
	// Required by: All session-protected API endpoints
	// Type: *session.UserSession
	SessionKey Key = "user_session"

	// APIKeyKey contains *apikeys.Key
	// Set by: middleware.Auth.WithAPIKey (pkg/middleware/auth.go)
	// Required by: External API endpoints authenticated by bearer key
	// Type: *apikeys.Key
	APIKeyKey Key = "api_key"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error translator
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the identity-provider user id string
	// Set by: middleware.Auth.WithSession after session resolution
	// Used by: Logger, workspace-scoped operations
	// Type: string
	UserIDKey Key = "user_id"
)

// Helper functions for type-safe context operations

// WithSession adds the resolved user session to the context
func WithSession(ctx context.Context, sess interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// WithAPIKey adds the authenticated API key record to the context
func WithAPIKey(ctx context.Context, key interface{}) context.Context {
	return context.WithValue(ctx, APIKeyKey, key)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// RequestID extracts the request ID from the context, or "" if absent
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// UserID extracts the user ID from the context, or "" if absent
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
