// Package middleware wires authentication, permission enforcement, and error
// translation around route handlers. Handlers return errors; Translate is the
// single place they become HTTP responses.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/hallwayhq/console/pkg/apperr"
	"github.com/hallwayhq/console/pkg/apikeys"
	"github.com/hallwayhq/console/pkg/contextkeys"
	"github.com/hallwayhq/console/pkg/httputil"
	"github.com/hallwayhq/console/pkg/observability"
	"github.com/hallwayhq/console/pkg/session"
)

// Handler is a route handler that reports failure instead of writing it
type Handler func(w http.ResponseWriter, r *http.Request) error

// Translator converts Handler errors and panics into HTTP responses
type Translator struct {
	logger *observability.Logger
}

// NewTranslator creates the error translator
func NewTranslator(logger *observability.Logger) *Translator {
	return &Translator{logger: logger}
}

// Translate adapts a Handler into an http.HandlerFunc. Classified errors map
// to their status; anything else is a 500 with a generic body, with the full
// cause logged server-side only. Panics are treated as internal errors.
func (t *Translator) Translate(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				t.logger.FromContext(r.Context()).WithFields(map[string]interface{}{
					"panic": fmt.Sprintf("%v", rec),
					"stack": string(debug.Stack()),
				}).Error("panic in request handler")
				httputil.WriteError(w, apperr.Internal(fmt.Errorf("panic: %v", rec)))
			}
		}()

		err := h(w, r)
		if err == nil {
			return
		}

		appErr := apperr.From(err)
		if appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindServiceUnavailable {
			t.logger.FromContext(r.Context()).WithError(err).Error("request failed")
		}
		httputil.WriteError(w, appErr)
	}
}

// SessionFrom returns the resolved session attached by WithSession
func SessionFrom(r *http.Request) *session.UserSession {
	sess, _ := r.Context().Value(contextkeys.SessionKey).(*session.UserSession)
	return sess
}

// APIKeyFrom returns the key record attached by WithAPIKey
func APIKeyFrom(r *http.Request) *apikeys.Key {
	key, _ := r.Context().Value(contextkeys.APIKeyKey).(*apikeys.Key)
	return key
}
