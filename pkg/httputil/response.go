// Package httputil provides HTTP handler utilities: the response envelope,
// JSON decoding, parameter parsing, and request-scoped middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/hallwayhq/console/pkg/apperr"
)

// Envelope is the success response shape. Every 2xx body is {"data": ...}.
type Envelope struct {
	Data interface{} `json:"data"`
}

// ErrorBody is the failure response shape.
type ErrorBody struct {
	Error       string              `json:"error"`
	FieldErrors map[string][]string `json:"fieldErrors,omitempty"`
}

// WriteData writes a success envelope with the given status code
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Data: data})
}

// WriteNoContent writes a 204 with no body
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError maps an application error to its HTTP response. Unclassified
// errors become a generic 500 body; the caller is responsible for logging
// the underlying cause.
func WriteError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Kind.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorBody{
		Error:       appErr.Message,
		FieldErrors: appErr.FieldErrors,
	})
}
