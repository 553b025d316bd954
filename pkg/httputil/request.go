package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/hallwayhq/console/pkg/apperr"
)

// maxBodyBytes bounds request bodies; workspace payloads are small.
const maxBodyBytes = 1 << 20

// ParseJSON decodes a JSON request body into dest. Failures are BadRequest.
func ParseJSON(r *http.Request, dest interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("request body is required")
		}
		return apperr.BadRequest("invalid JSON in request body")
	}
	return nil
}

// PathString extracts a string path parameter
func PathString(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// QueryInt parses an integer query parameter with a default
func QueryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}

// BearerToken extracts a bearer credential from the Authorization header.
// Returns the empty string when the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
