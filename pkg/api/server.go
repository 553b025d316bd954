// Package api exposes the dashboard and external HTTP surfaces: OIDC login,
// session introspection, workspace management, API keys, and the webhook
// proxy. Handlers return errors; the middleware translator turns them into
// the response envelope.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hallwayhq/console/pkg/config"
	"github.com/hallwayhq/console/pkg/httputil"
	"github.com/hallwayhq/console/pkg/observability"
)

// routeRegistrar is implemented by each handler group
type routeRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// Server is the dashboard API server
type Server struct {
	config  config.ServerConfig
	logger  *observability.Logger
	handler http.Handler
}

// NewServer builds the router, request middleware, and routes
func NewServer(cfg config.ServerConfig, logger *observability.Logger, metrics *observability.Metrics, tracingEnabled bool, registrars ...routeRegistrar) *Server {
	router := mux.NewRouter()
	for _, registrar := range registrars {
		registrar.RegisterRoutes(router)
	}

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		observability.HTTPMetricsMiddleware(metrics, routePattern),
	)
	handler := chain(router)

	if tracingEnabled {
		handler = otelhttp.NewHandler(handler, "console.api")
	}

	return &Server{
		config:  cfg,
		logger:  logger,
		handler: handler,
	}
}

// Handler returns the fully wrapped root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// routePattern labels metrics with the route template rather than the raw
// path, keeping cardinality bounded.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}
