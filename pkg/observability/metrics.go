package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Cache metrics, labeled by logical key family (user, membership, organization, session)
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Identity provider metrics
	IdPRequestsTotal   *prometheus.CounterVec
	IdPRequestDuration *prometheus.HistogramVec

	// Webhook delivery-service proxy metrics
	WebhookProxyRequestsTotal *prometheus.CounterVec

	// Session metrics
	SessionResolutionsTotal   *prometheus.CounterVec
	SessionResolutionDuration prometheus.Histogram

	// API key metrics
	APIKeyAuthTotal     *prometheus.CounterVec
	APIKeyLastUsedDrops prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_family"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_family"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_errors_total",
				Help: "Total number of cache backend errors (treated as misses by readers)",
			},
			[]string{"key_family", "operation"},
		),

		IdPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_idp_requests_total",
				Help: "Total number of identity provider management API requests",
			},
			[]string{"operation", "status"},
		),
		IdPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_idp_request_duration_seconds",
				Help:    "Identity provider request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		WebhookProxyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_webhook_proxy_requests_total",
				Help: "Total number of delivery-service proxy requests",
			},
			[]string{"operation", "status"},
		),

		SessionResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_session_resolutions_total",
				Help: "Total number of session resolutions",
			},
			[]string{"outcome"},
		),
		SessionResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "console_session_resolution_duration_seconds",
				Help:    "Session resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		APIKeyAuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_api_key_auth_total",
				Help: "Total number of API key authentication attempts",
			},
			[]string{"outcome"},
		),
		APIKeyLastUsedDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "console_api_key_last_used_drops_total",
				Help: "Number of failed fire-and-forget last-used timestamp updates",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.IdPRequestsTotal,
		m.IdPRequestDuration,
		m.WebhookProxyRequestsTotal,
		m.SessionResolutionsTotal,
		m.SessionResolutionDuration,
		m.APIKeyAuthTotal,
		m.APIKeyLastUsedDrops,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The path label uses the route template, not the raw URL, so cardinality
// stays bounded; callers should mount this inside the mux router.
func HTTPMetricsMiddleware(metrics *Metrics, routePattern func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if routePattern != nil {
				if p := routePattern(r); p != "" {
					path = p
				}
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
