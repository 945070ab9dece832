package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counter
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Registration counter
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_register_total",
			Help: "Total number of company registrations",
		},
	)

	// Tenant operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_tenant_operations_total",
			Help: "Total number of tenant operations",
		},
		[]string{"operation"}, // "provision", "deactivate", "reactivate", etc.
	)

	// Tenant store provisioning outcomes
	ProvisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_tenant_provision_total",
			Help: "Total number of tenant store provisioning attempts",
		},
		[]string{"stage", "result"}, // stage: "create"/"schema", result: "ok"/"error"
	)

	// Routing fallback counter: tenant-scoped operations served by the
	// shared store because the request carried no tenant context
	RoutingFallbackCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_routing_fallback_total",
			Help: "Total number of tenant-scoped operations routed to the shared store for lack of tenant context",
		},
	)

	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_token", "expired_token", "db_error" etc.
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Registered tenant stores
	ActiveTenantStoresGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_active_tenant_stores",
			Help: "Number of tenant stores currently registered for routing",
		},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_info",
			Help: "Information about the storefront service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(TenantOperationCounter)
	prometheus.MustRegister(ProvisionCounter)
	prometheus.MustRegister(RoutingFallbackCounter)
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveTenantStoresGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthError records an authentication error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTenantOperation records a tenant operation
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordProvision records a tenant store provisioning outcome
func RecordProvision(stage, result string) {
	ProvisionCounter.With(prometheus.Labels{"stage": stage, "result": result}).Inc()
}

// RecordRoutingFallback records a tenant-scoped operation served by the
// shared store for lack of tenant context
func RecordRoutingFallback() {
	RoutingFallbackCounter.Inc()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
