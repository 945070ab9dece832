package handler

import (
	"net/http"

	"storefront-service/prometheus"

	"github.com/labstack/echo/v4"
)

// HealthCheck handles the health check endpoint
func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": "storefront-service",
	})
}

// MetricsHandler exposes the Prometheus metrics endpoint
func MetricsHandler(c echo.Context) error {
	prometheus.GetPrometheusHandler().ServeHTTP(c.Response(), c.Request())
	return nil
}
