package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader, name string) map[attribute.Distinct]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[attribute.Distinct]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range data.DataPoints {
				sums[point.Attributes.Equivalent()] = point.Value
			}
		}
	}
	return sums
}

func routeAttrs(method, route, class string) attribute.Distinct {
	set := attribute.NewSet(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", class),
	)
	return set.Equivalent()
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider, "logvault"))
	router.POST("/v1/logs/:logId/entries", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	router.GET("/v1/kek-versions/active", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	serve := func(method, path string) {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
	}
	serve(http.MethodPost, "/v1/logs/0190a5e2-0000-7000-8000-000000000001/entries")
	serve(http.MethodPost, "/v1/logs/0190a5e2-0000-7000-8000-000000000002/entries")
	serve(http.MethodGet, "/v1/kek-versions/active")
	serve(http.MethodGet, "/v1/nowhere")

	requests := collectSums(t, reader, "logvault_http_requests_total")
	assert.Equal(t, int64(2), requests[routeAttrs(http.MethodPost, "/v1/logs/:logId/entries", "2xx")])
	assert.Equal(t, int64(1), requests[routeAttrs(http.MethodGet, "/v1/kek-versions/active", "4xx")])
	assert.Equal(t, int64(1), requests[routeAttrs(http.MethodGet, unmatchedRoute, "4xx")])
	assert.Len(t, requests, 3)

	for _, value := range collectSums(t, reader, "logvault_http_requests_in_flight") {
		assert.Zero(t, value)
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{http.StatusOK, "2xx"},
		{http.StatusNoContent, "2xx"},
		{http.StatusUnprocessableEntity, "4xx"},
		{http.StatusServiceUnavailable, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusClass(tt.status))
		})
	}
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/logs/:logId/entries", routeLabel("/v1/logs/:logId/entries"))
	assert.Equal(t, unmatchedRoute, routeLabel(""))
}
