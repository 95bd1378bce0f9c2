package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const unmatchedRoute = "unmatched"

type httpInstruments struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// HTTPMetricsMiddleware records request counts, latencies and in-flight
// requests. Requests are labelled by method, route template and status
// class, so log ids and tenants never reach the label set. If an instrument
// cannot be created the middleware records nothing.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	inst, err := newHTTPInstruments(meterProvider.Meter(namespace), namespace)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		inst.inFlight.Add(ctx, 1)
		defer inst.inFlight.Add(ctx, -1)

		c.Next()

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", routeLabel(c.FullPath())),
			attribute.String("status_class", statusClass(c.Writer.Status())),
		)
		inst.requests.Add(ctx, 1, attrs)
		inst.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func newHTTPInstruments(meter metric.Meter, namespace string) (*httpInstruments, error) {
	requests, err := meter.Int64Counter(namespace+"_http_requests_total",
		metric.WithDescription("HTTP requests served"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(namespace+"_http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter(namespace+"_http_requests_in_flight",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, duration: duration, inFlight: inFlight}, nil
}

// routeLabel is the gin route template, or unmatchedRoute for 404s.
func routeLabel(fullPath string) string {
	if fullPath == "" {
		return unmatchedRoute
	}
	return fullPath
}

// statusClass maps 201 to "2xx".
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
