// Package metrics exposes OpenTelemetry instruments through a Prometheus
// registry: business operation metrics for the key and log use cases and
// HTTP request metrics for the API.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Provider owns the meter provider and the private registry scraped by the
// metrics server. The registry also carries the Go runtime and process
// collectors so a single scrape covers the whole server.
type Provider struct {
	meterProvider *metric.MeterProvider
	exporter      *promexporter.Exporter
	registry      *prometheus.Registry
}

// NewProvider builds a Provider. Instrument names are prefixed with
// namespace by the callers, not by the exporter.
func NewProvider(namespace string) (*Provider, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	processOpts := collectors.ProcessCollectorOpts{Namespace: namespace}
	if err := registry.Register(collectors.NewProcessCollector(processOpts)); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	// The exporter publishes the resource as target_info.
	res := resource.NewSchemaless(attribute.String("service.name", serviceName(namespace)))

	return &Provider{
		meterProvider: metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res)),
		exporter:      exporter,
		registry:      registry,
	}, nil
}

func serviceName(namespace string) string {
	if namespace == "" {
		return "logvault"
	}
	return namespace
}

// Handler serves the registry in the Prometheus exposition format. Errors
// while gathering are reported in the response instead of aborting it.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.meterProvider
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
