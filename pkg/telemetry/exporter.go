// ABOUTME: Exporter factory for the metric readers and span exporters named in Config
// ABOUTME: Prometheus registers into a caller-visible registry, stdout writes to the provider output

package telemetry

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names accepted in Config.Exporters.
const (
	ExporterPrometheus = "prometheus"
	ExporterStdout     = "stdout"
)

// createMetricReaders creates one metric reader per configured exporter.
func createMetricReaders(cfg Config, reg *prometheus.Registry, out io.Writer) ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	for _, name := range cfg.Exporters {
		switch name {
		case ExporterPrometheus:
			exporter, err := otelprom.New(otelprom.WithRegisterer(reg), otelprom.WithoutScopeInfo())
			if err != nil {
				return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
			}
			readers = append(readers, exporter)

		case ExporterStdout:
			exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
			}
			readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval)))
		}
	}

	return readers, nil
}

// createTraceExporters creates span exporters. Prometheus carries no traces.
func createTraceExporters(cfg Config, out io.Writer) ([]sdktrace.SpanExporter, error) {
	var exporters []sdktrace.SpanExporter

	if cfg.HasExporter(ExporterStdout) {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}
