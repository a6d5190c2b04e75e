package main

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newMeterProvider collects every interval and writes the result to logger.
func newMeterProvider(logger *slog.Logger, interval time.Duration) *sdkmetric.MeterProvider {
	reader := sdkmetric.NewPeriodicReader(&slogExporter{logger: logger}, sdkmetric.WithInterval(interval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

// slogExporter writes one debug record per int64 data point. The engine only
// registers int64 instruments.
type slogExporter struct {
	logger *slog.Logger
}

func (e *slogExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *slogExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *slogExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					e.point(ctx, m.Name, dp.Attributes, dp.Value)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					e.point(ctx, m.Name, dp.Attributes, dp.Value)
				}
			}
		}
	}
	return nil
}

func (e *slogExporter) point(ctx context.Context, name string, set attribute.Set, value int64) {
	args := []any{"name", name, "value", value}
	for _, kv := range set.ToSlice() {
		args = append(args, string(kv.Key), kv.Value.Emit())
	}
	e.logger.DebugContext(ctx, "metric", args...)
}

func (e *slogExporter) ForceFlush(context.Context) error { return nil }

func (e *slogExporter) Shutdown(context.Context) error { return nil }
