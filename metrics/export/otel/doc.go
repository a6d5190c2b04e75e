// Package otel bridges engine metrics into OpenTelemetry.
//
// [NewExporter] registers observable counters on a caller-supplied meter and
// reads [vitaauth.Engine.MetricsSnapshot] once per collection. The package
// never owns a MeterProvider.
package otel
