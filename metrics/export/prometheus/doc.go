// Package prometheus renders engine metrics in the Prometheus text
// exposition format.
//
// Counters are named vitaauth_*_total; the only histogram is
// vitaauth_authenticate_latency_seconds. Nothing is registered globally;
// callers mount [Exporter.Handler] where they like.
package prometheus
