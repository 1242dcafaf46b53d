// Package metrics records per-resource poll statistics.
//
// [Recorder] implements pollster.Observer. [Setup] optionally backs it with
// OpenTelemetry instruments exported to Prometheus (scraped through the
// returned handler) and to an OTLP/HTTP collector.
package metrics
