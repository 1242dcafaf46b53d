// Package server exposes poll results over HTTP.
//
// It serves a JSON snapshot of the latest record per resource, a
// Server-Sent Events stream of new records, poller lifecycle controls, an
// optional Prometheus /metrics endpoint and a /healthz probe.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
