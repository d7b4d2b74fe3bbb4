// Package metrics defines the Prometheus metrics exported by docingest and an
// optional HTTP server exposing them on /metrics.
package metrics
