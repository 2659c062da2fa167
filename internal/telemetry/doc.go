// Package telemetry records governance decisions as OpenTelemetry spans and
// Prometheus counters.
package telemetry
