// Package observability builds the process logger and collects dispatch metrics.
//
// Dispatch metrics are kept in memory for the admin stats endpoint and mirrored
// to OpenTelemetry instruments on the global meter provider.
package observability
