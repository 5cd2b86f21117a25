// Package observability provides structured logging and metrics for the
// auth control plane.
//
// This package implements:
//   - zap logger construction from configuration (level + format)
//   - Request ID enrichment from the chi request context
//   - Prometheus counters for the authentication flows
package observability
