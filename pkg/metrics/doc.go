// Package metrics registers reconctl's Prometheus metrics (worker fleet,
// scan lifecycle, dispatch, tool execution, ingestion, and control plane
// API) plus a small health/readiness checker and a timing helper.
package metrics
