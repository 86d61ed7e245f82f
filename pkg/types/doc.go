// Package types defines the core domain model shared across reconctl:
// targets, scans, worker nodes, telemetry, and the asset entities
// (subdomains, endpoints, websites, directories, host/port mappings,
// vulnerabilities) plus their per-scan snapshot counterparts.
package types
