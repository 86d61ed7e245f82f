// Package health provides the Checker interface and a TCP implementation
// used by pkg/dispatcher as a reachability preflight before dispatching to
// a remote worker (spec.md §4.4): dial the worker's SSH port with a bounded
// timeout and fail fast rather than start a doomed SSH run.
package health
