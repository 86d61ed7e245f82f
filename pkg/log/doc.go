// Package log wraps zerolog with reconctl's child-logger conventions: a
// global Logger initialized once via Init, and WithStage/WithWorkerID/
// WithScanID/WithTool helpers for attaching the recurring scan/worker/tool
// context fields that scope a run's log lines.
package log
