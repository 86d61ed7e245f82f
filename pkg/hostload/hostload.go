// Package hostload is the production pkg/executor.LoadSampler: real host
// CPU/memory utilization, read via gopsutil rather than hand-parsed
// /proc files, so admission control and worker telemetry see the same
// numbers the rest of the ecosystem's tooling would report.
package hostload

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sampler satisfies pkg/executor.LoadSampler and is also the telemetry
// source the worker agent heartbeats to the server (spec.md §4.9).
type Sampler struct{}

// New builds a Sampler. It holds no state: each call re-measures.
func New() Sampler { return Sampler{} }

// CPUPercent returns overall CPU utilization percent, averaged over a
// short sampling window.
func (Sampler) CPUPercent() (float64, error) {
	percents, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return 0, err
	}
	return percents[0], nil
}

// MemPercent returns overall memory utilization percent.
func (Sampler) MemPercent() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}
