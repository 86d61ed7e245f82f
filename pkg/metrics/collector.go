package metrics

import (
	"context"
	"time"

	"github.com/xingrin/reconctl/pkg/loadregistry"
	"github.com/xingrin/reconctl/pkg/types"
)

// WorkerLister is the subset of pkg/workerregistry.Registry the collector
// needs to report fleet-wide worker counts by status.
type WorkerLister interface {
	ListByStatus(ctx context.Context, statuses ...types.WorkerStatus) ([]types.WorkerNode, error)
}

// LoadLister is the subset of pkg/loadregistry.Registry the collector
// needs to report per-worker CPU/mem and online counts.
type LoadLister interface {
	GetAll(ctx context.Context, workerIDs []string) (map[string]loadregistry.Telemetry, error)
}

// ScanCounter is the subset of pkg/controlplane.ScanStore the collector
// needs to report in-progress scan counts.
type ScanCounter interface {
	CountByStatus(ctx context.Context, status types.ScanStatus) (int, error)
}

var allWorkerStatuses = []types.WorkerStatus{
	types.WorkerStatusPending,
	types.WorkerStatusDeploying,
	types.WorkerStatusOnline,
	types.WorkerStatusOffline,
	types.WorkerStatusUpdating,
	types.WorkerStatusOutdated,
}

// Collector polls the worker registry, load registry, and scan store on a
// fixed interval and republishes what it finds as Prometheus gauges.
type Collector struct {
	workers WorkerLister
	loads   LoadLister
	scans   ScanCounter
	stopCh  chan struct{}
}

// NewCollector builds a Collector. scans may be nil if scan-count metrics
// aren't wanted (e.g. in a worker-only process).
func NewCollector(workers WorkerLister, loads LoadLister, scans ScanCounter) *Collector {
	return &Collector{workers: workers, loads: loads, scans: scans, stopCh: make(chan struct{})}
}

// Start begins collecting metrics on its own ticker goroutine, every 15s.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector's ticker goroutine.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectWorkerMetrics(ctx)
	c.collectScanMetrics(ctx)
}

func (c *Collector) collectWorkerMetrics(ctx context.Context) {
	workers, err := c.workers.ListByStatus(ctx, allWorkerStatuses...)
	if err != nil {
		return
	}

	counts := make(map[types.WorkerStatus]int, len(allWorkerStatuses))
	ids := make([]string, 0, len(workers))
	for _, w := range workers {
		counts[w.Status]++
		ids = append(ids, w.ID)
	}
	for _, status := range allWorkerStatuses {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	loads, err := c.loads.GetAll(ctx, ids)
	if err != nil {
		return
	}
	WorkersOnline.Set(float64(len(loads)))
	for workerID, t := range loads {
		WorkerLoadCPU.WithLabelValues(workerID).Set(t.CPUPercent)
		WorkerLoadMem.WithLabelValues(workerID).Set(t.MemPercent)
	}
}

func (c *Collector) collectScanMetrics(ctx context.Context) {
	if c.scans == nil {
		return
	}
	running, err := c.scans.CountByStatus(ctx, types.ScanStatusRunning)
	if err != nil {
		return
	}
	ScansInProgress.Set(float64(running))
}
