package dispatcher

import (
	"context"
	"time"

	"github.com/xingrin/reconctl/pkg/loadregistry"
	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/types"
)

// overloadCPU and overloadMem split the online fleet into normal and
// overloaded partitions (spec.md §4.4 step 3).
const (
	overloadCPU = 85.0
	overloadMem = 85.0
)

// scoreWeightCPU and scoreWeightMem weight the selection score; lower is better.
const (
	scoreWeightCPU = 0.7
	scoreWeightMem = 0.3
)

// WorkerLister fetches worker rows by status, satisfied by pkg/workerregistry.
type WorkerLister interface {
	ListByStatus(ctx context.Context, statuses ...types.WorkerStatus) ([]types.WorkerNode, error)
}

type scoredWorker struct {
	worker types.WorkerNode
	score  float64
}

func score(t loadregistry.Telemetry) float64 {
	return t.CPUPercent*scoreWeightCPU + t.MemPercent*scoreWeightMem
}

// SelectBestWorker implements the scheduling decision from spec.md §4.4:
// fetch online/offline rows, filter by Load Registry liveness, score by
// weighted CPU/mem, prefer the minimum-score worker under the overload
// thresholds, and fall back to a degraded wait-then-pick path when every
// live worker is overloaded.
func (d *Dispatcher) SelectBestWorker(ctx context.Context) (*types.WorkerNode, error) {
	candidates, err := d.workers.ListByStatus(ctx, types.WorkerStatusOnline, types.WorkerStatusOffline)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	telemetry, err := d.loads.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	var normal, overloaded []scoredWorker
	for _, w := range candidates {
		t, ok := telemetry[w.ID]
		if !ok {
			log.WithWorkerID(w.ID).Warn().Str("worker_name", w.Name).Msg("worker has no live telemetry, skipping")
			continue
		}
		sw := scoredWorker{worker: w, score: score(t)}
		if t.CPUPercent <= overloadCPU && t.MemPercent <= overloadMem {
			normal = append(normal, sw)
		} else {
			overloaded = append(overloaded, sw)
		}
	}

	if len(normal) > 0 {
		best := minScore(normal)
		return &best, nil
	}

	if len(overloaded) == 0 {
		return nil, nil
	}

	log.Logger.Warn().Msg("all workers high load, waiting before degraded dispatch")
	select {
	case <-time.After(d.cfg.HighLoadWaitSeconds):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	best := minScore(overloaded)
	return &best, nil
}

func minScore(workers []scoredWorker) types.WorkerNode {
	best := workers[0]
	for _, w := range workers[1:] {
		if w.score < best.score {
			best = w
		}
	}
	return best.worker
}
