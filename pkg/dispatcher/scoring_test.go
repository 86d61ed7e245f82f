package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingrin/reconctl/pkg/loadregistry"
	"github.com/xingrin/reconctl/pkg/types"
)

type fakeWorkerLister struct {
	workers []types.WorkerNode
}

func (f fakeWorkerLister) ListByStatus(ctx context.Context, statuses ...types.WorkerStatus) ([]types.WorkerNode, error) {
	want := make(map[types.WorkerStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []types.WorkerNode
	for _, w := range f.workers {
		if want[w.Status] {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeLoadRegistry struct {
	telemetry map[string]loadregistry.Telemetry
}

func (f fakeLoadRegistry) IsOnline(ctx context.Context, workerID string) (bool, error) {
	_, ok := f.telemetry[workerID]
	return ok, nil
}

func (f fakeLoadRegistry) GetAll(ctx context.Context, workerIDs []string) (map[string]loadregistry.Telemetry, error) {
	out := make(map[string]loadregistry.Telemetry)
	for _, id := range workerIDs {
		if t, ok := f.telemetry[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func newTestDispatcher(workers []types.WorkerNode, telemetry map[string]loadregistry.Telemetry, highLoadWait time.Duration) *Dispatcher {
	return New(
		Config{HighLoadWaitSeconds: highLoadWait},
		fakeWorkerLister{workers: workers},
		fakeLoadRegistry{telemetry: telemetry},
		nil, nil,
	)
}

func TestSelectBestWorker_PrefersLowestScoreNormalWorker(t *testing.T) {
	workers := []types.WorkerNode{
		{ID: "w1", Name: "w1", Status: types.WorkerStatusOnline},
		{ID: "w2", Name: "w2", Status: types.WorkerStatusOnline},
	}
	telemetry := map[string]loadregistry.Telemetry{
		"w1": {CPUPercent: 50, MemPercent: 50},
		"w2": {CPUPercent: 10, MemPercent: 10},
	}
	d := newTestDispatcher(workers, telemetry, 0)

	best, err := d.SelectBestWorker(context.Background())
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "w2", best.ID)
}

func TestSelectBestWorker_SkipsWorkerWithNoTelemetry(t *testing.T) {
	workers := []types.WorkerNode{
		{ID: "w1", Name: "w1", Status: types.WorkerStatusOnline},
		{ID: "w2", Name: "w2", Status: types.WorkerStatusOnline},
	}
	telemetry := map[string]loadregistry.Telemetry{
		"w2": {CPUPercent: 90, MemPercent: 90},
	}
	d := newTestDispatcher(workers, telemetry, 10*time.Millisecond)

	best, err := d.SelectBestWorker(context.Background())
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "w2", best.ID)
}

func TestSelectBestWorker_DegradedPathWhenAllOverloaded(t *testing.T) {
	workers := []types.WorkerNode{
		{ID: "w1", Name: "w1", Status: types.WorkerStatusOnline},
		{ID: "w2", Name: "w2", Status: types.WorkerStatusOnline},
	}
	telemetry := map[string]loadregistry.Telemetry{
		"w1": {CPUPercent: 95, MemPercent: 95},
		"w2": {CPUPercent: 99, MemPercent: 99},
	}
	d := newTestDispatcher(workers, telemetry, 5*time.Millisecond)

	start := time.Now()
	best, err := d.SelectBestWorker(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "w1", best.ID)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
}

func TestSelectBestWorker_NoCandidatesReturnsNil(t *testing.T) {
	d := newTestDispatcher(nil, nil, 0)

	best, err := d.SelectBestWorker(context.Background())
	require.NoError(t, err)
	assert.Nil(t, best)
}
