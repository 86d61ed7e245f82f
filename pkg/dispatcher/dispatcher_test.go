package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingrin/reconctl/pkg/types"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool // worker id -> should fail
}

func (f *fakeTransport) Run(ctx context.Context, w types.WorkerNode, cmd DockerCommand) (TransportResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail != nil && f.fail[w.ID] {
		return TransportResult{OK: false, Message: "boom"}, assert.AnError
	}
	return TransportResult{OK: true, ContainerID: "container-" + w.ID}, nil
}

func TestThrottleSubmit_SpacesDispatchesByInterval(t *testing.T) {
	d := New(Config{TaskSubmitInterval: 30 * time.Millisecond}, fakeWorkerLister{}, fakeLoadRegistry{}, nil, nil)

	start := time.Now()
	require.NoError(t, d.throttleSubmit(context.Background()))
	require.NoError(t, d.throttleSubmit(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestDispatch_ReachabilityProbeSkipsUnreachableRemoteWorker(t *testing.T) {
	w := types.WorkerNode{ID: "w1", Name: "w1", IsLocal: false, IPAddress: "127.0.0.1", SSHPort: 1}
	ssh := &fakeTransport{}

	d := New(Config{}, fakeWorkerLister{}, fakeLoadRegistry{}, ssh, ssh).WithReachabilityProbe(50 * time.Millisecond)

	result, err := d.dispatch(context.Background(), w, "run_cleanup", nil)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "unreachable")
	assert.Equal(t, 0, ssh.calls)
}

func TestDispatch_ReachabilityProbeNeverRunsForLocalWorker(t *testing.T) {
	w := types.WorkerNode{ID: "w1", Name: "w1", IsLocal: true}
	local := &fakeTransport{}

	d := New(Config{}, fakeWorkerLister{}, fakeLoadRegistry{}, local, local).WithReachabilityProbe(50 * time.Millisecond)

	result, err := d.dispatch(context.Background(), w, "run_cleanup", nil)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, local.calls)
}

func TestCleanupAll_CollectsPerWorkerOutcomesWithoutAbortingOnFailure(t *testing.T) {
	workers := []types.WorkerNode{
		{ID: "w1", Name: "w1", IsLocal: true, Status: types.WorkerStatusOnline},
		{ID: "w2", Name: "w2", IsLocal: true, Status: types.WorkerStatusOnline},
	}
	local := &fakeTransport{fail: map[string]bool{"w1": true}}

	d := New(Config{}, fakeWorkerLister{workers: workers}, fakeLoadRegistry{}, local, local)

	results, err := d.CleanupAll(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var sawFailure, sawSuccess bool
	for _, r := range results {
		if r.WorkerID == "w1" {
			sawFailure = !r.OK
		}
		if r.WorkerID == "w2" {
			sawSuccess = r.OK
		}
	}
	assert.True(t, sawFailure)
	assert.True(t, sawSuccess)
}

func TestDeleteTask_DispatchesJSONIDList(t *testing.T) {
	local := &fakeTransport{}
	d := New(Config{}, fakeWorkerLister{}, fakeLoadRegistry{}, local, local)

	w := types.WorkerNode{ID: "w1", IsLocal: true}
	result, err := d.DeleteTask(context.Background(), w, DeleteScans, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, local.calls)
}

func TestDeleteTask_UnknownEntityNeverDispatches(t *testing.T) {
	local := &fakeTransport{}
	d := New(Config{}, fakeWorkerLister{}, fakeLoadRegistry{}, local, local)

	w := types.WorkerNode{ID: "w1", IsLocal: true}
	_, err := d.DeleteTask(context.Background(), w, DeleteEntity("bogus"), nil)
	require.Error(t, err)
	assert.Equal(t, 0, local.calls)
}

type fakeScriptTransport struct {
	fakeTransport
	lastScript string
	ok         bool
}

func (f *fakeScriptTransport) RunScript(ctx context.Context, w types.WorkerNode, script string) (TransportResult, error) {
	f.lastScript = script
	return TransportResult{OK: f.ok, Message: "ran"}, nil
}

func TestTriggerUpdate_RunsSelfUpdateScript(t *testing.T) {
	local := &fakeScriptTransport{ok: true}
	d := New(Config{}, fakeWorkerLister{}, fakeLoadRegistry{}, local, local)

	ok, msg := d.TriggerUpdate(context.Background(), types.WorkerNode{ID: "w1", IsLocal: true})
	assert.True(t, ok)
	assert.Equal(t, "ran", msg)
	assert.Contains(t, local.lastScript, "self-update")
}

func TestTriggerUpdate_TransportWithoutScriptSupportFails(t *testing.T) {
	local := &fakeTransport{}
	d := New(Config{}, fakeWorkerLister{}, fakeLoadRegistry{}, local, local)

	ok, msg := d.TriggerUpdate(context.Background(), types.WorkerNode{ID: "w1", IsLocal: true})
	assert.False(t, ok)
	assert.NotEmpty(t, msg)
}

func TestUninstall_RunsSelfUninstallScript(t *testing.T) {
	local := &fakeScriptTransport{ok: true}
	d := New(Config{}, fakeWorkerLister{}, fakeLoadRegistry{}, local, local)

	d.Uninstall(context.Background(), types.WorkerNode{ID: "w1", IsLocal: true})
	assert.Contains(t, local.lastScript, "self-uninstall")
}
