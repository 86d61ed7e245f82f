package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingrin/reconctl/pkg/types"
)

type fakeWorkers struct {
	byID        map[string]types.WorkerNode
	registerErr error
	created     bool
	heartbeat   types.WorkerStatus
}

func newFakeWorkers() *fakeWorkers {
	return &fakeWorkers{byID: map[string]types.WorkerNode{}}
}

func (f *fakeWorkers) Register(ctx context.Context, name string, isLocal bool) (types.WorkerNode, bool, error) {
	if f.registerErr != nil {
		return types.WorkerNode{}, false, f.registerErr
	}
	w := types.WorkerNode{ID: "w-" + name, Name: name, IsLocal: isLocal}
	f.byID[w.ID] = w
	return w, f.created, nil
}

func (f *fakeWorkers) Get(ctx context.Context, id string) (types.WorkerNode, error) {
	return f.byID[id], nil
}

func (f *fakeWorkers) Heartbeat(ctx context.Context, workerID, agentVersion, expectedVersion string) (types.WorkerStatus, error) {
	return f.heartbeat, nil
}

type fakeTelemetry struct {
	updated bool
	err     error
}

func (f *fakeTelemetry) Update(ctx context.Context, workerID string, cpu, mem float64) error {
	f.updated = true
	return f.err
}

type fakeUpdater struct {
	calls chan string
}

func (f *fakeUpdater) TriggerUpdate(ctx context.Context, worker types.WorkerNode) (bool, string) {
	if f.calls != nil {
		f.calls <- worker.ID
	}
	return true, "updated"
}

type fakeScans struct {
	target     types.Target
	scan       types.Scan
	dispatched bool
	recordedOK bool
}

func (f *fakeScans) GetOrCreateTarget(ctx context.Context, name string) (types.Target, error) {
	f.target = types.Target{ID: "t1", Name: name}
	return f.target, nil
}

func (f *fakeScans) CreateScan(ctx context.Context, targetID, scanEngineID string) (types.Scan, error) {
	f.scan = types.Scan{ID: "s1", TargetID: targetID, ScanEngineID: scanEngineID}
	return f.scan, nil
}

func (f *fakeScans) RecordDispatch(ctx context.Context, scanID, workerID, containerID string, ok bool) error {
	f.dispatched = true
	f.recordedOK = ok
	return nil
}

type fakeDispatcher struct {
	worker *types.WorkerNode
	ok     bool
}

func (f *fakeDispatcher) SelectBestWorker(ctx context.Context) (*types.WorkerNode, error) {
	return f.worker, nil
}

func (f *fakeDispatcher) SubmitScan(ctx context.Context, w types.WorkerNode, scanID, targetName, targetID, scanWorkspaceDir, engineName, scheduledScanName string) (bool, string, string, string) {
	return f.ok, "dispatched", "container-1", w.ID
}

func newTestServer(t *testing.T, workers *fakeWorkers, telemetry *fakeTelemetry, scans *fakeScans, dispatcher *fakeDispatcher, updater *fakeUpdater) *Server {
	t.Helper()
	rdb, _ := newTestRedis(t)
	cfg := ServerConfig{ServerVersion: "1.2.3", DBHost: "10.0.0.5", DBPort: 5432, RedisURL: "redis://10.0.0.5:6379/0"}
	return NewServer(cfg, workers, telemetry, scans, dispatcher, updater, NewUpdateLock(rdb))
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleRegisterWorker_ReturnsWorkerID(t *testing.T) {
	s := newTestServer(t, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/workers/register", registerRequest{Name: "alpha", IsLocal: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "w-alpha", resp.WorkerID)
}

func TestHandleRegisterWorker_RejectsMissingName(t *testing.T) {
	s := newTestServer(t, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/workers/register", registerRequest{IsLocal: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHeartbeat_WritesTelemetryAndAdvancesStatus(t *testing.T) {
	workers := newFakeWorkers()
	workers.byID["w1"] = types.WorkerNode{ID: "w1"}
	workers.heartbeat = types.WorkerStatusOnline
	telemetry := &fakeTelemetry{}

	s := newTestServer(t, workers, telemetry, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/workers/w1/heartbeat", heartbeatRequest{CPUPercent: 20, MemPercent: 30, Version: "1.2.3"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, telemetry.updated)

	var resp heartbeatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.NeedUpdate)
}

func TestHandleHeartbeat_VersionMismatchTriggersUpdateDispatch(t *testing.T) {
	workers := newFakeWorkers()
	workers.byID["w1"] = types.WorkerNode{ID: "w1"}
	workers.heartbeat = types.WorkerStatusUpdating
	updater := &fakeUpdater{calls: make(chan string, 1)}

	s := newTestServer(t, workers, &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, updater)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/workers/w1/heartbeat", heartbeatRequest{CPUPercent: 20, MemPercent: 30, Version: "0.9.0"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp heartbeatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.NeedUpdate)

	select {
	case id := <-updater.calls:
		assert.Equal(t, "w1", id)
	case <-t.Context().Done():
		t.Fatal("update was not dispatched")
	}
}

func TestHandleWorkersConfig_ExternalDBPassesThroughUnchangedForLocalWorker(t *testing.T) {
	s := newTestServer(t, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/workers/config?is_local=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp workersConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "10.0.0.5", resp.DB.Host)
}

func TestHandleWorkersConfig_ExternalDBPassesThroughUnchangedForRemoteWorkerEvenWithPublicHostSet(t *testing.T) {
	// DBHost "10.0.0.5" is a genuinely external/managed database (e.g. RDS).
	// PublicHost being configured for the server's own externally-reachable
	// URL must not cause it to be substituted for DBHost.
	rdb, _ := newTestRedis(t)
	cfg := ServerConfig{DBHost: "10.0.0.5", RedisURL: "redis://10.0.0.5:6379/0", WorkerRedisURL: "redis://10.0.0.5:6379/0", PublicHost: "scans.example.com"}
	s := NewServer(cfg, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{}, NewUpdateLock(rdb))

	rec := doJSON(t, s.Handler(), http.MethodGet, "/workers/config?is_local=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp workersConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "10.0.0.5", resp.DB.Host)
	assert.Equal(t, "redis://10.0.0.5:6379/0", resp.RedisURL)
}

func TestHandleWorkersConfig_InternalDBLocalWorkerGetsDockerServiceNames(t *testing.T) {
	rdb, _ := newTestRedis(t)
	cfg := ServerConfig{DBHost: "postgres", PublicHost: "scans.example.com"}
	s := NewServer(cfg, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{}, NewUpdateLock(rdb))

	rec := doJSON(t, s.Handler(), http.MethodGet, "/workers/config?is_local=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp workersConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "postgres", resp.DB.Host)
	assert.Equal(t, "redis://redis:6379/0", resp.RedisURL)
}

func TestHandleWorkersConfig_InternalDBRemoteWorkerGetsPublicHost(t *testing.T) {
	rdb, _ := newTestRedis(t)
	cfg := ServerConfig{DBHost: "postgres", PublicHost: "scans.example.com"}
	s := NewServer(cfg, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{}, NewUpdateLock(rdb))

	rec := doJSON(t, s.Handler(), http.MethodGet, "/workers/config?is_local=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp workersConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "scans.example.com", resp.DB.Host)
	assert.Equal(t, "redis://scans.example.com:6379/0", resp.RedisURL)
}

func TestHandleSubmitScan_DispatchesToSelectedWorker(t *testing.T) {
	scans := &fakeScans{}
	dispatcher := &fakeDispatcher{worker: &types.WorkerNode{ID: "w1"}, ok: true}

	s := newTestServer(t, newFakeWorkers(), &fakeTelemetry{}, scans, dispatcher, &fakeUpdater{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/scans", submitScanRequest{TargetName: "example.com", ScanEngineID: "default"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "s1", resp.ScanID)
	assert.True(t, scans.dispatched)
	assert.True(t, scans.recordedOK)
}

func TestHandleSubmitScan_NoWorkerAvailableReturns503(t *testing.T) {
	dispatcher := &fakeDispatcher{worker: nil}
	s := newTestServer(t, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, dispatcher, &fakeUpdater{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/scans", submitScanRequest{TargetName: "example.com", ScanEngineID: "default"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealthz_ReportsOKWithoutTouchingStores(t *testing.T) {
	s := newTestServer(t, newFakeWorkers(), &fakeTelemetry{}, &fakeScans{}, &fakeDispatcher{}, &fakeUpdater{})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
