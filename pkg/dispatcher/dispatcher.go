// Package dispatcher selects a worker for each scan task, builds the docker
// command it runs, and dispatches it over the Local or SSH transport
// (spec.md §4.4). A process-wide submit-interval throttle spaces consecutive
// dispatches apart so worker heartbeats have time to reflect new load.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xingrin/reconctl/pkg/health"
	"github.com/xingrin/reconctl/pkg/loadregistry"
	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/metrics"
	"github.com/xingrin/reconctl/pkg/types"
)

// Config holds the dispatcher's environment-driven settings (spec.md §6).
type Config struct {
	TaskExecutorImage    string
	ImageTag             string
	TaskSubmitInterval   time.Duration
	HighLoadWaitSeconds  time.Duration
	DockerNetworkName    string
	ServerPort           int
	PublicHost           string
	HostResultsDir       string
	HostLogsDir          string
	ContainerResultsMount string
	ContainerLogsMount    string
}

// Transport runs a built command against a worker and reports its outcome.
type Transport interface {
	Run(ctx context.Context, worker types.WorkerNode, cmd DockerCommand) (TransportResult, error)
}

// ScriptTransport runs a raw host-level script against a worker, bypassing
// the docker-run command builder entirely. Both LocalTransport and
// SSHTransport implement it in addition to Transport; it's split out
// because agent uninstall/update are maintenance operations, not scan
// task containers.
type ScriptTransport interface {
	RunScript(ctx context.Context, worker types.WorkerNode, script string) (TransportResult, error)
}

// TransportResult is the outcome of dispatching one command.
type TransportResult struct {
	OK          bool
	Message     string
	ContainerID string
}

// Dispatcher is the process-wide singleton coordinating worker selection,
// the submit-interval throttle, and dispatch over Local/SSH transports.
type Dispatcher struct {
	cfg     Config
	workers WorkerLister
	loads   loadregistry.WorkerLiveness
	local   Transport
	ssh     Transport

	mu         sync.Mutex
	lastSubmit time.Time

	probeTimeout time.Duration
}

// New builds a Dispatcher. local and ssh are selected per-worker based on
// WorkerNode.IsLocal.
func New(cfg Config, workers WorkerLister, loads loadregistry.WorkerLiveness, local, ssh Transport) *Dispatcher {
	return &Dispatcher{cfg: cfg, workers: workers, loads: loads, local: local, ssh: ssh}
}

// WithReachabilityProbe enables a TCP preflight against a remote worker's
// SSH port before every dispatch, so a worker that has gone unreachable
// between heartbeats fails fast instead of burning a submit-interval slot
// on a doomed SSH run. Local workers are never probed. Disabled (zero
// value) unless called.
func (d *Dispatcher) WithReachabilityProbe(timeout time.Duration) *Dispatcher {
	d.probeTimeout = timeout
	return d
}

// throttleSubmit blocks until at least TaskSubmitInterval has elapsed since
// the previous dispatch, then records this dispatch's timestamp. This is the
// process-wide last-submit timestamp from spec.md §4.4/§9.
func (d *Dispatcher) throttleSubmit(ctx context.Context) error {
	d.mu.Lock()
	wait := d.cfg.TaskSubmitInterval - time.Since(d.lastSubmit)
	d.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	d.lastSubmit = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) transportFor(w types.WorkerNode) Transport {
	if w.IsLocal {
		return d.local
	}
	return d.ssh
}

func (d *Dispatcher) transportLabel(w types.WorkerNode) string {
	if w.IsLocal {
		return "local"
	}
	return "ssh"
}

// dispatch throttles, builds the command, and runs it on the worker's
// transport, recording dispatch metrics.
func (d *Dispatcher) dispatch(ctx context.Context, w types.WorkerNode, module string, args map[string]string) (TransportResult, error) {
	if !w.IsLocal && d.probeTimeout > 0 {
		checker := health.NewTCPChecker(fmt.Sprintf("%s:%d", w.IPAddress, w.SSHPort)).WithTimeout(d.probeTimeout)
		if res := checker.Check(ctx); !res.Healthy {
			return TransportResult{OK: false, Message: fmt.Sprintf("worker unreachable: %s", res.Message)}, nil
		}
	}

	if err := d.throttleSubmit(ctx); err != nil {
		return TransportResult{}, err
	}

	timer := metrics.NewTimer()
	cmd := d.BuildDockerCommand(w, module, args)
	transport := d.transportFor(w)

	result, err := transport.Run(ctx, w, cmd)
	timer.ObserveDuration(metrics.DispatchLatency)
	metrics.CommandsDispatchedTotal.WithLabelValues(d.transportLabel(w)).Inc()
	return result, err
}

// SubmitScan packages the scan-flow arguments and dispatches run_initiate_scan
// on the given worker (spec.md §4.4 "Scan-flow submission").
func (d *Dispatcher) SubmitScan(ctx context.Context, w types.WorkerNode, scanID, targetName, targetID, scanWorkspaceDir, engineName, scheduledScanName string) (ok bool, message string, containerID string, workerID string) {
	args := map[string]string{
		"scan_id":            scanID,
		"target_name":        targetName,
		"target_id":          targetID,
		"scan_workspace_dir": scanWorkspaceDir,
		"engine_name":        engineName,
	}
	if scheduledScanName != "" {
		args["scheduled_scan_name"] = scheduledScanName
	}

	result, err := d.dispatch(ctx, w, moduleInitiateScan, args)
	if err != nil {
		log.WithWorkerID(w.ID).Error().Err(err).Str("scan_id", scanID).Msg("scan submission failed")
		return false, err.Error(), "", w.ID
	}
	return result.OK, result.Message, result.ContainerID, w.ID
}

// CleanupWorkerResult is one worker's outcome from CleanupAll.
type CleanupWorkerResult struct {
	WorkerID string
	OK       bool
	Message  string
}

// CleanupAll runs run_cleanup on every online worker with the given
// retention window, never aborting the fan-out on one worker's failure
// (spec.md §4.4 "Fleet operations").
func (d *Dispatcher) CleanupAll(ctx context.Context, retentionDays int) ([]CleanupWorkerResult, error) {
	workers, err := d.workers.ListByStatus(ctx, types.WorkerStatusOnline)
	if err != nil {
		return nil, err
	}

	results := make([]CleanupWorkerResult, len(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			args := map[string]string{"retention_days": fmt.Sprintf("%d", retentionDays)}
			result, err := d.dispatch(gctx, w, moduleCleanup, args)
			if err != nil {
				results[i] = CleanupWorkerResult{WorkerID: w.ID, OK: false, Message: err.Error()}
				return nil
			}
			results[i] = CleanupWorkerResult{WorkerID: w.ID, OK: result.OK, Message: result.Message}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// DeleteEntity selects which fixed delete script-module to run for DeleteTask.
type DeleteEntity string

const (
	DeleteTargets       DeleteEntity = "targets"
	DeleteOrganizations DeleteEntity = "organizations"
	DeleteScans         DeleteEntity = "scans"
)

const (
	moduleInitiateScan = "run_initiate_scan"
	moduleCleanup      = "run_cleanup"
	moduleDeleteTargets = "run_delete_targets"
	moduleDeleteOrgs    = "run_delete_organizations"
	moduleDeleteScans   = "run_delete_scans"
)

func deleteModule(entity DeleteEntity) (string, error) {
	switch entity {
	case DeleteTargets:
		return moduleDeleteTargets, nil
	case DeleteOrganizations:
		return moduleDeleteOrgs, nil
	case DeleteScans:
		return moduleDeleteScans, nil
	default:
		return "", fmt.Errorf("dispatcher: unknown delete entity %q", entity)
	}
}

// DeleteTask dispatches a JSON-serialized id list to the fixed delete
// script-module for the given entity kind, on the given worker.
func (d *Dispatcher) DeleteTask(ctx context.Context, w types.WorkerNode, entity DeleteEntity, ids []string) (TransportResult, error) {
	module, err := deleteModule(entity)
	if err != nil {
		return TransportResult{}, err
	}

	payload, err := json.Marshal(ids)
	if err != nil {
		return TransportResult{}, fmt.Errorf("dispatcher: marshal ids: %w", err)
	}

	return d.dispatch(ctx, w, module, map[string]string{"ids": string(payload)})
}

// scriptTransportFor mirrors transportFor, but for the raw maintenance
// scripts run outside the docker-container contract.
func (d *Dispatcher) scriptTransportFor(w types.WorkerNode) ScriptTransport {
	t := d.transportFor(w)
	st, ok := t.(ScriptTransport)
	if !ok {
		return nil
	}
	return st
}

// Uninstall satisfies pkg/workerregistry.Uninstaller: best-effort, runs on
// whatever context the caller gives it (workerregistry calls this with a
// background context so the caller's cancellation never aborts it).
func (d *Dispatcher) Uninstall(ctx context.Context, w types.WorkerNode) {
	st := d.scriptTransportFor(w)
	if st == nil {
		return
	}
	if _, err := st.RunScript(ctx, w, "reconctl-agent self-uninstall"); err != nil {
		log.WithWorkerID(w.ID).Warn().Err(err).Msg("agent uninstall failed")
	}
}

// TriggerUpdate runs the agent's self-update subcommand on w. Called by
// pkg/controlplane's heartbeat handler once per version-mismatch detection,
// guarded by an external distributed lock so concurrent heartbeats for the
// same worker don't race each other into duplicate update attempts
// (spec.md §4.9).
func (d *Dispatcher) TriggerUpdate(ctx context.Context, w types.WorkerNode) (bool, string) {
	st := d.scriptTransportFor(w)
	if st == nil {
		return false, "worker transport does not support maintenance scripts"
	}
	result, err := st.RunScript(ctx, w, "reconctl-agent self-update")
	if err != nil {
		log.WithWorkerID(w.ID).Warn().Err(err).Msg("agent update dispatch failed")
		return false, result.Message
	}
	return result.OK, result.Message
}
