package controlplane

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/types"
)

// WorkerRegistrar is the subset of pkg/workerregistry.Registry the
// register/heartbeat/config handlers need. Held as an interface so this
// package's handlers are testable without a real pgxpool.
type WorkerRegistrar interface {
	Register(ctx context.Context, name string, isLocal bool) (types.WorkerNode, bool, error)
	Get(ctx context.Context, id string) (types.WorkerNode, error)
	Heartbeat(ctx context.Context, workerID, agentVersion, expectedVersion string) (types.WorkerStatus, error)
}

// TelemetrySink is the heartbeat-sink half of the heartbeat handler
// (spec.md §9: "separate into heartbeat-sink (pure), state-advance (pure),
// and update-dispatch (fire-and-forget with lock)"). Satisfied by
// pkg/loadregistry.Registry.
type TelemetrySink interface {
	Update(ctx context.Context, workerID string, cpu, mem float64) error
}

// UpdateTrigger runs a worker's agent self-update out of band. Satisfied
// by pkg/dispatcher.Dispatcher.
type UpdateTrigger interface {
	TriggerUpdate(ctx context.Context, worker types.WorkerNode) (ok bool, message string)
}

type registerRequest struct {
	Name    string `json:"name" validate:"required"`
	IsLocal bool   `json:"is_local"`
}

type registerResponse struct {
	WorkerID string `json:"worker_id"`
	Name     string `json:"name"`
	Created  bool   `json:"created"`
}

// handleRegisterWorker implements POST /workers/register (spec.md §4.9),
// idempotent by name.
func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	worker, created, err := s.workers.Register(r.Context(), req.Name, req.IsLocal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{WorkerID: worker.ID, Name: worker.Name, Created: created})
}

type heartbeatRequest struct {
	CPUPercent float64 `json:"cpu_percent" validate:"gte=0,lte=100"`
	MemPercent float64 `json:"mem_percent" validate:"gte=0,lte=100"`
	Version    string  `json:"version" validate:"required"`
}

type heartbeatResponse struct {
	Status        string `json:"status"`
	NeedUpdate    bool   `json:"need_update"`
	ServerVersion string `json:"server_version"`
}

// handleHeartbeat implements POST /workers/{id}/heartbeat (spec.md §4.9).
// Per spec.md §9 this is split into three steps instead of one handler
// that does everything inline: writing telemetry (heartbeat-sink, pure
// side effect with no branching), advancing the worker's status
// (state-advance, pure function of current state + incoming version,
// entirely owned by pkg/workerregistry), and — only on a version
// mismatch — firing the update dispatch in the background, guarded by a
// distributed lock so two heartbeats in flight for the same worker can't
// both trigger it.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")

	var req heartbeatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.telemetry.Update(r.Context(), workerID, req.CPUPercent, req.MemPercent); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	status, err := s.workers.Heartbeat(r.Context(), workerID, req.Version, s.cfg.ServerVersion)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	needUpdate := status == types.WorkerStatusUpdating
	if needUpdate {
		s.dispatchUpdateAsync(workerID)
	}

	writeJSON(w, http.StatusOK, heartbeatResponse{
		Status:        "ok",
		NeedUpdate:    needUpdate,
		ServerVersion: s.cfg.ServerVersion,
	})
}

// dispatchUpdateAsync fires TriggerUpdate on its own background context so
// the heartbeat response doesn't block on a full SSH round trip, guarded
// by a 60s distributed lock keyed on the worker id (spec.md §4.9) so a
// burst of heartbeats from one worker can't launch concurrent updates.
func (s *Server) dispatchUpdateAsync(workerID string) {
	ctx := context.Background()
	acquired, err := s.updateLock.Acquire(ctx, workerID)
	if err != nil {
		log.Logger.Warn().Err(err).Str("worker_id", workerID).Msg("update lock acquire failed")
		return
	}
	if !acquired {
		return
	}

	go func() {
		defer func() {
			if err := s.updateLock.Release(context.Background(), workerID); err != nil {
				log.Logger.Warn().Err(err).Str("worker_id", workerID).Msg("update lock release failed")
			}
		}()

		worker, err := s.workers.Get(ctx, workerID)
		if err != nil {
			log.Logger.Warn().Err(err).Str("worker_id", workerID).Msg("update dispatch: resolve worker failed")
			return
		}
		ok, msg := s.updater.TriggerUpdate(ctx, worker)
		if !ok {
			log.Logger.Warn().Str("worker_id", workerID).Str("message", msg).Msg("agent update dispatch failed")
		}
	}()
}

type dbConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type pathsConfig struct {
	Results string `json:"results"`
	Logs    string `json:"logs"`
}

type loggingConfig struct {
	Level                string `json:"level"`
	EnableCommandLogging bool   `json:"enableCommandLogging"`
}

type workersConfigResponse struct {
	DB       dbConfig      `json:"db"`
	RedisURL string        `json:"redisUrl"`
	Paths    pathsConfig   `json:"paths"`
	Logging  loggingConfig `json:"logging"`
	Debug    bool          `json:"debug"`
}

// internalDBHosts are the host values that mark the server's own database
// as running on the same machine/Docker network as the server itself,
// mirroring worker_views.py's `_is_internal_db` check
// (`db_host in ('postgres', 'localhost', '127.0.0.1')`).
var internalDBHosts = map[string]bool{
	"postgres":  true,
	"localhost": true,
	"127.0.0.1": true,
}

// handleWorkersConfig implements GET /workers/config?is_local=true|false
// (spec.md §4.9, §197). The branch is keyed on whether the server's own
// configured database host is internal, not on whether PublicHost happens
// to be set: a deployment can set PublicHost for its own externally-
// reachable URL while still pointing at a genuinely external/managed
// database (RDS, Cloud SQL, ...), and in that case every worker — local or
// remote — must get DBHost unchanged, never rewritten to PublicHost.
//   - Internal DB + local worker: docker-internal service names
//     ("postgres", "redis://redis:6379/0").
//   - Internal DB + remote worker: PublicHost, since "postgres" isn't
//     reachable from outside the server's own network.
//   - External DB (any worker): DBHost/WorkerRedisURL passed through as
//     configured — they're already externally routable.
func (s *Server) handleWorkersConfig(w http.ResponseWriter, r *http.Request) {
	isLocal := r.URL.Query().Get("is_local") == "true"

	var dbHost, redisURL string
	switch {
	case internalDBHosts[s.cfg.DBHost] && isLocal:
		dbHost = "postgres"
		redisURL = "redis://redis:6379/0"
	case internalDBHosts[s.cfg.DBHost] && !isLocal:
		dbHost = s.cfg.PublicHost
		redisURL = fmt.Sprintf("redis://%s:6379/0", s.cfg.PublicHost)
	default:
		dbHost = s.cfg.DBHost
		redisURL = s.cfg.WorkerRedisURL
	}

	writeJSON(w, http.StatusOK, workersConfigResponse{
		DB: dbConfig{
			Host:     dbHost,
			Port:     s.cfg.DBPort,
			Name:     s.cfg.DBName,
			User:     s.cfg.DBUser,
			Password: s.cfg.DBPassword,
		},
		RedisURL: redisURL,
		Paths: pathsConfig{
			Results: s.cfg.ContainerResultsMount,
			Logs:    s.cfg.ContainerLogsMount,
		},
		Logging: loggingConfig{
			Level:                s.cfg.LogLevel,
			EnableCommandLogging: s.cfg.EnableCommandLogging,
		},
		Debug: s.cfg.Debug,
	})
}
