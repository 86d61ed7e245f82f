// Package controlplane is the JSON-over-HTTP API a worker agent speaks to
// across its own version upgrades, plus the scan submission endpoint that
// invokes the dispatcher (spec.md §4.9).
package controlplane

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/xingrin/reconctl/pkg/log"
)

// ServerConfig is the subset of pkg/config.Config the control plane needs,
// taken by value rather than importing pkg/config directly so this
// package stays testable against a literal struct.
type ServerConfig struct {
	ServerVersion string

	DBHost         string
	DBPort         int
	DBName         string
	DBUser         string
	DBPassword     string
	RedisURL       string
	WorkerRedisURL string

	PublicHost            string
	ContainerResultsMount string
	ContainerLogsMount    string

	LogLevel             string
	EnableCommandLogging bool
	Debug                bool
}

// Server wires the worker-facing HTTP API to its four collaborators:
// the worker registry, the telemetry sink, the scan store, and the
// dispatcher. Each is held as a narrow local interface (WorkerRegistrar,
// TelemetrySink, ScanRegistrar, and ScanDispatcher/UpdateTrigger for the
// dispatcher's two roles) rather than a concrete
// import, so this package never needs to import pkg/workerregistry,
// pkg/loadregistry, or pkg/dispatcher directly.
type Server struct {
	cfg        ServerConfig
	workers    WorkerRegistrar
	telemetry  TelemetrySink
	scans      ScanRegistrar
	dispatcher ScanDispatcher
	updater    UpdateTrigger
	updateLock *UpdateLock

	router http.Handler
	http   *http.Server
}

// NewServer builds the control plane's router and binds every handler.
func NewServer(cfg ServerConfig, workers WorkerRegistrar, telemetry TelemetrySink, scans ScanRegistrar, dispatcher ScanDispatcher, updater UpdateTrigger, updateLock *UpdateLock) *Server {
	s := &Server{
		cfg:        cfg,
		workers:    workers,
		telemetry:  telemetry,
		scans:      scans,
		dispatcher: dispatcher,
		updater:    updater,
		updateLock: updateLock,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Post("/workers/register", s.handleRegisterWorker)
	r.Post("/workers/{id}/heartbeat", s.handleHeartbeat)
	r.Get("/workers/config", s.handleWorkersConfig)
	r.Post("/scans", s.handleSubmitScan)

	return r
}

// handleHealthz is a liveness probe: it reports process health only, never
// touching Postgres/Redis, so a DB outage doesn't also take down the
// endpoint an orchestrator restarts the process on.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + s.cfg.ServerVersion + `"}`))
}

// requestLogger mirrors the teacher's structured zerolog usage, logging
// one line per request at info level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("controlplane request")
	})
}

// Start listens and serves until Shutdown is called or the listener fails.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the built router directly, for tests that drive it with
// httptest without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.router
}
