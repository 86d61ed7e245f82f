package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xingrin/reconctl/pkg/config"
	"github.com/xingrin/reconctl/pkg/controlplane"
	"github.com/xingrin/reconctl/pkg/dispatcher"
	"github.com/xingrin/reconctl/pkg/loadregistry"
	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/metrics"
	"github.com/xingrin/reconctl/pkg/workerregistry"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reconserver",
	Short:   "reconserver runs the control plane for the web-asset reconnaissance platform",
	Version: Version,
	RunE:    runServer,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("reconserver version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	log.Init(log.Config{Level: log.Level(level), JSONOutput: os.Getenv("DEBUG") == "" && os.Getenv("LOG_JSON") != "false"})
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("reconserver: load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName))
	if err != nil {
		return fmt.Errorf("reconserver: connect postgres: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		metrics.RegisterComponent("database", false, err.Error())
	} else {
		metrics.RegisterComponent("database", true, "")
	}

	rdb := redis.NewClient(mustParseRedisURL(cfg.RedisURL))
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		metrics.RegisterComponent("loadregistry", false, err.Error())
	} else {
		metrics.RegisterComponent("loadregistry", true, "")
	}

	loads := loadregistry.New(rdb)
	scans := controlplane.NewScanStore(pool)
	if err := scans.Init(ctx); err != nil {
		return fmt.Errorf("reconserver: init scan store: %w", err)
	}

	local := dispatcher.NewLocalTransport()
	ssh := dispatcher.NewSSHTransport()

	workers := workerregistry.New(pool, loads, nil)
	if err := workers.Init(ctx); err != nil {
		return fmt.Errorf("reconserver: init worker registry: %w", err)
	}

	disp := dispatcher.New(dispatcher.Config{
		TaskExecutorImage:     cfg.TaskExecutorImage,
		ImageTag:              cfg.ImageTag,
		TaskSubmitInterval:    cfg.TaskSubmitInterval,
		HighLoadWaitSeconds:   cfg.HighLoadWaitSeconds,
		DockerNetworkName:     cfg.DockerNetworkName,
		ServerPort:            cfg.ServerPort,
		PublicHost:            cfg.PublicHost,
		HostResultsDir:        cfg.HostResultsDir,
		HostLogsDir:           cfg.HostLogsDir,
		ContainerResultsMount: cfg.ContainerResultsMount,
		ContainerLogsMount:    cfg.ContainerLogsMount,
	}, workers, loads, local, ssh).WithReachabilityProbe(3 * time.Second)

	// workerregistry.New took a nil Uninstaller above because the
	// dispatcher that satisfies it doesn't exist until after New returns;
	// rebuild the registry now that it does.
	workers = workerregistry.New(pool, loads, disp)

	updateLock := controlplane.NewUpdateLock(rdb)
	srv := controlplane.NewServer(controlplane.ServerConfig{
		ServerVersion:         Version,
		DBHost:                cfg.DBHost,
		DBPort:                cfg.DBPort,
		DBName:                cfg.DBName,
		DBUser:                cfg.DBUser,
		DBPassword:            cfg.DBPassword,
		RedisURL:              cfg.RedisURL,
		WorkerRedisURL:        cfg.WorkerRedisURL,
		PublicHost:            cfg.PublicHost,
		ContainerResultsMount: cfg.ContainerResultsMount,
		ContainerLogsMount:    cfg.ContainerLogsMount,
		LogLevel:              cfg.LogLevel,
		EnableCommandLogging:  cfg.EnableCommandLogging,
		Debug:                 cfg.Debug,
	}, workers, loads, scans, disp, disp, updateLock)

	collector := metrics.NewCollector(workers, loads, scans)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("api", true, "")

	opsMux := http.NewServeMux()
	opsMux.Handle("/metrics", metrics.Handler())
	opsMux.HandleFunc("/health", metrics.HealthHandler())
	opsMux.HandleFunc("/ready", metrics.ReadyHandler())
	opsMux.HandleFunc("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: ":9090", Handler: opsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Logger.Info().Str("addr", addr).Msg("reconserver starting")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("reconserver: serve: %w", err)
		}
	case <-ctx.Done():
		log.Logger.Info().Msg("reconserver shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Logger.Warn().Err(err).Msg("control plane shutdown error")
		}
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func mustParseRedisURL(redisURL string) *redis.Options {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("invalid REDIS_URL")
	}
	return opts
}
