// Command reconctl-agent is the worker-side daemon (spec.md §4.9): it
// registers with the control plane, heartbeats CPU/mem load on a fixed
// interval, and carries the self-update/self-uninstall subcommands the
// dispatcher's ScriptTransport runs remotely during maintenance (spec.md
// §4.4, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xingrin/reconctl/pkg/client"
	"github.com/xingrin/reconctl/pkg/hostload"
	"github.com/xingrin/reconctl/pkg/log"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	serverURL    string
	workerName   string
	isLocal      bool
	heartbeatSec int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reconctl-agent",
	Short:   "reconctl-agent registers a worker host with the control plane and heartbeats its load",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("reconctl-agent version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", os.Getenv("SERVER_URL"), "control plane base URL")

	runCmd.Flags().StringVar(&workerName, "name", os.Getenv("HOSTNAME"), "worker name to register as")
	runCmd.Flags().BoolVar(&isLocal, "local", os.Getenv("WORKER_LOCAL") == "true", "register as the server's local (co-located) worker")
	runCmd.Flags().IntVar(&heartbeatSec, "heartbeat-interval", 15, "seconds between heartbeats")

	rootCmd.AddCommand(runCmd, selfUpdateCmd, selfUninstallCmd)
}

func initLogging() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	log.Init(log.Config{Level: log.Level(level), JSONOutput: os.Getenv("LOG_JSON") != "false"})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "register with the control plane and heartbeat load until signaled to stop",
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	if serverURL == "" {
		return fmt.Errorf("reconctl-agent: --server-url (or SERVER_URL) is required")
	}
	if workerName == "" {
		return fmt.Errorf("reconctl-agent: --name (or HOSTNAME) is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(serverURL)
	sampler := hostload.New()

	reg, err := c.Register(ctx, workerName, isLocal)
	if err != nil {
		return fmt.Errorf("reconctl-agent: register: %w", err)
	}
	log.Logger.Info().Str("worker_id", reg.WorkerID).Bool("created", reg.Created).Msg("registered with control plane")

	ticker := time.NewTicker(time.Duration(heartbeatSec) * time.Second)
	defer ticker.Stop()

	if err := beat(ctx, c, reg.WorkerID, sampler); err != nil {
		log.Logger.Warn().Err(err).Msg("initial heartbeat failed")
	}

	for {
		select {
		case <-ctx.Done():
			log.Logger.Info().Msg("reconctl-agent shutting down")
			return nil
		case <-ticker.C:
			if err := beat(ctx, c, reg.WorkerID, sampler); err != nil {
				log.Logger.Warn().Err(err).Msg("heartbeat failed")
			}
		}
	}
}

func beat(ctx context.Context, c *client.Client, workerID string, sampler hostload.Sampler) error {
	cpuPct, err := sampler.CPUPercent()
	if err != nil {
		return fmt.Errorf("sample cpu: %w", err)
	}
	memPct, err := sampler.MemPercent()
	if err != nil {
		return fmt.Errorf("sample mem: %w", err)
	}

	resp, err := c.Heartbeat(ctx, workerID, cpuPct, memPct, Version)
	if err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	if resp.NeedUpdate {
		log.Logger.Warn().Str("server_version", resp.ServerVersion).Str("agent_version", Version).
			Msg("agent version is behind the server; awaiting a dispatched self-update")
	}
	return nil
}

// selfUpdateCmd is invoked by the dispatcher's ScriptTransport
// ("reconctl-agent self-update") over the Local or SSH transport, never
// by a human. The concrete upgrade steps are host-specific, so it runs
// whatever command the host's provisioning put in
// RECONCTL_AGENT_UPDATE_CMD (see runHook) and fails if that variable is
// unset or the command exits non-zero.
var selfUpdateCmd = &cobra.Command{
	Use:    "self-update",
	Short:  "update the installed reconctl-agent binary to the latest version (run by the dispatcher, not interactively)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Logger.Info().Str("os", runtime.GOOS).Msg("self-update invoked")
		return runHook("RECONCTL_AGENT_UPDATE_CMD")
	},
}

// selfUninstallCmd is invoked by the dispatcher's ScriptTransport
// ("reconctl-agent self-uninstall") when a worker is deregistered.
var selfUninstallCmd = &cobra.Command{
	Use:    "self-uninstall",
	Short:  "remove the installed reconctl-agent binary and its service unit (run by the dispatcher, not interactively)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Logger.Info().Msg("self-uninstall invoked")
		return runHook("RECONCTL_AGENT_UNINSTALL_CMD")
	},
}

// runHook shells out to whatever command the host's provisioning wired
// into envVar, so the maintenance operations stay declarative from the
// dispatcher's point of view (run a named subcommand, inspect its exit
// code) without reconctl-agent hardcoding a package manager.
func runHook(envVar string) error {
	hookCmd := os.Getenv(envVar)
	if hookCmd == "" {
		return fmt.Errorf("reconctl-agent: %s is not set on this host", envVar)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	out, err := exec.CommandContext(ctx, "sh", "-c", hookCmd).CombinedOutput()
	if err != nil {
		return fmt.Errorf("reconctl-agent: %s failed: %w: %s", envVar, err, out)
	}
	return nil
}
