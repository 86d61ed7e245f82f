// Command reconagent is the container entrypoint dispatched by
// pkg/dispatcher into every task container (spec.md §231): "docker run
// ... <image> sh -c \"reconagent -m <module> --key=value...\"". Unlike
// cmd/reconserver/cmd/reconctl-migrate/cmd/reconctl-agent, its argument
// shape isn't a fixed cobra subcommand tree — it's "-m <module>" followed
// by a module-specific set of "--key=value" flags, mirroring the Python
// "-m module --flag=value" convention the dispatcher's script builder
// already renders (spec.md §231) — so it parses os.Args directly instead
// of pulling in cobra for a single dynamic flag set.
//
// The container inherits only SERVER_URL and IS_LOCAL from the dispatcher
// (spec.md §6): every module that touches the database first calls
// pkg/client.WorkersConfig to learn the Postgres/Redis connection it
// should use.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/xingrin/reconctl/pkg/log"
)

// Container-side mount points a task always sees, regardless of what host
// path the dispatcher bind-mounted them from (pkg/config's
// CONTAINER_RESULTS_MOUNT/CONTAINER_LOGS_MOUNT defaults, baked into the
// task-executor image rather than forwarded as env here).
const (
	resultsMount = "/results"
	logsMount    = "/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reconagent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	initLogging()

	module, flags, err := parseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverURL := os.Getenv("SERVER_URL")
	isLocal := os.Getenv("IS_LOCAL") == "true"

	switch module {
	case "run_initiate_scan":
		return runInitiateScan(ctx, serverURL, isLocal, flags)
	case "run_cleanup":
		return runCleanup(flags)
	case "run_delete_targets":
		return runDelete(ctx, serverURL, isLocal, deleteTargets, flags)
	case "run_delete_organizations":
		return runDelete(ctx, serverURL, isLocal, deleteOrganizations, flags)
	case "run_delete_scans":
		return runDelete(ctx, serverURL, isLocal, deleteScans, flags)
	default:
		return fmt.Errorf("unknown module %q", module)
	}
}

func initLogging() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	log.Init(log.Config{Level: log.Level(level), JSONOutput: os.Getenv("LOG_JSON") != "false"})
}

// parseArgs reads "-m <module> --key=value ..." (spec.md §231). Unlike
// Go's flag package, the set of --key flags is module-specific and
// unknown up front, so this walks os.Args by hand instead of registering
// a fixed flag set.
func parseArgs(args []string) (module string, flags map[string]string, err error) {
	flags = map[string]string{}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-m":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("-m requires a module name")
			}
			module = args[i+1]
			i++
		case strings.HasPrefix(arg, "--"):
			kv := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
			if len(kv) != 2 {
				return "", nil, fmt.Errorf("malformed flag %q, want --key=value", arg)
			}
			flags[kv[0]] = kv[1]
		default:
			return "", nil, fmt.Errorf("unrecognized argument %q", arg)
		}
	}
	if module == "" {
		return "", nil, fmt.Errorf("missing -m <module>")
	}
	return module, flags, nil
}
