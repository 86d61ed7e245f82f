package dispatcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

// logTailLines truncates each per-script log file to its last N lines before
// the script itself appends, bounding host disk usage for long-running tools.
const logTailLines = 10000

// DockerCommand is the fully-assembled `docker run` invocation for one
// dispatched tool task.
type DockerCommand struct {
	Image   string
	Network string // empty for remote workers
	Env     map[string]string
	Mounts  map[string]string // host path -> container path
	Script  string            // sh -c payload
}

// BuildDockerCommand assembles the docker run arguments for dispatching
// module with args onto worker w, per spec.md §4.4 "Command construction".
func (d *Dispatcher) BuildDockerCommand(w types.WorkerNode, module string, args map[string]string) DockerCommand {
	serverURL := d.serverURLFor(w)

	env := map[string]string{
		"SERVER_URL": serverURL,
		"IS_LOCAL":   fmt.Sprintf("%t", w.IsLocal),
		// No other env is forwarded into the container (spec.md §115's
		// "two pipeline-runtime opt-outs" are deliberately not forwarded
		// here — see DESIGN.md's pkg/dispatcher entry for why).
	}

	cmd := DockerCommand{
		Image: fmt.Sprintf("%s:%s", d.cfg.TaskExecutorImage, d.cfg.ImageTag),
		Env:   env,
		Mounts: map[string]string{
			d.cfg.HostResultsDir: d.cfg.ContainerResultsMount,
			d.cfg.HostLogsDir:    d.cfg.ContainerLogsMount,
		},
	}
	if w.IsLocal {
		cmd.Network = d.cfg.DockerNetworkName
	}

	cmd.Script = buildScript(module, args, d.cfg.ContainerLogsMount)
	return cmd
}

// serverURLFor returns the SERVER_URL the container should use: the internal
// Docker service name for local workers, the operator-configured public host
// for remote ones.
func (d *Dispatcher) serverURLFor(w types.WorkerNode) string {
	if w.IsLocal {
		return fmt.Sprintf("http://reconctl-server:%d", d.cfg.ServerPort)
	}
	return fmt.Sprintf("https://%s:%d", d.cfg.PublicHost, d.cfg.ServerPort)
}

// buildScript renders "reconagent -m <module> --key=value ..." with
// deterministic arg ordering and shell-quoted values, prefixed by a snippet
// that truncates the module's log file to its last logTailLines lines before
// the script itself starts appending to it.
func buildScript(module string, args map[string]string, containerLogsMount string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("reconagent -m ")
	b.WriteString(module)
	for _, k := range keys {
		fmt.Fprintf(&b, " --%s=%s", k, shellQuote(args[k]))
	}

	logFile := fmt.Sprintf("%s/%s.log", strings.TrimSuffix(containerLogsMount, "/"), module)
	truncate := fmt.Sprintf("tail -n %d %s > %s.tmp 2>/dev/null && mv %s.tmp %s", logTailLines, logFile, logFile, logFile, logFile)
	return fmt.Sprintf("%s; %s >> %s 2>&1", truncate, b.String(), logFile)
}

// shellQuote wraps s in single quotes, escaping any embedded single quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
