package dispatcher

import (
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/xingrin/reconctl/pkg/types"
)

// LocalTransport runs a DockerCommand on the host shell. Used for workers
// with IsLocal=true, where no SSH hop is needed.
type LocalTransport struct{}

// NewLocalTransport builds the Local execution transport (spec.md §4.4).
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{}
}

// Run shells out to `docker run` and captures stdout; the first-line-trimmed
// output is treated as the container id.
func (t *LocalTransport) Run(ctx context.Context, _ types.WorkerNode, cmd DockerCommand) (TransportResult, error) {
	dockerArgs := renderDockerRunArgs(cmd)
	full := "docker " + strings.Join(dockerArgs, " ")

	out, err := exec.CommandContext(ctx, "sh", "-c", full).Output()
	if err != nil {
		return TransportResult{OK: false, Message: err.Error()}, err
	}

	containerID := firstLine(string(out))
	return TransportResult{OK: true, ContainerID: containerID}, nil
}

// RunScript shells out to a raw script, bypassing the docker-run
// arg-builder entirely — used for host-level maintenance commands
// (agent uninstall, agent update) rather than task containers.
func (t *LocalTransport) RunScript(ctx context.Context, _ types.WorkerNode, script string) (TransportResult, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", script).CombinedOutput()
	if err != nil {
		return TransportResult{OK: false, Message: string(out)}, err
	}
	return TransportResult{OK: true, Message: string(out)}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// renderDockerRunArgs builds the `docker run --rm -d --pull=missing ...`
// argument list shared by both transports (spec.md §6 container launch
// contract).
func renderDockerRunArgs(cmd DockerCommand) []string {
	args := []string{"run", "--rm", "-d", "--pull=missing"}

	if cmd.Network != "" {
		args = append(args, "--network", cmd.Network)
	}

	envKeys := make([]string, 0, len(cmd.Env))
	for k := range cmd.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		args = append(args, "-e", k+"="+shellQuote(cmd.Env[k]))
	}

	mountKeys := make([]string, 0, len(cmd.Mounts))
	for k := range cmd.Mounts {
		mountKeys = append(mountKeys, k)
	}
	sort.Strings(mountKeys)
	for _, host := range mountKeys {
		args = append(args, "-v", host+":"+cmd.Mounts[host])
	}

	args = append(args, cmd.Image, "sh", "-c", strconv.Quote(cmd.Script))
	return args
}
