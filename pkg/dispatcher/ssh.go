package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/xingrin/reconctl/pkg/types"
)

// sshConnectTimeout bounds the single-use SSH handshake (spec.md §4.4).
const sshConnectTimeout = 10 * time.Second

// ErrTransport marks an SSH connect/exec failure distinct from a non-zero
// remote exit (spec.md §7 TransportError).
var ErrTransport = errors.New("dispatcher: ssh transport error")

// SSHTransport opens a single-use SSH connection per dispatch: connect,
// exec, collect output, close. Used for workers with IsLocal=false.
type SSHTransport struct {
	dialTimeout time.Duration
}

// NewSSHTransport builds the SSH execution transport (spec.md §4.4).
func NewSSHTransport() *SSHTransport {
	return &SSHTransport{dialTimeout: sshConnectTimeout}
}

// Run connects to w over SSH, execs the rendered docker command, and returns
// the first line of its stdout as the container id. A non-zero remote exit
// returns an error that does not wrap ErrTransport, with the exit status and
// stderr in the message. Connect and exec failures wrap ErrTransport; an
// authentication failure surfaces from the SSH handshake as a connect
// failure and is not reported as a separate kind.
func (t *SSHTransport) Run(ctx context.Context, w types.WorkerNode, cmd DockerCommand) (TransportResult, error) {
	config := &ssh.ClientConfig{
		User:            w.SSHUser,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // auto-add host key, per spec.md §4.4
		Timeout:         t.dialTimeout,
	}
	if w.SSHPassword != "" {
		config.Auth = []ssh.AuthMethod{ssh.Password(w.SSHPassword)}
	}

	addr := fmt.Sprintf("%s:%d", w.IPAddress, sshPortOrDefault(w.SSHPort))

	dialDone := make(chan error, 1)
	var client *ssh.Client
	go func() {
		var err error
		client, err = ssh.Dial("tcp", addr, config)
		dialDone <- err
	}()

	select {
	case err := <-dialDone:
		if err != nil {
			return TransportResult{OK: false, Message: err.Error()}, fmt.Errorf("%w: connect %s: %v", ErrTransport, addr, err)
		}
	case <-ctx.Done():
		return TransportResult{OK: false, Message: ctx.Err().Error()}, fmt.Errorf("%w: connect cancelled: %v", ErrTransport, ctx.Err())
	case <-time.After(t.dialTimeout):
		return TransportResult{OK: false, Message: "ssh connect timeout"}, fmt.Errorf("%w: connect timeout to %s", ErrTransport, addr)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return TransportResult{OK: false, Message: err.Error()}, fmt.Errorf("%w: new session: %v", ErrTransport, err)
	}
	defer session.Close()

	dockerArgs := renderDockerRunArgs(cmd)
	full := "docker " + strings.Join(dockerArgs, " ")

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(full); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return TransportResult{
				OK:      false,
				Message: fmt.Sprintf("exit %d: %s", exitErr.ExitStatus(), stderr.String()),
			}, fmt.Errorf("dispatcher: remote exit %d: %s", exitErr.ExitStatus(), stderr.String())
		}
		return TransportResult{OK: false, Message: err.Error()}, fmt.Errorf("%w: exec: %v", ErrTransport, err)
	}

	return TransportResult{OK: true, ContainerID: firstLine(stdout.String())}, nil
}

// RunScript connects to w over SSH and execs a raw script instead of a
// rendered docker-run command — used for host-level maintenance commands
// (agent uninstall, agent update).
func (t *SSHTransport) RunScript(ctx context.Context, w types.WorkerNode, script string) (TransportResult, error) {
	config := &ssh.ClientConfig{
		User:            w.SSHUser,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         t.dialTimeout,
	}
	if w.SSHPassword != "" {
		config.Auth = []ssh.AuthMethod{ssh.Password(w.SSHPassword)}
	}

	addr := fmt.Sprintf("%s:%d", w.IPAddress, sshPortOrDefault(w.SSHPort))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return TransportResult{OK: false, Message: err.Error()}, fmt.Errorf("%w: connect %s: %v", ErrTransport, addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return TransportResult{OK: false, Message: err.Error()}, fmt.Errorf("%w: new session: %v", ErrTransport, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(script); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return TransportResult{OK: false, Message: fmt.Sprintf("exit %d: %s", exitErr.ExitStatus(), stderr.String())},
				fmt.Errorf("dispatcher: remote exit %d: %s", exitErr.ExitStatus(), stderr.String())
		}
		return TransportResult{OK: false, Message: err.Error()}, fmt.Errorf("%w: exec: %v", ErrTransport, err)
	}

	return TransportResult{OK: true, Message: stdout.String()}, nil
}

func sshPortOrDefault(p int) int {
	if p <= 0 {
		return 22
	}
	return p
}
