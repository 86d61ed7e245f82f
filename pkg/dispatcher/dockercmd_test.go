package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xingrin/reconctl/pkg/types"
)

func testDispatcherForCmd() *Dispatcher {
	return New(Config{
		TaskExecutorImage:     "reconctl/executor",
		ImageTag:              "v1.2.3",
		DockerNetworkName:     "reconctl-net",
		ServerPort:            8080,
		PublicHost:            "recon.example.com",
		HostResultsDir:        "/opt/xingrin/results",
		HostLogsDir:           "/opt/xingrin/logs",
		ContainerResultsMount: "/results",
		ContainerLogsMount:    "/logs",
	}, nil, nil, nil, nil)
}

func TestBuildDockerCommand_LocalWorkerJoinsNetworkAndUsesServiceURL(t *testing.T) {
	d := testDispatcherForCmd()
	w := types.WorkerNode{ID: "w1", IsLocal: true}

	cmd := d.BuildDockerCommand(w, "run_initiate_scan", map[string]string{"scan_id": "abc"})

	assert.Equal(t, "reconctl-net", cmd.Network)
	assert.Contains(t, cmd.Env["SERVER_URL"], "reconctl-server")
	assert.Equal(t, "true", cmd.Env["IS_LOCAL"])
}

func TestBuildDockerCommand_RemoteWorkerNoNetworkUsesPublicHost(t *testing.T) {
	d := testDispatcherForCmd()
	w := types.WorkerNode{ID: "w2", IsLocal: false}

	cmd := d.BuildDockerCommand(w, "run_initiate_scan", map[string]string{"scan_id": "abc"})

	assert.Empty(t, cmd.Network)
	assert.Contains(t, cmd.Env["SERVER_URL"], "recon.example.com")
	assert.Equal(t, "false", cmd.Env["IS_LOCAL"])
}

func TestBuildDockerCommand_MountsAndScriptArgs(t *testing.T) {
	d := testDispatcherForCmd()
	w := types.WorkerNode{ID: "w1", IsLocal: true}

	cmd := d.BuildDockerCommand(w, "run_cleanup", map[string]string{"retention_days": "30"})

	assert.Equal(t, "/results", cmd.Mounts["/opt/xingrin/results"])
	assert.Equal(t, "/logs", cmd.Mounts["/opt/xingrin/logs"])
	assert.Contains(t, cmd.Script, "reconagent -m run_cleanup")
	assert.Contains(t, cmd.Script, "--retention_days='30'")
}

func TestShellQuote_EscapesEmbeddedSingleQuotes(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestDeleteModule_UnknownEntityErrors(t *testing.T) {
	_, err := deleteModule(DeleteEntity("bogus"))
	assert.Error(t, err)
}

func TestDeleteModule_KnownEntities(t *testing.T) {
	m, err := deleteModule(DeleteTargets)
	assert.NoError(t, err)
	assert.Equal(t, "run_delete_targets", m)
}
