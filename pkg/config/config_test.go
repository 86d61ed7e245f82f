package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	clearEnv(t, "TASK_EXECUTOR_IMAGE", "IMAGE_TAG")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TASK_EXECUTOR_IMAGE")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t,
		"TASK_EXECUTOR_IMAGE", "IMAGE_TAG", "TASK_SUBMIT_INTERVAL",
		"HIGH_LOAD_WAIT_SECONDS", "SCAN_CPU_HIGH", "SCAN_MEM_HIGH",
		"ENABLE_COMMAND_LOGGING", "SERVER_PORT",
	)
	os.Setenv("TASK_EXECUTOR_IMAGE", "reconctl/task-executor")
	os.Setenv("IMAGE_TAG", "v1.0.0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "reconctl/task-executor", cfg.TaskExecutorImage)
	assert.Equal(t, "v1.0.0", cfg.ImageTag)
	assert.Equal(t, 5*time.Second, cfg.TaskSubmitInterval)
	assert.Equal(t, 60*time.Second, cfg.HighLoadWaitSeconds)
	assert.Equal(t, 90.0, cfg.ScanCPUHigh)
	assert.Equal(t, 80.0, cfg.ScanMemHigh)
	assert.True(t, cfg.EnableCommandLogging)
	assert.Equal(t, 8080, cfg.ServerPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t,
		"TASK_EXECUTOR_IMAGE", "IMAGE_TAG", "TASK_SUBMIT_INTERVAL",
		"SCAN_CPU_HIGH", "ENABLE_COMMAND_LOGGING",
	)
	os.Setenv("TASK_EXECUTOR_IMAGE", "reconctl/task-executor")
	os.Setenv("IMAGE_TAG", "v1.0.0")
	os.Setenv("TASK_SUBMIT_INTERVAL", "10")
	os.Setenv("SCAN_CPU_HIGH", "75.5")
	os.Setenv("ENABLE_COMMAND_LOGGING", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.TaskSubmitInterval)
	assert.Equal(t, 75.5, cfg.ScanCPUHigh)
	assert.False(t, cfg.EnableCommandLogging)
}

func TestGetEnvInt_InvalidFallsBackToDefault(t *testing.T) {
	clearEnv(t, "SOME_INT")
	os.Setenv("SOME_INT", "not-a-number")

	assert.Equal(t, 42, getEnvInt("SOME_INT", 42))
}

func TestGetEnvBool_InvalidFallsBackToDefault(t *testing.T) {
	clearEnv(t, "SOME_BOOL")
	os.Setenv("SOME_BOOL", "not-a-bool")

	assert.Equal(t, true, getEnvBool("SOME_BOOL", true))
}
