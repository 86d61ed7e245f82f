package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		CPUHigh:              90,
		MemHigh:              80,
		LoadCheckInterval:    10 * time.Millisecond,
		CommandStartupDelay:  0,
		EnableCommandLogging: false,
	}
}

func TestExecuteAndWait_Success(t *testing.T) {
	e := New(testConfig(), nil)

	result, err := e.ExecuteAndWait(context.Background(), "echo", "echo hello", 5*time.Second, "")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.TimedOut)
}

func TestExecuteAndWait_NonZeroExit(t *testing.T) {
	e := New(testConfig(), nil)

	result, err := e.ExecuteAndWait(context.Background(), "fail", "exit 3", 5*time.Second, "")
	require.Error(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, 3, result.ExitCode)
}

func TestExecuteAndWait_Timeout(t *testing.T) {
	e := New(testConfig(), nil)

	start := time.Now()
	result, err := e.ExecuteAndWait(context.Background(), "sleeper", "sleep 30", 200*time.Millisecond, "")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, result.TimedOut)
	assert.Less(t, elapsed, 6*time.Second, "process group must be killed promptly, not after the full sleep")
}

func TestExecuteAndWait_ActiveCommandsTracked(t *testing.T) {
	e := New(testConfig(), nil)
	assert.Equal(t, 0, e.ActiveCommands())

	_, _ = e.ExecuteAndWait(context.Background(), "echo", "echo ok", 5*time.Second, "")
	assert.Equal(t, 0, e.ActiveCommands(), "active count must return to zero after the finalizer runs")
}

type fakeLoadSampler struct {
	cpu, mem float64
}

func (f fakeLoadSampler) CPUPercent() (float64, error) { return f.cpu, nil }
func (f fakeLoadSampler) MemPercent() (float64, error) { return f.mem, nil }

func TestExecuteAndWait_AdmissionWaitsUnderHighLoad(t *testing.T) {
	cfg := testConfig()
	cfg.LoadCheckInterval = 20 * time.Millisecond
	e := New(cfg, fakeLoadSampler{cpu: 95, mem: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	_, err := e.ExecuteAndWait(ctx, "echo", "echo ok", 5*time.Second, "")
	require.Error(t, err, "admission should still be blocked on host overload when the context expires")
}

func TestExecuteStream_YieldsLines(t *testing.T) {
	e := New(testConfig(), nil)

	lines, err := e.ExecuteStream(context.Background(), "printf", `printf "one\ntwo\nthree\n"`, 5*time.Second, "")
	require.NoError(t, err)

	var got []string
	for l := range lines {
		if l.Err != nil {
			continue
		}
		got = append(got, l.Text)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestExecuteStream_KillsOnContextCancel(t *testing.T) {
	e := New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	lines, err := e.ExecuteStream(ctx, "sleeper", "sleep 30", 30*time.Second, "")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	cancel()

	start := time.Now()
	for range lines {
	}
	assert.Less(t, time.Since(start), 6*time.Second)
}
