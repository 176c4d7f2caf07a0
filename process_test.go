package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The lifecycle tests run a real child process. /bin/sh stands in for the
// suricata binary: the controller always passes "-c <config>", so the config
// value doubles as the shell command.
func shellController(t *testing.T, command string) *Controller {
	t.Helper()
	cfg := &Config{
		SuricataBinary: "/bin/sh",
		SuricataConfig: command,
		Interface:      "lo",
		StartupConfirm: 200 * time.Millisecond,
		StopTimeout:    2 * time.Second,
	}
	return NewController(cfg, testLogger())
}

func TestStartStopLifecycle(t *testing.T) {
	c := shellController(t, "sleep 30")
	require.NoError(t, c.Start())

	st := c.Status()
	assert.True(t, st.Running)
	assert.Equal(t, string(StateRunning), st.Status)
	assert.NotZero(t, st.PID)
	assert.NotEmpty(t, st.Uptime)

	// A second start must not spawn a second process.
	assert.ErrorIs(t, c.Start(), ErrAlreadyRunning)

	require.NoError(t, c.Stop(true))
	st = c.Status()
	assert.False(t, st.Running)
	assert.Equal(t, string(StateStopped), st.Status)

	assert.ErrorIs(t, c.Stop(true), ErrNoProcess)
}

func TestStartFailureReportsOutput(t *testing.T) {
	c := shellController(t, "echo bad config >&2; exit 1")
	err := c.Start()

	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Output, "bad config")

	st := c.Status()
	assert.False(t, st.Running)
	assert.Equal(t, string(StateStopped), st.Status)
}

func TestCrashDetection(t *testing.T) {
	c := shellController(t, "sleep 0.4")
	require.NoError(t, c.Start())
	require.True(t, c.Status().Running)

	// The child exits on its own after the confirmation window.
	require.Eventually(t, func() bool {
		return c.Status().Status == string(StateCrashed)
	}, 3*time.Second, 50*time.Millisecond)
	assert.False(t, c.Status().Running)
}

func TestRestartSpawnsFreshProcess(t *testing.T) {
	c := shellController(t, "sleep 30")
	require.NoError(t, c.Start())
	first := c.Status().PID

	require.NoError(t, c.Restart())
	second := c.Status().PID
	assert.True(t, c.Status().Running)
	assert.NotEqual(t, first, second)

	require.NoError(t, c.Stop(false))
}

func TestReloadRulesRequiresRunningProcess(t *testing.T) {
	c := shellController(t, "sleep 30")
	assert.ErrorIs(t, c.ReloadRules(), ErrNotRunning)
}

func TestValidateConfig(t *testing.T) {
	ctx := context.Background()

	ok := NewController(&Config{SuricataBinary: "true", SuricataConfig: "x"}, testLogger()).ValidateConfig(ctx)
	assert.True(t, ok.Valid)
	assert.Equal(t, "configuration is valid", ok.Message)

	bad := NewController(&Config{SuricataBinary: "false", SuricataConfig: "x"}, testLogger()).ValidateConfig(ctx)
	assert.False(t, bad.Valid)
	assert.Contains(t, bad.Message, "failed")
}

func TestProcessMonitorRestartsCrashedProcess(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "runs")
	cfg := &Config{
		SuricataBinary: "/bin/sh",
		SuricataConfig: fmt.Sprintf("echo run >> %s; sleep 0.15", marker),
		Interface:      "lo",
		StartupConfirm: 30 * time.Millisecond,
		StopTimeout:    time.Second,
		AutoRestart:    true,
	}
	ctl := NewController(cfg, testLogger())
	app := &App{cfg: cfg, log: testLogger(), ctl: ctl}

	require.NoError(t, ctl.Start())
	require.Eventually(t, func() bool {
		return ctl.Status().Status == string(StateCrashed)
	}, 3*time.Second, 25*time.Millisecond)

	policy := NewRestartPolicy(3, 0)
	task := app.processMonitorTask(policy)
	require.NoError(t, task(context.Background()))
	assert.True(t, ctl.Status().Running)
	assert.Equal(t, 1, policy.Tries())

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "run"))

	_ = ctl.Stop(false)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "03:25:07", formatUptime(3*time.Hour+25*time.Minute+7*time.Second))
	assert.Equal(t, "00:00:00", formatUptime(-time.Second))
	assert.Equal(t, "27:00:00", formatUptime(27*time.Hour))
}

func TestSystemInfo(t *testing.T) {
	c := NewController(&Config{}, testLogger())
	info := c.SystemInfo()
	assert.Greater(t, info.CPUCount, 0)
	assert.Greater(t, info.MemoryTotal, uint64(0))
	assert.NotEmpty(t, info.Platform)
}

func TestInterfacesIncludeLoopback(t *testing.T) {
	c := NewController(&Config{}, testLogger())
	ifaces, err := c.Interfaces()
	require.NoError(t, err)
	require.NotEmpty(t, ifaces)

	var lo *NetInterface
	for i := range ifaces {
		if ifaces[i].Name == "lo" {
			lo = &ifaces[i]
			break
		}
	}
	require.NotNil(t, lo, "loopback interface missing")
	assert.True(t, lo.IsUp)
	assert.Equal(t, "127.0.0.1", lo.IPv4)
}
