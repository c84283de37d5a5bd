package jobsched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchedulerConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.yaml")
	contents := "label: nightly-batch\njobsWindow: 4\ntimeoutSeconds: 30\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadSchedulerConfigYAML(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly-batch", cfg.Label)
	assert.Equal(t, 4, cfg.JobsWindow)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
}

func TestLoadSchedulerConfigTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.toml")
	contents := "label = \"nightly-batch\"\njobs_window = 2\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadSchedulerConfigTOML(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly-batch", cfg.Label)
	assert.Equal(t, 2, cfg.JobsWindow)
}

func TestApplyEnvOverridesFields(t *testing.T) {
	t.Setenv("JOBSCHED_LABEL", "from-env")
	t.Setenv("JOBSCHED_JOBS_WINDOW", "3")
	t.Setenv("JOBSCHED_CRITICAL", "false")

	cfg := &SchedulerConfig{Label: "original", JobsWindow: 1}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "from-env", cfg.Label)
	assert.Equal(t, 3, cfg.JobsWindow)
	require.NotNil(t, cfg.Critical)
	assert.False(t, *cfg.Critical)
}

func TestSchedulerConfigOptions(t *testing.T) {
	critical := false
	cfg := &SchedulerConfig{
		Label:           "batch",
		JobsWindow:      2,
		TimeoutSeconds:  5,
		ShutdownSeconds: 1,
		Critical:        &critical,
	}

	sched, err := NewSchedulerFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "batch", sched.Label())
	assert.False(t, sched.Critical())
	assert.Equal(t, 2, sched.jobsWindow)
	assert.Equal(t, 5*time.Second, sched.timeout)
	assert.Equal(t, 1*time.Second, sched.shutdownTimeout)
}
