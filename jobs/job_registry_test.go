package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubJob struct{ name string }

func (j *stubJob) Name() string                      { return j.name }
func (j *stubJob) Schedule() string                  { return "0 * * * *" }
func (j *stubJob) LockTimeout() time.Duration        { return time.Minute }
func (j *stubJob) Execute(ctx context.Context) error { return nil }

func TestJobConfigIsEnabled(t *testing.T) {
	cfg := JobConfig{Job: &stubJob{name: "stub_job"}, Enabled: true}
	assert.True(t, cfg.IsEnabled())

	t.Run("disabled in registry", func(t *testing.T) {
		disabled := JobConfig{Job: &stubJob{name: "stub_job"}, Enabled: false}
		assert.False(t, disabled.IsEnabled())
	})

	t.Run("env override false", func(t *testing.T) {
		t.Setenv("JOB_STUB_JOB", "false")
		assert.False(t, cfg.IsEnabled())
	})

	t.Run("env override zero", func(t *testing.T) {
		t.Setenv("JOB_STUB_JOB", "0")
		assert.False(t, cfg.IsEnabled())
	})

	t.Run("unrelated env value keeps enabled", func(t *testing.T) {
		t.Setenv("JOB_STUB_JOB", "yes")
		assert.True(t, cfg.IsEnabled())
	})
}

func TestRegisteredJobSchedulesParse(t *testing.T) {
	// Every registered job must carry a 5-field cron expression and a
	// positive lock timeout.
	for _, cfg := range GetJobConfigs(BaseJob{}) {
		assert.NotEmpty(t, cfg.Job.Name())
		assert.Greater(t, cfg.Job.LockTimeout(), time.Duration(0), cfg.Job.Name())
		assert.Len(t, strings.Fields(cfg.Job.Schedule()), 5, cfg.Job.Name())
	}
}
