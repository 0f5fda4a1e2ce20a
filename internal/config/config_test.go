package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxConcurrentJobs)
	assert.Equal(t, 3, cfg.DefaultMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, time.Second, cfg.SchedulerPollInterval)
	assert.InDelta(t, 0.85, cfg.DuplicateThreshold, 1e-9)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "7")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("S3_PATH_STYLE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxConcurrentJobs)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	assert.True(t, cfg.S3PathStyle)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("JOB_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "jobs:dlq", cfg.DLQName)
}
