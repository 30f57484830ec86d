package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, warns, err := loadConfig("")
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "data/freight.db", cfg.DatabasePath)
	require.Equal(t, "localhost:7233", cfg.TemporalAddress)
	require.Equal(t, "default", cfg.TemporalNamespace)
	require.Equal(t, "freight-delay-queue", cfg.TaskQueue)
	require.Equal(t, 1, cfg.CutoffHours)
	require.Equal(t, 30, cfg.DefaultThresholdMinutes)
	require.InDelta(t, 5.0, cfg.SweepRPS, 0.001)
	require.False(t, cfg.ForceMockAdapters)

	// Empty cron secret is tolerated with a warning.
	require.NotEmpty(t, warns)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("TEMPORAL_ADDRESS", "temporal.internal:7233")
	t.Setenv("CRON_SECRET", "s3cret")
	t.Setenv("WORKFLOW_CUTOFF_HOURS", "2")
	t.Setenv("WORKFLOW_DEFAULT_THRESHOLD_MINUTES", "45")
	t.Setenv("FORCE_NOTIFICATION_MOCK_ADAPTER", "true")

	cfg, warns, err := loadConfig("")
	require.NoError(t, err)
	require.Empty(t, warns)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, ":9090", cfg.HTTPAddr)
	require.Equal(t, "temporal.internal:7233", cfg.TemporalAddress)
	require.Equal(t, "s3cret", cfg.CronSecret)
	require.Equal(t, 2, cfg.CutoffHours)
	require.Equal(t, 45, cfg.DefaultThresholdMinutes)
	require.True(t, cfg.ForceMockAdapters)
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("WORKFLOW_CUTOFF_HOURS", "-3")
	t.Setenv("WORKFLOW_DEFAULT_THRESHOLD_MINUTES", "zero")
	t.Setenv("SWEEP_RPS", "-1")
	t.Setenv("CRON_SECRET", "x")

	cfg, warns, err := loadConfig("")
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 1, cfg.CutoffHours)
	require.Equal(t, 30, cfg.DefaultThresholdMinutes)
	require.InDelta(t, 5.0, cfg.SweepRPS, 0.001)
	require.Len(t, warns, 4)
}

func TestLoadConfigRejectsBadTemporalAddress(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "not a host port")
	t.Setenv("CRON_SECRET", "x")

	_, _, err := loadConfig("")
	require.Error(t, err)
}
