package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/branchtrack/internal/config"
)

const (
	testMaxBranches    = 8
	testEnvMaxBranches = 32
	testThresholdBytes = 1024
	testDefaultBytes   = 4000
	testSampleRatio    = 0.25
	testFilePerm       = 0o600
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "branchtrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), testFilePerm))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, config.DefaultMaxBranches, cfg.Tracker.MaxBranches)
	assert.Empty(t, cfg.Tracker.ParamsSchema)
	assert.Equal(t, config.DefaultCompressThreshold, cfg.Payload.CompressThreshold)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, config.DefaultLogFormat, cfg.Logging.Format)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, config.DefaultMetricsAddr, cfg.Metrics.Addr)

	threshold, err := cfg.Payload.Threshold()
	require.NoError(t, err)
	assert.Equal(t, testDefaultBytes, threshold)
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `tracker:
  max_branches: 8
  params_schema: /etc/branchtrack/flight.json
payload:
  compress_threshold: 1KiB
logging:
  level: debug
  format: text
telemetry:
  otlp_endpoint: localhost:4317
  otlp_insecure: true
  sample_ratio: 0.25
  environment: staging
metrics:
  enabled: true
  addr: ":9464"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, testMaxBranches, cfg.Tracker.MaxBranches)
	assert.Equal(t, "/etc/branchtrack/flight.json", cfg.Tracker.ParamsSchema)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.InDelta(t, testSampleRatio, cfg.Telemetry.SampleRatio, 0.001)
	assert.Equal(t, "staging", cfg.Telemetry.Environment)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)

	threshold, err := cfg.Payload.Threshold()
	require.NoError(t, err)
	assert.Equal(t, testThresholdBytes, threshold)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"zero branches", "tracker:\n  max_branches: 0\n", config.ErrInvalidMaxBranches},
		{"bad threshold", "payload:\n  compress_threshold: lots\n", config.ErrInvalidCompressThreshold},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"bad format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"bad ratio", "telemetry:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
		{"no metrics addr", "metrics:\n  enabled: true\n  addr: \"\"\n", config.ErrEmptyMetricsAddr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "tracker: [unclosed\n"))
	require.Error(t, err)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BRANCHTRACK_TRACKER_MAX_BRANCHES", "32")
	t.Setenv("BRANCHTRACK_LOGGING_FORMAT", "text")

	cfg, err := config.LoadConfig(writeConfig(t, "tracker:\n  max_branches: 8\n"))
	require.NoError(t, err)

	assert.Equal(t, testEnvMaxBranches, cfg.Tracker.MaxBranches)
	assert.Equal(t, config.FormatText, cfg.Logging.Format)
}

func TestLoggingConfig_SlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}

	for name, want := range tests {
		level, err := config.LoggingConfig{Level: name}.SlogLevel()
		require.NoError(t, err, name)
		assert.Equal(t, want, level, name)
	}
}

func TestPayloadConfig_ThresholdDisabled(t *testing.T) {
	t.Parallel()

	threshold, err := config.PayloadConfig{CompressThreshold: "0"}.Threshold()
	require.NoError(t, err)
	assert.Zero(t, threshold)

	_, err = config.PayloadConfig{CompressThreshold: "8GB"}.Threshold()
	require.ErrorIs(t, err, config.ErrInvalidCompressThreshold)
}
