// Package config loads branchtrack configuration from a YAML file, the
// environment, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// Config is the top-level configuration struct for branchtrack.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Payload   PayloadConfig   `mapstructure:"payload"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// TrackerConfig holds branch tracker settings.
type TrackerConfig struct {
	MaxBranches int `mapstructure:"max_branches"`
	// ParamsSchema is an optional path to a JSON schema, or the built-in name "flight",
	// that every branch's params must satisfy.
	ParamsSchema string `mapstructure:"params_schema"`
}

// PayloadConfig holds payload retention settings.
type PayloadConfig struct {
	// CompressThreshold is a humanized byte size such as "4KB". "0" disables compression.
	CompressThreshold string `mapstructure:"compress_threshold"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidMaxBranches indicates the tracker capacity is not positive.
	ErrInvalidMaxBranches = errors.New("tracker.max_branches must be positive")
	// ErrInvalidCompressThreshold indicates the threshold is not a byte size.
	ErrInvalidCompressThreshold = errors.New("payload.compress_threshold must be a byte size")
	// ErrInvalidLogLevel indicates an unknown logging level.
	ErrInvalidLogLevel = errors.New("logging.level must be one of debug, info, warn, error")
	// ErrInvalidLogFormat indicates an unknown logging format.
	ErrInvalidLogFormat = errors.New("logging.format must be json or text")
	// ErrInvalidSampleRatio indicates the sample ratio is out of range.
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be between 0 and 1")
	// ErrEmptyMetricsAddr indicates metrics are enabled without a listen address.
	ErrEmptyMetricsAddr = errors.New("metrics.addr is required when metrics are enabled")
)

// Logging formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// maxSampleRatio is the upper bound for telemetry.sample_ratio.
const maxSampleRatio = 1.0

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Tracker.MaxBranches <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxBranches, c.Tracker.MaxBranches)
	}

	_, err := c.Payload.Threshold()
	if err != nil {
		return err
	}

	_, err = c.Logging.SlogLevel()
	if err != nil {
		return err
	}

	if c.Logging.Format != FormatJSON && c.Logging.Format != FormatText {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > maxSampleRatio {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	return nil
}

// Threshold returns the compression threshold in bytes.
func (c PayloadConfig) Threshold() (int, error) {
	size, err := humanize.ParseBytes(c.CompressThreshold)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCompressThreshold, c.CompressThreshold)
	}

	if size > maxThresholdBytes {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidCompressThreshold, c.CompressThreshold)
	}

	return int(size), nil //nolint:gosec // bounded by maxThresholdBytes.
}

// maxThresholdBytes caps the compression threshold at 1 GiB.
const maxThresholdBytes = 1 << 30

// SlogLevel maps the configured level name to a slog level.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Level)
	}
}
