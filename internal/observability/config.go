// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for all branchtrack application modes (CLI, MCP, replay).
package observability

import (
	"log/slog"
	"time"
)

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeCLI is the plain CLI command execution mode.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server mode.
	ModeMCP AppMode = "mcp"
	// ModeReplay is the offline script replay mode.
	ModeReplay AppMode = "replay"
)

const (
	defaultServiceName     = "branchtrack"
	defaultShutdownTimeout = 5 * time.Second
)

// Identity names the running process in logs and telemetry resources.
type Identity struct {
	Service     string
	Version     string
	Environment string
	Mode        AppMode
}

// LogConfig controls the slog handler built by Init.
type LogConfig struct {
	Level slog.Level
	JSON  bool
}

// ExportConfig selects where telemetry goes. With no endpoint and Prometheus
// disabled, Init installs no-op providers.
type ExportConfig struct {
	// OTLPEndpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool
	// Prometheus attaches a pull reader served by Providers.MetricsHandler.
	Prometheus bool
}

// SamplingConfig controls trace sampling. Always wins over the
// OTEL_TRACES_SAMPLER variables, which win over Ratio.
type SamplingConfig struct {
	Always bool
	// Ratio of root traces kept. Zero keeps all of them.
	Ratio float64
}

// Config holds all observability configuration.
type Config struct {
	Identity        Identity
	Log             LogConfig
	Export          ExportConfig
	Sampling        SamplingConfig
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a CLI-mode configuration that exports nothing and
// logs text at info level.
func DefaultConfig() Config {
	return Config{
		Identity:        Identity{Service: defaultServiceName, Mode: ModeCLI},
		Log:             LogConfig{Level: slog.LevelInfo},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
