// Package commands implements the branchtrack CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/branchtrack/internal/config"
	"github.com/Sumatoshi-tech/branchtrack/internal/observability"
	"github.com/Sumatoshi-tech/branchtrack/internal/session"
	"github.com/Sumatoshi-tech/branchtrack/pkg/version"
)

// ErrSessionFull indicates every branch slot of the session is in use.
var ErrSessionFull = errors.New("all branch slots in use")

const configFlag = "config"

// registerConfigFlag adds the --config flag shared by the session commands.
func registerConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String(configFlag, "", "path to a branchtrack.yaml config file")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", configFlag, err)
	}

	return config.LoadConfig(path)
}

// observabilityConfig maps the loaded configuration onto observability
// settings. The standard OTEL_EXPORTER_OTLP_* variables fill in whatever the
// configuration leaves empty.
func observabilityConfig(cfg *config.Config, mode observability.AppMode, debug bool) (observability.Config, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return observability.Config{}, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Identity.Version = version.Version
	obsCfg.Identity.Mode = mode
	obsCfg.Identity.Environment = cfg.Telemetry.Environment
	obsCfg.Log = observability.LogConfig{Level: level, JSON: cfg.Logging.Format == config.FormatJSON}
	obsCfg.Export = observability.ExportConfig{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPHeaders:  observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders),
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		Prometheus:   cfg.Metrics.Enabled,
	}
	obsCfg.Sampling.Ratio = cfg.Telemetry.SampleRatio

	if obsCfg.Export.OTLPEndpoint == "" {
		obsCfg.Export.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		obsCfg.Export.OTLPInsecure = obsCfg.Export.OTLPInsecure || os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}

	if len(obsCfg.Export.OTLPHeaders) == 0 {
		obsCfg.Export.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	}

	if debug {
		obsCfg.Log.Level = slog.LevelDebug
		obsCfg.Sampling.Always = true
	}

	return obsCfg, nil
}

func initObservability(cfg *config.Config, mode observability.AppMode, debug bool) (observability.Providers, error) {
	obsCfg, err := observabilityConfig(cfg, mode, debug)
	if err != nil {
		return observability.Providers{}, err
	}

	return observability.Init(obsCfg)
}

func shutdownObservability(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// sessionOptions builds session options from the tracker and payload sections.
func sessionOptions(cfg *config.Config) (session.Options, error) {
	threshold, err := cfg.Payload.Threshold()
	if err != nil {
		return session.Options{}, err
	}

	schema, err := session.LoadParamsSchema(cfg.Tracker.ParamsSchema)
	if err != nil {
		return session.Options{}, err
	}

	return session.Options{
		MaxBranches:       cfg.Tracker.MaxBranches,
		CompressThreshold: threshold,
		ParamsSchema:      schema,
	}, nil
}

// sessionReady fails once the session cannot accept another branch.
func sessionReady(sess *session.Session) observability.ReadyCheck {
	return func(_ context.Context) error {
		stats := sess.TrackerStats()
		if stats.Slots >= stats.Capacity {
			return fmt.Errorf("%w: %d/%d", ErrSessionFull, stats.Slots, stats.Capacity)
		}

		return nil
	}
}
