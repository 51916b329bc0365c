package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/branchtrack/internal/config"
	"github.com/Sumatoshi-tech/branchtrack/internal/mcp"
	"github.com/Sumatoshi-tech/branchtrack/internal/observability"
	"github.com/Sumatoshi-tech/branchtrack/internal/session"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for branch tracking",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server holds one session of branches. Each recorded branch takes the next
free slot and creates a new version; earlier versions stay readable:
  - branch_record:  record params and result, optionally forking from a version
  - branch_result:  read one slot as of a version
  - branch_results: read every slot as of a version
  - branch_lineage: list the versions a version descends from
  - branch_diff:    compare the results of two versions
  - branch_stats:   report session counters

With metrics.enabled set, /metrics, /healthz and /readyz are served on
metrics.addr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cobraCmd)
			if err != nil {
				return err
			}

			providers, err := initObservability(cfg, observability.ModeMCP, debug)
			if err != nil {
				return err
			}
			defer shutdownObservability(providers)

			return runMCP(cobraCmd.Context(), cfg, providers)
		},
	}

	registerConfigFlag(cmd)
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

func runMCP(ctx context.Context, cfg *config.Config, providers observability.Providers) error {
	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return err
	}

	opts, err := sessionOptions(cfg)
	if err != nil {
		return err
	}

	sess, err := session.New(opts, session.Deps{Logger: providers.Logger})
	if err != nil {
		return err
	}

	trackerMetrics, err := observability.NewTrackerMetrics(providers.Meter, sess.TrackerStats)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := trackerMetrics.Close()
		if closeErr != nil {
			providers.Logger.Warn("tracker metrics close failed", "error", closeErr)
		}
	}()

	srv, err := mcp.NewServer(mcp.ServerDeps{
		Logger:  providers.Logger,
		Metrics: red,
		Tracer:  providers.Tracer,
		Session: sess,
	})
	if err != nil {
		return err
	}

	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           observability.NewMux(providers.MetricsHandler, sessionReady(sess)),
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		}
	}

	return serve(ctx, srv, metricsServer, providers.Logger)
}

// serve runs the stdio server and, when given, the metrics server until the
// stdio connection closes, ctx is canceled or either server fails.
func serve(ctx context.Context, srv *mcp.Server, metricsServer *http.Server, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer cancel()

		return srv.Run(groupCtx)
	})

	if metricsServer != nil {
		group.Go(func() error {
			logger.Info("metrics server listening", slog.String("addr", metricsServer.Addr))

			err := metricsServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}

			return nil
		})

		group.Go(func() error {
			<-groupCtx.Done()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
			defer shutdownCancel()

			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return group.Wait()
}
