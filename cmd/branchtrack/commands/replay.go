package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/branchtrack/internal/observability"
	"github.com/Sumatoshi-tech/branchtrack/internal/replay"
	"github.com/Sumatoshi-tech/branchtrack/pkg/persist"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand() *cobra.Command {
	var (
		debug        bool
		colorize     bool
		nocolor      bool
		reportDir    string
		reportFormat string
	)

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Replay a branch script against a fresh session",
		Long: `Replay a YAML script of branch operations against a fresh session and
print the outcome of every step.

Steps: record, fork, result, results, diff, lineage, stats. A step may declare
expect_error with an error code (capacity_exceeded, not_found,
invalid_version, invalid_params); the command fails when any step ends
differently than declared.

With --report-dir the run is also saved as replay-report.json (or .yaml).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			if nocolor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			} else if colorize {
				color.NoColor = false //nolint:reassign // intentional override of library global
			}

			cfg, err := loadConfig(cobraCmd)
			if err != nil {
				return err
			}

			script, err := replay.LoadFile(args[0])
			if err != nil {
				return err
			}

			codec, err := persist.CodecFor(reportFormat)
			if err != nil {
				return err
			}

			opts, err := sessionOptions(cfg)
			if err != nil {
				return err
			}

			providers, err := initObservability(cfg, observability.ModeReplay, debug)
			if err != nil {
				return err
			}
			defer shutdownObservability(providers)

			report, err := replay.Run(cobraCmd.Context(), script, replay.Options{
				Session: opts,
				Logger:  providers.Logger,
			})
			if err != nil {
				return err
			}

			replay.Render(cobraCmd.OutOrStdout(), report)

			if reportDir != "" {
				summary, sumErr := replay.Summarize(report)
				if sumErr != nil {
					return sumErr
				}

				persister := persist.NewPersister[replay.Summary](replay.SummaryBasename, codec)

				path, saveErr := persister.Save(reportDir, summary)
				if saveErr != nil {
					return fmt.Errorf("save replay report: %w", saveErr)
				}

				providers.Logger.Info("replay report saved", "path", path, "session_id", report.SessionID)
			}

			failed := report.Failed()
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d steps", replay.ErrExpectationFailed, failed, len(report.Outcomes))
			}

			return nil
		},
	}

	registerConfigFlag(cmd)
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cmd.Flags().BoolVar(&colorize, "color", false, "force colored output")
	cmd.Flags().BoolVar(&nocolor, "no-color", false, "disable colored output")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "directory to save the replay report in")
	cmd.Flags().StringVar(&reportFormat, "report-format", persist.FormatJSON, "report format: json or yaml")

	return cmd
}
