package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the invocation log and verify determinism",
		Long: `Replay the invocation log against a fresh in-memory substrate and
compare state hashes.

Every recorded invocation is re-executed in seq order with its recorded
token and block time. A healthy log reproduces the source database's
state hash exactly; any divergence means non-deterministic execution or
external state tampering.

Exit codes:
  0 - Replay reproduced the source state hash
  1 - State hashes diverged
  2 - Command error (database not found, replay aborted)

Examples:
  keel replay --db ./keel.db
  keel replay --db ./keel.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	src, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer src.Close()

	target, targetStore, err := openEngine(":memory:", opts.Verbose)
	if err != nil {
		return err
	}
	defer targetStore.Close()

	report, err := engine.Replay(ctx, src, target)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay aborted", err)
	}

	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Replayed %d invocations\n", report.Invocations)
		fmt.Fprintf(out, "  source hash: %s\n", report.SourceHash)
		fmt.Fprintf(out, "  replay hash: %s\n", report.ReplayHash)
		if report.Match {
			fmt.Fprintln(out, "Deterministic: state hashes match")
		} else {
			fmt.Fprintln(out, "DIVERGENCE: state hashes differ")
		}
	}

	if !report.Match {
		return NewExitError(ExitFailure, "replay diverged from source state")
	}
	return nil
}
