package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	Component string // optional - filter to one component
	After     int64  // optional - skip records at or below this seq
}

// TraceEntry is one invocation in the timeline, joined with its events.
type TraceEntry struct {
	Seq       int64         `json:"seq"`
	Token     string        `json:"token"`
	Kind      string        `json:"kind"`
	Component string        `json:"component"`
	Caller    string        `json:"caller"`
	Action    string        `json:"action"`
	BlockTime int64         `json:"block_time"`
	Funds     []types.Coin  `json:"funds,omitempty"`
	Events    []types.Event `json:"events,omitempty"`
}

// TraceStats holds summary statistics for the timeline.
type TraceStats struct {
	Invocations int `json:"invocations"`
	Events      int `json:"events"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Dump the invocation timeline",
		Long: `Dump the committed invocation log as a chronological timeline.

Each entry shows the invocation's seq, caller, action tag, and the events
it emitted. The timeline is the audit trail: every committed state change
appears here exactly once, in order.

Examples:
  keel trace --db ./keel.db
  keel trace --db ./keel.db --component escrow
  keel trace --db ./keel.db --after 10 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Component, "component", "", "only show invocations for this component")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only show invocations with seq greater than this")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.ReadInvocations(ctx, opts.After, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read invocations", err)
	}
	logged, err := st.ReadEvents(ctx, opts.After, 0)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	eventsBySeq := make(map[int64][]types.Event)
	for _, le := range logged {
		eventsBySeq[le.Seq] = append(eventsBySeq[le.Seq], le.Event)
	}

	result := TraceResult{Timeline: []TraceEntry{}}
	for _, rec := range records {
		if opts.Component != "" && rec.Component != opts.Component {
			continue
		}
		entry := TraceEntry{
			Seq:       rec.Seq,
			Token:     rec.Token,
			Kind:      rec.Kind,
			Component: rec.Component,
			Caller:    rec.Caller,
			Action:    rec.Action,
			BlockTime: rec.BlockTime,
			Funds:     rec.Funds,
			Events:    eventsBySeq[rec.Seq],
		}
		result.Timeline = append(result.Timeline, entry)
		result.Stats.Invocations++
		result.Stats.Events += len(entry.Events)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	out := cmd.OutOrStdout()
	if len(result.Timeline) == 0 {
		fmt.Fprintln(out, "No invocations recorded")
		return nil
	}
	for _, entry := range result.Timeline {
		fmt.Fprintf(out, "[%d] %s %s by %s -> %s\n", entry.Seq, entry.Kind, entry.Component, entry.Caller, entry.Action)
		for _, c := range entry.Funds {
			fmt.Fprintf(out, "      funds %s%s\n", c.Amount.String(), c.Denom)
		}
		for _, ev := range entry.Events {
			fmt.Fprintf(out, "      event %s", ev.Type)
			for _, attr := range ev.Attributes {
				fmt.Fprintf(out, " %s=%s", attr.Key, attr.Value)
			}
			fmt.Fprintln(out)
		}
	}
	fmt.Fprintf(out, "%d invocations, %d events\n", result.Stats.Invocations, result.Stats.Events)
	return nil
}
