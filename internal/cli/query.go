package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
	Msg      string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <component>",
		Short: "Run a read-only query against a component",
		Long: `Run a read-only query against a component's committed state.

The query document is the component's JSON query message. Queries never
write: running the same query twice against an untouched database returns
identical bytes.

Exit codes:
  0 - Query answered
  1 - Query rejected (unknown entity, invalid document)
  2 - Command error (database not found, malformed JSON)

Examples:
  keel query escrow --db ./keel.db --msg '{"get_case":{"id":1}}'
  keel query vault --db ./keel.db --msg '{"list_vaults":{}}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Msg, "msg", "", "query message as JSON (required)")
	_ = cmd.MarkFlagRequired("msg")

	return cmd
}

func runQuery(opts *QueryOptions, component string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if !json.Valid([]byte(opts.Msg)) {
		return NewExitError(ExitCommandError, "invalid --msg JSON")
	}

	eng, st, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	raw, err := eng.Query(context.Background(), component, json.RawMessage(opts.Msg))
	if err != nil {
		return reportRejection(formatter, err)
	}

	if opts.Format == "json" {
		return formatter.Success(json.RawMessage(raw))
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}
