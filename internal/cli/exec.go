package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keelhq/keel/internal/types"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Database string
	Caller   string
	Funds    string
	Msg      string
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <component>",
		Short: "Execute a command against a component",
		Long: `Execute one state-mutating command against a component.

The command document is the component's JSON execute message. Attached
funds use the compact coin form "1000usei" (comma-separated for several
denoms) and are credited to the component's custody before the handler
runs.

Exit codes:
  0 - Command committed
  1 - Command rejected (nothing written)
  2 - Command error (database not found, malformed JSON or funds)

Examples:
  keel exec escrow --db ./keel.db --caller alice --funds 1000usei \
    --msg '{"open_case":{"parties":["alice","bob"],"amount":{"denom":"usei","amount":"1000"},"model":{"multi_sig":{"threshold":2}}}}'
  keel exec vault --db ./keel.db --caller alice --msg '{"withdraw":{"vault_id":1,"shares":"500"}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "caller account (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().StringVar(&opts.Funds, "funds", "", "attached funds, e.g. \"1000usei\"")
	cmd.Flags().StringVar(&opts.Msg, "msg", "", "execute message as JSON (required)")
	_ = cmd.MarkFlagRequired("msg")

	return cmd
}

func runExec(opts *ExecOptions, component string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if !json.Valid([]byte(opts.Msg)) {
		return NewExitError(ExitCommandError, "invalid --msg JSON")
	}

	var funds []types.Coin
	if opts.Funds != "" {
		var err error
		funds, err = types.ParseCoins(opts.Funds)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --funds", err)
		}
	}

	eng, st, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	rcpt, err := eng.Execute(context.Background(), component, types.AccountID(opts.Caller), funds, json.RawMessage(opts.Msg))
	if err != nil {
		return reportRejection(formatter, err)
	}

	if opts.Format == "json" {
		return formatter.Success(newReceiptView(rcpt))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Committed seq %d: %s\n", rcpt.Seq, rcpt.Action)
	for _, ev := range rcpt.Events {
		fmt.Fprintf(out, "  event %s\n", ev.Type)
		for _, attr := range ev.Attributes {
			fmt.Fprintf(out, "    %s=%s\n", attr.Key, attr.Value)
		}
	}
	for _, tr := range rcpt.Transfers {
		fmt.Fprintf(out, "  transfer %s %s -> %s\n", tr.Amount.Amount.String(), tr.Amount.Denom, tr.Recipient)
	}
	return nil
}
