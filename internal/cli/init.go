package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/types"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
	Caller   string
	Msg      string
}

// ReceiptView is the JSON shape of a committed invocation receipt.
type ReceiptView struct {
	Seq       int64            `json:"seq"`
	Token     string           `json:"token"`
	Action    string           `json:"action"`
	Events    []types.Event    `json:"events,omitempty"`
	Transfers []types.Transfer `json:"transfers,omitempty"`
}

func newReceiptView(rcpt *engine.Receipt) ReceiptView {
	return ReceiptView{
		Seq:       rcpt.Seq,
		Token:     rcpt.Token,
		Action:    rcpt.Action,
		Events:    rcpt.Events,
		Transfers: rcpt.Transfers,
	}
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <component>",
		Short: "Instantiate a component",
		Long: `Instantiate a component's configuration record.

Each component (escrow, vault) is instantiated exactly once per database.
The init document is the component's JSON instantiate message.

Exit codes:
  0 - Component instantiated
  1 - Instantiation rejected (already instantiated, invalid document)
  2 - Command error (database not found, malformed JSON)

Examples:
  keel init escrow --db ./keel.db --caller admin-1 --msg '{"default_denom":"usei"}'
  keel init vault --db ./keel.db --caller admin-1 --msg '{"max_fee_bps":300}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "caller account (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().StringVar(&opts.Msg, "msg", "{}", "instantiate message as JSON")

	return cmd
}

func runInit(opts *InitOptions, component string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	if !json.Valid([]byte(opts.Msg)) {
		return NewExitError(ExitCommandError, "invalid --msg JSON")
	}

	eng, st, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	rcpt, err := eng.Instantiate(context.Background(), component, types.AccountID(opts.Caller), json.RawMessage(opts.Msg))
	if err != nil {
		return reportRejection(formatter, err)
	}

	formatter.VerboseLog("instantiated %s at seq %d", component, rcpt.Seq)
	if opts.Format == "json" {
		return formatter.Success(newReceiptView(rcpt))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Instantiated %s (seq %d, action %s)\n", component, rcpt.Seq, rcpt.Action)
	return nil
}

// reportRejection prints a rejected invocation and returns ExitFailure.
// Untagged errors (substrate faults) surface as command errors instead.
func reportRejection(formatter *OutputFormatter, err error) error {
	code := engine.CodeOf(err)
	if code == "" {
		return WrapExitError(ExitCommandError, "invocation failed", err)
	}
	if ferr := formatter.Error(string(code), err.Error(), nil); ferr != nil {
		return WrapExitError(ExitCommandError, "failed to write output", ferr)
	}
	return NewExitError(ExitFailure, err.Error())
}
