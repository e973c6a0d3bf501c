package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/keelhq/keel/internal/codec"
	"github.com/keelhq/keel/internal/engine"
	"github.com/keelhq/keel/internal/escrow"
	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/testutil"
	"github.com/keelhq/keel/internal/types"
	"github.com/keelhq/keel/internal/vault"
)

// TraceEvent is one step's observable outcome. Successful steps carry the
// assigned sequence number, action tag, events, and transfers; rejected
// steps carry only the failure code.
type TraceEvent struct {
	Seq       int64            `json:"seq,omitempty"`
	Action    string           `json:"action,omitempty"`
	Error     string           `json:"error,omitempty"`
	Events    []types.Event    `json:"events,omitempty"`
	Transfers []types.Transfer `json:"transfers,omitempty"`
}

// Result is a completed scenario run.
type Result struct {
	ScenarioName string
	Trace        []TraceEvent
	StateHash    string
	Failures     []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes a scenario against a fresh in-memory substrate hosting the
// escrow and vault components, with a deterministic clock and sequential
// tokens. Running the same scenario twice yields identical traces and
// identical state hashes.
func Run(sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open substrate: %w", err)
	}
	defer st.Close()

	eng := engine.New(st,
		engine.WithTokenGenerator(&engine.SequenceGenerator{}),
		engine.WithClock(testutil.NewClock().Now),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err := eng.Register(escrow.New()); err != nil {
		return nil, err
	}
	if err := eng.Register(vault.New()); err != nil {
		return nil, err
	}

	ctx := context.Background()
	res := &Result{ScenarioName: sc.Name}

	for i, stp := range sc.Steps {
		msgRaw, err := codec.Marshal(stp.Msg)
		if err != nil {
			return nil, fmt.Errorf("step %d: encode msg: %w", i, err)
		}

		var rcpt *engine.Receipt
		var execErr error
		if stp.Init != "" {
			rcpt, execErr = eng.Instantiate(ctx, stp.Init, types.AccountID(stp.Caller), msgRaw)
		} else {
			funds, err := types.ParseCoins(stp.Funds)
			if err != nil {
				return nil, fmt.Errorf("step %d: funds: %w", i, err)
			}
			rcpt, execErr = eng.Execute(ctx, stp.Component, types.AccountID(stp.Caller), funds, msgRaw)
		}

		if execErr != nil {
			code := string(engine.CodeOf(execErr))
			if code == "" {
				return nil, fmt.Errorf("step %d: %w", i, execErr)
			}
			if stp.Expect == nil || stp.Expect.Error != code {
				res.Failures = append(res.Failures,
					fmt.Sprintf("step %d: unexpected failure %s: %v", i, code, execErr))
			}
			res.Trace = append(res.Trace, TraceEvent{Error: code})
			continue
		}

		if stp.Expect != nil {
			if stp.Expect.Error != "" {
				res.Failures = append(res.Failures,
					fmt.Sprintf("step %d: expected failure %s, got action %s", i, stp.Expect.Error, rcpt.Action))
			}
			if stp.Expect.Action != "" && stp.Expect.Action != rcpt.Action {
				res.Failures = append(res.Failures,
					fmt.Sprintf("step %d: expected action %s, got %s", i, stp.Expect.Action, rcpt.Action))
			}
		}
		res.Trace = append(res.Trace, TraceEvent{
			Seq:       rcpt.Seq,
			Action:    rcpt.Action,
			Events:    rcpt.Events,
			Transfers: rcpt.Transfers,
		})
	}

	res.StateHash, err = st.StateHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("final state hash: %w", err)
	}
	return res, nil
}
