package engine

import (
	"context"
	"fmt"

	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// ReplayReport compares a replayed run against the source substrate.
type ReplayReport struct {
	Invocations int64  `json:"invocations"`
	SourceHash  string `json:"source_hash"`
	ReplayHash  string `json:"replay_hash"`
	Match       bool   `json:"match"`
}

// Replay re-executes every invocation from src's log, in sequence order,
// against a fresh substrate hosting the same apps. Recorded tokens and
// block times are used verbatim, so a divergent final hash means the
// handlers themselves are not deterministic (or the log was tampered
// with), never the clock.
func Replay(ctx context.Context, src *store.Store, target *Engine) (*ReplayReport, error) {
	var after int64
	var count int64
	const page = 256
	for {
		recs, err := src.ReadInvocations(ctx, after, page)
		if err != nil {
			return nil, fmt.Errorf("replay: read log: %w", err)
		}
		if len(recs) == 0 {
			break
		}
		for _, rec := range recs {
			rcpt, err := target.Submit(ctx, Invocation{
				Kind:      rec.Kind,
				Component: rec.Component,
				Caller:    types.AccountID(rec.Caller),
				Funds:     rec.Funds,
				Msg:       rec.Payload,
				Token:     rec.Token,
				BlockTime: rec.BlockTime,
			})
			if err != nil {
				return nil, fmt.Errorf("replay: seq %d (%s %s): %w",
					rec.Seq, rec.Component, rec.Action, err)
			}
			if rcpt.Seq != rec.Seq {
				return nil, fmt.Errorf("replay: sequence drift: log says %d, replay assigned %d",
					rec.Seq, rcpt.Seq)
			}
			count++
			after = rec.Seq
		}
	}

	srcHash, err := src.StateHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: hash source: %w", err)
	}
	dstHash, err := target.store.StateHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: hash replay: %w", err)
	}

	return &ReplayReport{
		Invocations: count,
		SourceHash:  srcHash,
		ReplayHash:  dstHash,
		Match:       srcHash == dstHash,
	}, nil
}

// StateHash exposes the substrate hash for trace output.
func (e *Engine) StateHash(ctx context.Context) (string, error) {
	return e.store.StateHash(ctx)
}

// Store exposes the underlying substrate for read-side tooling.
func (e *Engine) Store() *store.Store { return e.store }
