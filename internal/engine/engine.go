// Package engine is the invocation runtime for ledger components.
//
// The engine executes one command per invocation: it loads the target app,
// runs the whole read-validate-mutate-persist sequence inside a single
// store transaction, settles the returned transfer instructions against
// custodied balances, appends the invocation to the durable log, and
// commits - or rolls everything back on any failure. Callers never observe
// partial state or partial fund movement.
//
// Execution is strictly serialized: the host (here, the CLI or harness)
// submits commands one at a time, and SQLite's single writer connection
// enforces it mechanically.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// Engine hosts registered apps over one substrate.
type Engine struct {
	store  *store.Store
	apps   map[string]App
	tokens TokenGenerator
	now    func() int64
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenGenerator overrides the invocation token source.
// Tests and replay use deterministic generators.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithClock overrides the block-time source (unix seconds).
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over the given substrate.
// Defaults: UUIDv7 tokens, wall-clock block time, discarded logs.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		apps:   make(map[string]App),
		tokens: UUIDv7Generator{},
		now:    func() int64 { return time.Now().Unix() },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds an app. Registering two apps under one name is a
// programming error and fails loudly.
func (e *Engine) Register(app App) error {
	name := app.Name()
	if _, dup := e.apps[name]; dup {
		return fmt.Errorf("app %q already registered", name)
	}
	e.apps[name] = app
	return nil
}

// Invocation is one command submission. Token and BlockTime are filled by
// the engine for live traffic and taken verbatim from the log on replay.
type Invocation struct {
	Kind      string
	Component string
	Caller    types.AccountID
	Funds     []types.Coin
	Msg       json.RawMessage
	Token     string
	BlockTime int64
}

// Receipt reports a committed invocation.
type Receipt struct {
	Seq       int64
	Token     string
	Action    string
	Events    []types.Event
	Transfers []types.Transfer
}

// Instantiate initializes a component's configuration.
func (e *Engine) Instantiate(ctx context.Context, component string, caller types.AccountID, msg json.RawMessage) (*Receipt, error) {
	return e.Submit(ctx, Invocation{
		Kind:      store.KindInstantiate,
		Component: component,
		Caller:    caller,
		Msg:       msg,
		Token:     e.tokens.Generate(),
		BlockTime: e.now(),
	})
}

// Execute applies one state-mutating command with optional attached funds.
func (e *Engine) Execute(ctx context.Context, component string, caller types.AccountID, funds []types.Coin, msg json.RawMessage) (*Receipt, error) {
	return e.Submit(ctx, Invocation{
		Kind:      store.KindExecute,
		Component: component,
		Caller:    caller,
		Funds:     funds,
		Msg:       msg,
		Token:     e.tokens.Generate(),
		BlockTime: e.now(),
	})
}

// Submit runs one invocation atomically. On any failure the transaction
// rolls back and no state, log record, event, or transfer survives.
func (e *Engine) Submit(ctx context.Context, inv Invocation) (*Receipt, error) {
	app, ok := e.apps[inv.Component]
	if !ok {
		return nil, Newf(CodeNotFound, "unknown component %q", inv.Component)
	}
	if err := types.ValidateAccount(string(inv.Caller)); err != nil {
		return nil, Newf(CodeInvalidInput, "invalid caller: %v", err)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	defer tx.Rollback()

	seq, err := tx.NextSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	// Attached value enters the component's custody up front; a failed
	// handler rolls the credit back with everything else.
	for _, c := range inv.Funds {
		if err := types.NonZero(c.Amount); err != nil {
			return nil, Newf(CodeInvalidInput, "attached funds: %v", err)
		}
		if err := tx.Credit(ctx, inv.Component, c); err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
	}

	ectx := Ctx{
		Context: ctx,
		KV:      tx.Keyspace(inv.Component),
		Env:     Env{BlockTime: inv.BlockTime, Seq: seq},
		Info:    Info{Caller: inv.Caller, Funds: inv.Funds},
	}

	var res *Result
	switch inv.Kind {
	case store.KindInstantiate:
		res, err = app.Instantiate(ectx, inv.Msg)
	case store.KindExecute:
		res, err = app.Execute(ectx, inv.Msg)
	default:
		return nil, Newf(CodeInvalidInput, "unknown invocation kind %q", inv.Kind)
	}
	if err != nil {
		e.logger.Debug("invocation rejected",
			"component", inv.Component, "caller", inv.Caller, "err", err)
		return nil, err
	}

	// Settle transfers after state mutation: debit the component's
	// custody, credit the recipient, same transaction.
	for _, tr := range res.Transfers {
		if err := types.ValidateAccount(string(tr.Recipient)); err != nil {
			return nil, Newf(CodeInvalidInput, "transfer recipient: %v", err)
		}
		if err := tx.Debit(ctx, inv.Component, tr.Amount); err != nil {
			return nil, Newf(CodeInsufficient, "settle transfer of %s: component custody cannot cover it", tr.Amount)
		}
		if err := tx.Credit(ctx, string(tr.Recipient), tr.Amount); err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
	}

	rec := &store.InvocationRecord{
		Seq:       seq,
		Token:     inv.Token,
		Kind:      inv.Kind,
		Component: inv.Component,
		Caller:    string(inv.Caller),
		Funds:     inv.Funds,
		Payload:   inv.Msg,
		Action:    res.Action,
		BlockTime: inv.BlockTime,
	}
	if err := tx.AppendInvocation(ctx, rec); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := tx.WriteEvents(ctx, seq, res.Events); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := tx.WriteTransfers(ctx, seq, inv.Component, res.Transfers); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	e.logger.Info("invocation committed",
		"seq", seq, "component", inv.Component, "action", res.Action)

	return &Receipt{
		Seq:       seq,
		Token:     inv.Token,
		Action:    res.Action,
		Events:    res.Events,
		Transfers: res.Transfers,
	}, nil
}

// Query answers a read-only query against committed state. Queries never
// open a write transaction and never mutate anything, so identical queries
// against identical state return identical pages.
func (e *Engine) Query(ctx context.Context, component string, msg json.RawMessage) ([]byte, error) {
	app, ok := e.apps[component]
	if !ok {
		return nil, Newf(CodeNotFound, "unknown component %q", component)
	}
	return app.Query(QueryCtx{Context: ctx, KV: e.store.View(component)}, msg)
}
