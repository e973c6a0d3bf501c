package engine

import (
	"context"

	"github.com/keelhq/keel/internal/store"
	"github.com/keelhq/keel/internal/types"
)

// App is a ledger component hosted by the engine. Each app owns one
// keyspace and handles one tagged-union command vocabulary.
//
// Handlers must be deterministic: identical inputs against identical state
// must produce identical mutations, events, and transfers. Everything a
// handler may consult arrives through Ctx - there is no ambient state.
type App interface {
	// Name is the component identifier: keyspace name, event namespace,
	// and custody account all in one.
	Name() string

	// Instantiate initializes the component's configuration record.
	Instantiate(ctx Ctx, msg []byte) (*Result, error)

	// Execute applies one state-mutating command.
	Execute(ctx Ctx, msg []byte) (*Result, error)

	// Query answers one read-only query against committed state.
	Query(ctx QueryCtx, msg []byte) ([]byte, error)
}

// Env carries the host-supplied invocation environment.
type Env struct {
	// BlockTime is the invocation's timestamp in unix seconds. Recorded in
	// the log so replay sees the identical value.
	BlockTime int64

	// Seq is the invocation's position in the log.
	Seq int64
}

// Info identifies the caller and the value attached to the call. Attached
// funds are already credited to the component's custody account when the
// handler runs; if the handler fails, the credit rolls back with the rest.
type Info struct {
	Caller types.AccountID
	Funds  []types.Coin
}

// Ctx is the execution context handed to mutating handlers.
type Ctx struct {
	Context context.Context
	KV      store.KV
	Env     Env
	Info    Info
}

// QueryCtx is the read-only context handed to query handlers.
type QueryCtx struct {
	Context context.Context
	KV      store.KV
}

// Result is what a successful command hands back to the runtime: events to
// log, transfer instructions to settle, and an action tag for
// observability.
type Result struct {
	Action    string
	Events    []types.Event
	Transfers []types.Transfer
}
