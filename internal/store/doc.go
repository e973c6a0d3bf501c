// Package store is the SQLite-backed ledger substrate.
//
// It provides the persistence the component engines run against:
//
//   - Keyspaces: an ordered key-value space per component, holding the five
//     logical key spaces each engine uses (config record, next-id counter,
//     primary entity map, secondary reverse-lookup indexes, position maps).
//     Keys are byte-ordered BLOBs; numeric ids encode big-endian so byte
//     order equals numeric order.
//   - Balances: custodied value per (account, denom), settled when an
//     invocation's transfer instructions commit.
//   - Invocation log: an append-only, seq-ordered record of every accepted
//     command together with the events and transfers it produced. Replaying
//     the log against a fresh substrate must reproduce the identical state
//     hash.
//
// # Critical patterns
//
// All mutation happens inside a single Tx per invocation: the whole
// read-validate-mutate-persist sequence commits, or none of it does.
//
// All ordering is logical: seq INTEGER and byte-ordered keys, never
// timestamps. Range queries always ORDER BY k ASC so list queries are
// deterministic across replays.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - single writer connection: SQLite supports one writer at a time
package store
