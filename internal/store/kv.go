package store

import (
	"context"
	"database/sql"
	"fmt"
)

// KV is the ordered key-value surface handlers mutate state through.
// Implemented by Keyspace over both live reads and transactions.
type KV interface {
	// Get returns the value for key, and whether it exists.
	Get(ctx context.Context, ns string, key []byte) ([]byte, bool, error)

	// Set writes key to value, replacing any existing value.
	Set(ctx context.Context, ns string, key, value []byte) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, ns string, key []byte) error

	// Ascend returns up to limit entries with key > after, in ascending
	// byte order. A nil after starts from the beginning.
	Ascend(ctx context.Context, ns string, after []byte, limit int) ([]Entry, error)

	// AscendPrefix is Ascend restricted to keys beginning with prefix.
	AscendPrefix(ctx context.Context, ns string, prefix, after []byte, limit int) ([]Entry, error)
}

// Entry is one key-value pair from a range query.
type Entry struct {
	Key   []byte
	Value []byte
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Keyspace is a component-scoped view of the state table. Each component
// owns its keyspace exclusively; cross-component reads do not exist.
type Keyspace struct {
	q         querier
	component string
}

var _ KV = (*Keyspace)(nil)

func (k *Keyspace) Get(ctx context.Context, ns string, key []byte) ([]byte, bool, error) {
	var v []byte
	err := k.q.QueryRowContext(ctx,
		`SELECT v FROM state WHERE component = ? AND ns = ? AND k = ?`,
		k.component, ns, key,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s/%s: %w", k.component, ns, err)
	}
	return v, true, nil
}

func (k *Keyspace) Set(ctx context.Context, ns string, key, value []byte) error {
	_, err := k.q.ExecContext(ctx,
		`INSERT INTO state (component, ns, k, v) VALUES (?, ?, ?, ?)
		 ON CONFLICT (component, ns, k) DO UPDATE SET v = excluded.v`,
		k.component, ns, key, value,
	)
	if err != nil {
		return fmt.Errorf("kv set %s/%s: %w", k.component, ns, err)
	}
	return nil
}

func (k *Keyspace) Delete(ctx context.Context, ns string, key []byte) error {
	_, err := k.q.ExecContext(ctx,
		`DELETE FROM state WHERE component = ? AND ns = ? AND k = ?`,
		k.component, ns, key,
	)
	if err != nil {
		return fmt.Errorf("kv delete %s/%s: %w", k.component, ns, err)
	}
	return nil
}

func (k *Keyspace) Ascend(ctx context.Context, ns string, after []byte, limit int) ([]Entry, error) {
	// Deterministic ordering: byte-ascending keys, always.
	rows, err := k.q.QueryContext(ctx,
		`SELECT k, v FROM state
		 WHERE component = ? AND ns = ? AND (? IS NULL OR k > ?)
		 ORDER BY k ASC
		 LIMIT ?`,
		k.component, ns, after, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("kv ascend %s/%s: %w", k.component, ns, err)
	}
	return scanEntries(rows)
}

func (k *Keyspace) AscendPrefix(ctx context.Context, ns string, prefix, after []byte, limit int) ([]Entry, error) {
	upper := prefixUpperBound(prefix)
	rows, err := k.q.QueryContext(ctx,
		`SELECT k, v FROM state
		 WHERE component = ? AND ns = ? AND k >= ? AND (? IS NULL OR k < ?) AND (? IS NULL OR k > ?)
		 ORDER BY k ASC
		 LIMIT ?`,
		k.component, ns, prefix, upper, upper, after, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("kv ascend prefix %s/%s: %w", k.component, ns, err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such bound exists (all-0xff prefix).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
