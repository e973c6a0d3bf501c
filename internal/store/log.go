package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/keelhq/keel/internal/codec"
	"github.com/keelhq/keel/internal/types"
)

// Invocation kinds recorded in the log.
const (
	KindInstantiate = "instantiate"
	KindExecute     = "execute"
)

// InvocationRecord is one accepted command in the append-only log.
// Payload is the raw command document; Funds is the value attached to the
// call. Records are the replay source of truth: re-executing them in seq
// order against a fresh substrate must reproduce the same state hash.
type InvocationRecord struct {
	Seq       int64
	Token     string
	Kind      string
	Component string
	Caller    string
	Funds     []types.Coin
	Payload   json.RawMessage
	Action    string
	BlockTime int64
}

// NextSeq returns the seq the next appended invocation will receive.
func (t *Tx) NextSeq(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := t.tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM invocations`).Scan(&max); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return max.Int64 + 1, nil
}

// AppendInvocation writes an invocation record at the given seq.
// Funds serialize canonically so the log itself round-trips byte-stable.
func (t *Tx) AppendInvocation(ctx context.Context, rec *InvocationRecord) error {
	funds := []byte("[]")
	if len(rec.Funds) > 0 {
		var err error
		funds, err = codec.Marshal(rec.Funds)
		if err != nil {
			return fmt.Errorf("append invocation: %w", err)
		}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO invocations (seq, token, kind, component, caller, funds, payload, action, block_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Seq, rec.Token, rec.Kind, rec.Component, rec.Caller,
		string(funds), string(rec.Payload), rec.Action, rec.BlockTime,
	)
	if err != nil {
		return fmt.Errorf("append invocation: %w", err)
	}
	return nil
}

// WriteEvents persists the events produced by invocation seq, in emission
// order.
func (t *Tx) WriteEvents(ctx context.Context, seq int64, events []types.Event) error {
	for i, ev := range events {
		attrs, err := codec.Marshal(ev.Attributes)
		if err != nil {
			return fmt.Errorf("write event %d: %w", i, err)
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO events (seq, idx, type, attributes) VALUES (?, ?, ?, ?)
		`, seq, i, ev.Type, string(attrs)); err != nil {
			return fmt.Errorf("write event %d: %w", i, err)
		}
	}
	return nil
}

// WriteTransfers persists the settled transfer instructions for invocation
// seq, in instruction order.
func (t *Tx) WriteTransfers(ctx context.Context, seq int64, sender string, transfers []types.Transfer) error {
	for i, tr := range transfers {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO transfers (seq, idx, sender, recipient, amount, denom) VALUES (?, ?, ?, ?, ?, ?)
		`, seq, i, sender, string(tr.Recipient), tr.Amount.Amount.String(), tr.Amount.Denom); err != nil {
			return fmt.Errorf("write transfer %d: %w", i, err)
		}
	}
	return nil
}

// ReadInvocations returns log records with seq > after, ascending, up to
// limit. limit <= 0 means no limit.
func (s *Store) ReadInvocations(ctx context.Context, after int64, limit int) ([]InvocationRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means unlimited
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, token, kind, component, caller, funds, payload, action, block_time
		FROM invocations
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("read invocations: %w", err)
	}
	defer rows.Close()

	var records []InvocationRecord
	for rows.Next() {
		var rec InvocationRecord
		var funds, payload string
		if err := rows.Scan(&rec.Seq, &rec.Token, &rec.Kind, &rec.Component, &rec.Caller, &funds, &payload, &rec.Action, &rec.BlockTime); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if err := json.Unmarshal([]byte(funds), &rec.Funds); err != nil {
			return nil, fmt.Errorf("unmarshal funds for seq %d: %w", rec.Seq, err)
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return records, nil
}

// LoggedEvent is an event joined with the seq that produced it.
type LoggedEvent struct {
	Seq   int64
	Event types.Event
}

// ReadEvents returns all logged events with seq > after, ordered by
// (seq, idx) ascending, up to limit. limit <= 0 means no limit.
func (s *Store) ReadEvents(ctx context.Context, after int64, limit int) ([]LoggedEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, type, attributes
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC, idx ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []LoggedEvent
	for rows.Next() {
		var le LoggedEvent
		var attrs string
		if err := rows.Scan(&le.Seq, &le.Event.Type, &attrs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &le.Event.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal event attributes for seq %d: %w", le.Seq, err)
		}
		events = append(events, le)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
