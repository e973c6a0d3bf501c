package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/keelhq/keel/internal/codec"
)

// StateHash computes a deterministic digest over all persisted state and
// balances. Two substrates that executed the same invocation log must
// produce the same hash; replay verification compares exactly this value.
//
// Rows stream into the digest in their primary-key order with
// length-prefixed fields, so no field concatenation can collide.
func (s *Store) StateHash(ctx context.Context) (string, error) {
	var buf bytes.Buffer

	rows, err := s.db.QueryContext(ctx, `
		SELECT component, ns, k, v FROM state ORDER BY component ASC, ns ASC, k ASC
	`)
	if err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var component, ns string
		var k, v []byte
		if err := rows.Scan(&component, &ns, &k, &v); err != nil {
			return "", fmt.Errorf("state hash: %w", err)
		}
		writeField(&buf, []byte(component))
		writeField(&buf, []byte(ns))
		writeField(&buf, k)
		writeField(&buf, v)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}

	balRows, err := s.db.QueryContext(ctx, `
		SELECT account, denom, amount FROM balances ORDER BY account ASC, denom ASC
	`)
	if err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}
	defer balRows.Close()
	for balRows.Next() {
		var account, denom, amount string
		if err := balRows.Scan(&account, &denom, &amount); err != nil {
			return "", fmt.Errorf("state hash: %w", err)
		}
		writeField(&buf, []byte(account))
		writeField(&buf, []byte(denom))
		writeField(&buf, []byte(amount))
	}
	if err := balRows.Err(); err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}

	return codec.HashBytes(codec.DomainState, buf.Bytes()), nil
}

func writeField(buf *bytes.Buffer, field []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(field)))
	buf.Write(n[:])
	buf.Write(field)
}
