package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keelhq/keel/internal/types"
)

// ErrInsufficientFunds reports a debit against a balance that cannot cover
// it. The engine converts this into a failed invocation.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Credit adds amount to the account's balance for the coin's denom.
func (t *Tx) Credit(ctx context.Context, account string, c types.Coin) error {
	if c.IsZero() {
		return nil
	}
	current, err := balance(ctx, t.tx, account, c.Denom)
	if err != nil {
		return err
	}
	next := current.Add(c.Amount)
	return setBalance(ctx, t.tx, account, c.Denom, next)
}

// Debit removes amount from the account's balance, failing with
// ErrInsufficientFunds when the balance cannot cover it.
func (t *Tx) Debit(ctx context.Context, account string, c types.Coin) error {
	if c.IsZero() {
		return nil
	}
	current, err := balance(ctx, t.tx, account, c.Denom)
	if err != nil {
		return err
	}
	next, err := current.Sub(c.Amount)
	if err != nil {
		return fmt.Errorf("debit %s from %s (%s): %w", c, account, current, ErrInsufficientFunds)
	}
	return setBalance(ctx, t.tx, account, c.Denom, next)
}

// Balance reads the committed balance for (account, denom). Missing rows
// read as zero.
func (s *Store) Balance(ctx context.Context, account, denom string) (types.Uint, error) {
	return balance(ctx, s.db, account, denom)
}

func balance(ctx context.Context, q querier, account, denom string) (types.Uint, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account = ? AND denom = ?`,
		account, denom,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return types.ZeroUint(), nil
	}
	if err != nil {
		return types.Uint{}, fmt.Errorf("read balance %s/%s: %w", account, denom, err)
	}
	u, err := types.ParseUint(raw)
	if err != nil {
		return types.Uint{}, fmt.Errorf("corrupt balance %s/%s: %w", account, denom, err)
	}
	return u, nil
}

func setBalance(ctx context.Context, q querier, account, denom string, amount types.Uint) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO balances (account, denom, amount) VALUES (?, ?, ?)
		 ON CONFLICT (account, denom) DO UPDATE SET amount = excluded.amount`,
		account, denom, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("write balance %s/%s: %w", account, denom, err)
	}
	return nil
}
