// Package testutil provides deterministic fixtures for engine-level tests:
// a stepping block clock and helpers for building funded invocations.
package testutil

import "github.com/keelhq/keel/internal/types"

// BaseBlockTime is the first block time a Clock returns.
const BaseBlockTime int64 = 1_700_000_000

// Clock is a deterministic block-time source. Each call to Now returns a
// time Step seconds after the previous one, starting at Base.
type Clock struct {
	Base int64
	Step int64
	n    int64
}

// NewClock returns a clock starting at BaseBlockTime advancing 10 seconds
// per invocation.
func NewClock() *Clock {
	return &Clock{Base: BaseBlockTime, Step: 10}
}

// Now returns the next block time.
func (c *Clock) Now() int64 {
	t := c.Base + c.n*c.Step
	c.n++
	return t
}

// Coins builds a single-coin funds slice from a parsed form like "1000usei".
// Panics on malformed input, for use in test literals only.
func Coins(s string) []types.Coin {
	c, err := types.ParseCoin(s)
	if err != nil {
		panic(err)
	}
	return []types.Coin{c}
}
