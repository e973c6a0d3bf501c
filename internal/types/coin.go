package types

import (
	"fmt"
	"strings"
)

// Coin is a denominated magnitude: an amount of one denom.
type Coin struct {
	Denom  string `json:"denom"`
	Amount Uint   `json:"amount"`
}

// NewCoin builds a Coin from a denom and magnitude.
func NewCoin(denom string, amount Uint) Coin {
	return Coin{Denom: denom, Amount: amount}
}

// ParseCoin parses the compact "<amount><denom>" form, e.g. "1000usei".
// The amount is the leading run of digits; the denom is everything after.
func ParseCoin(s string) (Coin, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return Coin{}, fmt.Errorf("parse coin: expected <amount><denom>, got %q", s)
	}
	amount, err := ParseUint(s[:i])
	if err != nil {
		return Coin{}, fmt.Errorf("parse coin: %w", err)
	}
	denom := s[i:]
	if err := ValidateDenom(denom); err != nil {
		return Coin{}, fmt.Errorf("parse coin: %w", err)
	}
	return Coin{Denom: denom, Amount: amount}, nil
}

// String renders the compact form, e.g. "1000usei".
func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

// IsZero reports whether the amount is zero.
func (c Coin) IsZero() bool {
	return c.Amount.IsZero()
}

// ValidateDenom checks a denom string: 3-16 lowercase letters.
func ValidateDenom(denom string) error {
	if len(denom) < 3 || len(denom) > 16 {
		return fmt.Errorf("denom %q: length must be 3-16", denom)
	}
	for _, c := range denom {
		if c < 'a' || c > 'z' {
			return fmt.Errorf("denom %q: must be lowercase letters", denom)
		}
	}
	return nil
}

// ParseCoins parses a comma-separated list of compact coins. Empty input
// yields an empty slice.
func ParseCoins(s string) ([]Coin, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	coins := make([]Coin, 0, len(parts))
	for _, p := range parts {
		c, err := ParseCoin(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		coins = append(coins, c)
	}
	return coins, nil
}
