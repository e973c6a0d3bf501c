package types

import "fmt"

// BasisPoints is the denominator for all bps arithmetic: 10000 = 100%.
const BasisPoints uint32 = 10_000

// Pagination bounds for list queries. The cursor is always an exclusive
// start-after value.
const (
	DefaultPageLimit = 30
	MaxPageLimit     = 100
)

// ClampLimit normalizes a requested page limit: 0 means the default, and
// anything above the maximum is capped.
func ClampLimit(limit uint32) int {
	if limit == 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return int(limit)
}

// MatchDenom checks that a coin carries the expected denom.
func MatchDenom(c Coin, expected string) error {
	if c.Denom != expected {
		return fmt.Errorf("denom mismatch: expected %s, got %s", expected, c.Denom)
	}
	return nil
}

// NonZero checks that a magnitude is strictly positive.
func NonZero(u Uint) error {
	if u.IsZero() {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}

// ValidateBps checks a basis-points value against an inclusive cap.
func ValidateBps(bps, cap uint32) error {
	if bps > cap {
		return fmt.Errorf("basis points %d exceed maximum %d", bps, cap)
	}
	return nil
}

// Distinct checks that no account identifier appears twice.
func Distinct(accounts []AccountID) error {
	seen := make(map[AccountID]struct{}, len(accounts))
	for _, a := range accounts {
		if _, dup := seen[a]; dup {
			return fmt.Errorf("duplicate account %s", a)
		}
		seen[a] = struct{}{}
	}
	return nil
}

// AttachedEquals checks that exactly one coin is attached and that it equals
// the required amount. The host guarantees attached value is already in the
// component's custody when the handler runs; this check makes the recorded
// entity amount and the custodied value agree.
func AttachedEquals(attached []Coin, required Coin) error {
	if len(attached) != 1 {
		return fmt.Errorf("expected exactly one attached coin, got %d", len(attached))
	}
	if attached[0].Denom != required.Denom || !attached[0].Amount.Equal(required.Amount) {
		return fmt.Errorf("attached %s does not match required %s", attached[0], required)
	}
	return nil
}
