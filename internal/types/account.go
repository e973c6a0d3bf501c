package types

import "fmt"

// AccountID is an opaque, validated account identifier.
//
// The engine never interprets the identifier beyond equality and ordering;
// validation happens once at the boundary so malformed identifiers never
// enter persisted state.
type AccountID string

const (
	minAccountLen = 3
	maxAccountLen = 90
)

// NewAccountID validates s and returns it as an AccountID.
//
// Valid identifiers are 3-90 characters of lowercase letters, digits, or
// '-' / '_', starting with a letter.
func NewAccountID(s string) (AccountID, error) {
	if err := ValidateAccount(s); err != nil {
		return "", err
	}
	return AccountID(s), nil
}

// ValidateAccount checks the account identifier format.
func ValidateAccount(s string) error {
	if len(s) < minAccountLen || len(s) > maxAccountLen {
		return fmt.Errorf("account %q: length must be %d-%d", s, minAccountLen, maxAccountLen)
	}
	if s[0] < 'a' || s[0] > 'z' {
		return fmt.Errorf("account %q: must start with a lowercase letter", s)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return fmt.Errorf("account %q: invalid character %q", s, c)
		}
	}
	return nil
}

// ValidateAccounts validates every identifier in the slice and returns the
// typed form. Order is preserved.
func ValidateAccounts(raw []string) ([]AccountID, error) {
	out := make([]AccountID, 0, len(raw))
	for _, r := range raw {
		a, err := NewAccountID(r)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// String returns the raw identifier.
func (a AccountID) String() string {
	return string(a)
}
