package types

import (
	"fmt"
	"math/big"
)

// Uint is an unsigned arbitrary-precision integer magnitude.
//
// All ledger arithmetic goes through Uint so that intermediate products can
// never wrap: multiplication widens, and any operation that would produce a
// negative result returns an error instead of underflowing.
//
// The zero value is usable and equal to ZeroUint().
type Uint struct {
	i big.Int
}

// ZeroUint returns a Uint with value 0.
func ZeroUint() Uint {
	return Uint{}
}

// NewUint returns a Uint holding v.
func NewUint(v uint64) Uint {
	var u Uint
	u.i.SetUint64(v)
	return u
}

// ParseUint parses a base-10 unsigned magnitude.
//
// Only plain decimal digits are accepted: no sign, no exponent, no
// whitespace. The empty string is rejected.
func ParseUint(s string) (Uint, error) {
	if s == "" {
		return Uint{}, fmt.Errorf("parse uint: empty string")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return Uint{}, fmt.Errorf("parse uint: invalid magnitude %q", s)
		}
	}
	var u Uint
	if _, ok := u.i.SetString(s, 10); !ok {
		return Uint{}, fmt.Errorf("parse uint: invalid magnitude %q", s)
	}
	return u, nil
}

// MustUint parses s and panics on failure. For tests and constants only.
func MustUint(s string) Uint {
	u, err := ParseUint(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Add returns u + v.
func (u Uint) Add(v Uint) Uint {
	var r Uint
	r.i.Add(&u.i, &v.i)
	return r
}

// Sub returns u - v, or an error if the result would be negative.
func (u Uint) Sub(v Uint) (Uint, error) {
	if u.i.Cmp(&v.i) < 0 {
		return Uint{}, fmt.Errorf("subtract %s from %s: negative result", v.String(), u.String())
	}
	var r Uint
	r.i.Sub(&u.i, &v.i)
	return r, nil
}

// MulDiv returns floor(u * m / d). Multiplication happens before division so
// no precision is lost to intermediate rounding. Returns an error when d is
// zero.
func (u Uint) MulDiv(m, d Uint) (Uint, error) {
	if d.IsZero() {
		return Uint{}, fmt.Errorf("multiply-divide: division by zero")
	}
	var r Uint
	r.i.Mul(&u.i, &m.i)
	r.i.Quo(&r.i, &d.i)
	return r, nil
}

// Cmp compares u and v: -1 if u < v, 0 if equal, +1 if u > v.
func (u Uint) Cmp(v Uint) int {
	return u.i.Cmp(&v.i)
}

// IsZero reports whether u is 0.
func (u Uint) IsZero() bool {
	return u.i.Sign() == 0
}

// Equal reports whether u == v.
func (u Uint) Equal(v Uint) bool {
	return u.i.Cmp(&v.i) == 0
}

// LT reports whether u < v.
func (u Uint) LT(v Uint) bool {
	return u.i.Cmp(&v.i) < 0
}

// GTE reports whether u >= v.
func (u Uint) GTE(v Uint) bool {
	return u.i.Cmp(&v.i) >= 0
}

// String renders the magnitude as a base-10 decimal string.
func (u Uint) String() string {
	return u.i.String()
}

// MarshalJSON encodes the magnitude as a quoted decimal string. String
// encoding keeps large magnitudes exact across any JSON consumer.
func (u Uint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.i.String() + `"`), nil
}

// UnmarshalJSON decodes a quoted decimal string.
func (u *Uint) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("uint must be a JSON string, got %s", string(data))
	}
	parsed, err := ParseUint(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
