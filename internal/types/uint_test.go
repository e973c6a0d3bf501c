package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUint(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "zero", in: "0", want: "0"},
		{name: "plain", in: "1000", want: "1000"},
		{name: "huge", in: "340282366920938463463374607431768211456", want: "340282366920938463463374607431768211456"},
		{name: "empty", in: "", wantErr: true},
		{name: "negative", in: "-1", wantErr: true},
		{name: "plus sign", in: "+1", wantErr: true},
		{name: "hex", in: "0x10", wantErr: true},
		{name: "spaces", in: " 10", wantErr: true},
		{name: "float", in: "1.5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseUint(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestUint_SubUnderflow(t *testing.T) {
	_, err := NewUint(5).Sub(NewUint(6))
	require.Error(t, err)

	r, err := NewUint(6).Sub(NewUint(6))
	require.NoError(t, err)
	assert.True(t, r.IsZero())
}

func TestUint_MulDiv(t *testing.T) {
	// 1000 * 500 / 1000 = 500, multiply-before-divide
	r, err := NewUint(1000).MulDiv(NewUint(500), NewUint(1000))
	require.NoError(t, err)
	assert.Equal(t, "500", r.String())

	// truncation: 7 * 3 / 2 = 10 (floor of 10.5)
	r, err = NewUint(7).MulDiv(NewUint(3), NewUint(2))
	require.NoError(t, err)
	assert.Equal(t, "10", r.String())

	// widening: no intermediate overflow at any operand size
	big := MustUint("18446744073709551615") // max uint64
	r, err = big.MulDiv(big, NewUint(1))
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463426481119284349108225", r.String())

	_, err = NewUint(1).MulDiv(NewUint(1), ZeroUint())
	require.Error(t, err)
}

func TestUint_JSONRoundTrip(t *testing.T) {
	u := MustUint("123456789012345678901234567890")
	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Equal(t, `"123456789012345678901234567890"`, string(data))

	var back Uint
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, u.Equal(back))

	// bare numbers are rejected; magnitudes are always strings on the wire
	require.Error(t, json.Unmarshal([]byte(`123`), &back))
}
