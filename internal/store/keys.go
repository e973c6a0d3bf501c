package store

import (
	"encoding/binary"
	"fmt"
)

// Key encoding helpers. Numeric ids are big-endian so byte order equals
// numeric order; composite (account, id) keys join with a 0x00 separator,
// which cannot occur inside a validated account identifier.

// U64Key encodes a numeric id as an 8-byte big-endian key.
func U64Key(id uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], id)
	return k[:]
}

// ParseU64Key decodes an 8-byte big-endian key.
func ParseU64Key(k []byte) (uint64, error) {
	if len(k) != 8 {
		return 0, fmt.Errorf("u64 key: expected 8 bytes, got %d", len(k))
	}
	return binary.BigEndian.Uint64(k), nil
}

// AccountU64Key encodes a composite (account, id) index key.
func AccountU64Key(account string, id uint64) []byte {
	k := make([]byte, 0, len(account)+9)
	k = append(k, account...)
	k = append(k, 0x00)
	return append(k, U64Key(id)...)
}

// AccountPrefix encodes the range prefix covering all ids for an account.
func AccountPrefix(account string) []byte {
	k := make([]byte, 0, len(account)+1)
	k = append(k, account...)
	return append(k, 0x00)
}

// ParseAccountU64Key decodes a composite (account, id) index key.
func ParseAccountU64Key(k []byte) (string, uint64, error) {
	if len(k) < 10 {
		return "", 0, fmt.Errorf("account-id key: too short (%d bytes)", len(k))
	}
	sep := len(k) - 9
	if k[sep] != 0x00 {
		return "", 0, fmt.Errorf("account-id key: missing separator")
	}
	id, err := ParseU64Key(k[sep+1:])
	if err != nil {
		return "", 0, err
	}
	return string(k[:sep]), id, nil
}
