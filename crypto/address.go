// Package crypto provides the address, hashing and recoverable-signature
// primitives the consensus engine authenticates validators with.
package crypto

import (
	"encoding/hex"
	"fmt"
)

// AddressLength is the size in bytes of a validator address: the last 20
// bytes of the Keccak-256 hash of the uncompressed public key, matching the
// derivation used throughout the go-ethereum-derived examples this engine's
// wire format is modeled on.
const AddressLength = 20

// Address identifies a validator.
type Address [AddressLength]byte

// BytesToAddress right-aligns b into an Address, truncating from the left
// if b is longer than AddressLength.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Hex is an alias of String kept for call sites that prefer the explicit name.
func (a Address) Hex() string { return a.String() }

// MarshalJSON renders a as a "0x"-prefixed hex string, the format the
// read API (package rpc) exposes proposer/recipient addresses in.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses the "0x"-prefixed hex string produced by MarshalJSON.
func (a *Address) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("crypto: invalid address JSON %s", data)
	}
	parsed, err := ParseAddress(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Cmp gives a total, deterministic order over addresses, used to sort the
// validator set (spec.md §4.1: "validator ordering is stable").
func (a Address) Cmp(b Address) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ParseAddress decodes a "0x"-prefixed or bare hex string into an Address.
func ParseAddress(s string) (Address, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid address hex %q: %w", s, err)
	}
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLength, len(b))
	}
	return BytesToAddress(b), nil
}
