package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HashLength is the size in bytes of a digest produced by Keccak256.
const HashLength = 32

// Hash is a 32-byte digest, used for block hashes, transaction hashes and
// the "digest" field of a consensus Subject (spec.md §3).
type Hash [HashLength]byte

// BytesToHash right-aligns b into a Hash, truncating from the left if b is
// longer than HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+HashLength*2)
	out[0], out[1] = '0', 'x'
	for i, b := range h {
		out[2+i*2] = hextable[b>>4]
		out[2+i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// MarshalJSON renders h as a "0x"-prefixed hex string, the format the
// read API (package rpc) exposes block and transaction hashes in.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON parses the "0x"-prefixed hex string produced by MarshalJSON.
func (h *Hash) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("crypto: invalid hash JSON %s", data)
	}
	s = s[1 : len(s)-1]
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("crypto: invalid hash hex %q: %w", s, err)
	}
	if len(b) != HashLength {
		return fmt.Errorf("crypto: hash must be %d bytes, got %d", HashLength, len(b))
	}
	*h = BytesToHash(b)
	return nil
}

// IsZero reports whether h is the zero hash, the empty-tree root that
// block.MerkleRoot returns (spec.md §8: "merkle_root([]) = zero-hash").
func (h Hash) IsZero() bool { return h == Hash{} }

// Keccak256 returns the Keccak-256 digest of the concatenation of data,
// the canonical hash primitive used across the block, transaction and
// gossip-envelope encodings (spec.md §3, §4.2).
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}
