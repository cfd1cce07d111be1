package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// PrivateKey is a validator's secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey is the corresponding verification key.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GenerateKey creates a new random signing key.
func GenerateKey() (PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("crypto: generate key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

// PrivateKeyFromHex parses a hex-encoded 32-byte secp256k1 scalar.
func PrivateKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(b) != 32 {
		return PrivateKey{}, fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(b))
	}
	return PrivateKey{key: secp256k1.PrivKeyFromBytes(b)}, nil
}

func (p PrivateKey) Hex() string {
	return hex.EncodeToString(p.key.Serialize())
}

// Public derives the signing key's public key.
func (p PrivateKey) Public() PublicKey {
	return PublicKey{key: p.key.PubKey()}
}

// Address derives the validator address (last 20 bytes of Keccak256 of the
// uncompressed public key, excluding the 0x04 prefix byte).
func (p PublicKey) Address() Address {
	raw := p.key.SerializeUncompressed()[1:]
	return BytesToAddress(Keccak256(raw).Bytes())
}

func (p PublicKey) Bytes() []byte {
	return p.key.SerializeCompressed()
}

// ParsePublicKey decodes a compressed secp256k1 public key.
func ParsePublicKey(b []byte) (PublicKey, error) {
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("crypto: invalid public key: %w", err)
	}
	return PublicKey{key: key}, nil
}

// RandomAddress is a test helper building an address from the system CSPRNG;
// it never collides in practice and needs no key material.
func RandomAddress() Address {
	var b [AddressLength]byte
	_, _ = rand.Read(b[:])
	return Address(b)
}
