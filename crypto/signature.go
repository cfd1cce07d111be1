package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// SignatureLength is the size in bytes of a recoverable signature produced
// by Sign: a compact-format [R || S || recovery-id] triple.
const SignatureLength = 65

// ErrInvalidSignature is returned when a signature cannot be parsed or does
// not recover to a valid public key.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Sign produces a recoverable signature over digest. The signer's address
// can later be recovered from the signature alone via Recover: this is
// the mechanism spec.md §4.2 calls "derived address = public key recovered
// from signature".
func Sign(priv PrivateKey, digest Hash) ([]byte, error) {
	sig := ecdsa.SignCompact(priv.key, digest.Bytes(), false)
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("crypto: unexpected signature length %d", len(sig))
	}
	// ecdsa.SignCompact puts the recovery byte first; move it last so the
	// wire format is the conventional [R || S || V] layout.
	out := make([]byte, SignatureLength)
	copy(out, sig[1:])
	out[SignatureLength-1] = sig[0]
	return out, nil
}

// Recover recovers the address that produced sig over digest.
func Recover(digest Hash, sig []byte) (Address, error) {
	if len(sig) != SignatureLength {
		return Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	compact := make([]byte, SignatureLength)
	compact[0] = sig[SignatureLength-1]
	copy(compact[1:], sig[:SignatureLength-1])

	pub, _, err := ecdsa.RecoverCompact(compact, digest.Bytes())
	if err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	return PublicKey{key: pub}.Address(), nil
}

// Verify checks that sig recovers to the expected address over digest.
func Verify(expected Address, digest Hash, sig []byte) error {
	addr, err := Recover(digest, sig)
	if err != nil {
		return err
	}
	if addr != expected {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrInvalidSignature, addr, expected)
	}
	return nil
}
