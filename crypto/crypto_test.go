package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignRecoverRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	digest := Keccak256([]byte("hello world"))
	sig, err := Sign(priv, digest)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)

	addr, err := Recover(digest, sig)
	require.NoError(t, err)
	require.Equal(t, priv.Public().Address(), addr)
	require.NoError(t, Verify(addr, digest, sig))
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	digest := Keccak256([]byte("data"))
	sig, err := Sign(priv, digest)
	require.NoError(t, err)

	require.Error(t, Verify(RandomAddress(), digest, sig))
}

func TestAddressParseRoundTrip(t *testing.T) {
	a := RandomAddress()
	parsed, err := ParseAddress(a.String())
	require.NoError(t, err)
	require.Equal(t, a, parsed)
}

func TestHashZero(t *testing.T) {
	require.True(t, Hash{}.IsZero())
	require.False(t, Keccak256([]byte("x")).IsZero())
}
