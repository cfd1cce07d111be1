package bft

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidium/bft/crypto"
)

func fourValidators(t *testing.T) ([]crypto.Address, []crypto.PrivateKey) {
	t.Helper()
	addrs := make([]crypto.Address, 4)
	keys := make([]crypto.PrivateKey, 4)
	for i := range addrs {
		priv, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = priv
		addrs[i] = priv.Public().Address()
	}
	return addrs, keys
}

func TestValidatorSetQuorumSizes(t *testing.T) {
	addrs, _ := fourValidators(t)
	vs := NewValidatorSet(addrs)
	require.Equal(t, 4, vs.Size())
	require.Equal(t, 2, vs.TwoThirdsMajority())
	require.Equal(t, 3, vs.QuorumSize())
	require.Equal(t, 1, vs.F())
}

func TestValidatorSetDedupesAndSorts(t *testing.T) {
	addrs, _ := fourValidators(t)
	dup := append(append([]crypto.Address{}, addrs...), addrs[0])
	vs := NewValidatorSet(dup)
	require.Equal(t, 4, vs.Size())
	list := vs.List()
	for i := 1; i < len(list); i++ {
		require.True(t, list[i-1].Address.Cmp(list[i].Address) < 0)
	}
}

func TestCalcProposerDeterministic(t *testing.T) {
	addrs, _ := fourValidators(t)
	vs := NewValidatorSet(addrs)
	parent := crypto.Keccak256([]byte("genesis"))

	p1, err := vs.CalcProposer(parent, 0)
	require.NoError(t, err)
	p2, err := vs.CalcProposer(parent, 0)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, p1.Address, vs.GetProposer())
}

func TestCalcProposerRotatesByRound(t *testing.T) {
	addrs, _ := fourValidators(t)
	vs := NewValidatorSet(addrs)
	parent := crypto.Keccak256([]byte("genesis"))

	seen := make(map[crypto.Address]bool)
	for round := uint64(0); round < uint64(vs.Size()); round++ {
		p, err := vs.CalcProposer(parent, round)
		require.NoError(t, err)
		seen[p.Address] = true
	}
	require.Len(t, seen, vs.Size())
}

func TestCalcProposerEmptySet(t *testing.T) {
	vs := NewValidatorSet(nil)
	_, err := vs.CalcProposer(crypto.Hash{}, 0)
	require.ErrorIs(t, err, ErrEmptyValidatorSet)
}

func TestValidatorSetAddRemove(t *testing.T) {
	addrs, _ := fourValidators(t)
	vs := NewValidatorSet(addrs[:3])
	require.True(t, vs.Add(addrs[3]))
	require.False(t, vs.Add(addrs[3]))
	require.Equal(t, 4, vs.Size())

	require.True(t, vs.Remove(addrs[3]))
	require.False(t, vs.Remove(addrs[3]))
	require.Equal(t, 3, vs.Size())
}
