package bft

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidium/bft/crypto"
)

func roundChangeMsg(t *testing.T, priv crypto.PrivateKey, view View) *GossipMessage {
	t.Helper()
	s := Subject{View: view}
	msg := &GossipMessage{Code: MsgRoundChange, CreateTime: 1, Msg: s.encode()}
	require.NoError(t, msg.Sign(priv))
	return msg
}

func TestRoundChangeSetMaxRound(t *testing.T) {
	addrs, keys := fourValidators(t)
	vs := NewValidatorSet(addrs)
	rcs := NewRoundChangeSet(vs)

	for i := 0; i < 3; i++ {
		require.True(t, rcs.Add(2, roundChangeMsg(t, keys[i], View{Height: 5, Round: 2})))
	}
	require.True(t, rcs.Add(1, roundChangeMsg(t, keys[3], View{Height: 5, Round: 1})))

	round, ok := rcs.MaxRound(3)
	require.True(t, ok)
	require.Equal(t, uint64(2), round)

	_, ok = rcs.MaxRound(4)
	require.False(t, ok)
}

func TestRoundChangeSetClearDropsStaleRounds(t *testing.T) {
	addrs, keys := fourValidators(t)
	vs := NewValidatorSet(addrs)
	rcs := NewRoundChangeSet(vs)

	rcs.Add(1, roundChangeMsg(t, keys[0], View{Height: 5, Round: 1}))
	rcs.Add(2, roundChangeMsg(t, keys[1], View{Height: 5, Round: 2}))
	rcs.Clear(2)

	require.Equal(t, 0, rcs.Size(1))
	require.Equal(t, 1, rcs.Size(2))
}

func TestRoundChangeSetOverwritesSameSender(t *testing.T) {
	addrs, keys := fourValidators(t)
	vs := NewValidatorSet(addrs)
	rcs := NewRoundChangeSet(vs)

	require.True(t, rcs.Add(1, roundChangeMsg(t, keys[0], View{Height: 5, Round: 1})))
	require.True(t, rcs.Add(1, roundChangeMsg(t, keys[0], View{Height: 5, Round: 1})))
	require.Equal(t, 1, rcs.Size(1))
}
