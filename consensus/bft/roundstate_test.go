package bft

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidium/bft/crypto"
)

func TestRoundStateLockAndSubject(t *testing.T) {
	addrs, _ := fourValidators(t)
	vs := NewValidatorSet(addrs)
	rs := NewRoundState(View{Height: 1, Round: 0}, vs)

	_, ok := rs.Subject()
	require.False(t, ok)
	require.False(t, rs.IsLocked())

	blk := sampleBlock(1, crypto.Hash{}, addrs[0])
	pp := &PrePrepare{View: rs.View(), Proposal: Proposal{View: rs.View(), Block: blk}}
	rs.SetPrePrepare(pp)

	subject, ok := rs.Subject()
	require.True(t, ok)
	require.Equal(t, blk.Hash(), subject.Digest)

	rs.LockHash()
	require.True(t, rs.IsLocked())
	hash, ok := rs.GetLockedHash()
	require.True(t, ok)
	require.Equal(t, blk.Hash(), hash)
}

func TestRoundStateDerivePreservesLock(t *testing.T) {
	addrs, _ := fourValidators(t)
	vs := NewValidatorSet(addrs)
	rs := NewRoundState(View{Height: 5, Round: 0}, vs)

	blk := sampleBlock(5, crypto.Hash{}, addrs[0])
	rs.SetPrePrepare(&PrePrepare{View: rs.View(), Proposal: Proposal{View: rs.View(), Block: blk}})
	rs.LockHash()

	next := rs.Derive(1, vs)
	require.Equal(t, View{Height: 5, Round: 1}, next.View())
	require.True(t, next.IsLocked())
	hash, ok := next.GetLockedHash()
	require.True(t, ok)
	require.Equal(t, blk.Hash(), hash)
	require.Nil(t, next.PrePrepare())

	pending := next.PendingRequest()
	require.NotNil(t, pending)
	require.Equal(t, blk.Hash(), pending.Block.Hash())
}

func TestRoundStatePrepareOrCommitSizeDeduplicatesSenders(t *testing.T) {
	addrs, keys := fourValidators(t)
	vs := NewValidatorSet(addrs)
	rs := NewRoundState(View{Height: 1, Round: 0}, vs)

	subject := Subject{View: rs.View(), Digest: crypto.Keccak256([]byte("x"))}
	prepare := &GossipMessage{Code: MsgPrepare, Msg: subject.encode()}
	require.NoError(t, prepare.Sign(keys[0]))
	rs.Prepares().Add(prepare)

	commit := &GossipMessage{Code: MsgCommit, Msg: subject.encode()}
	require.NoError(t, commit.Sign(keys[0]))
	rs.Commits().Add(commit)

	require.Equal(t, 1, rs.PrepareOrCommitSize())

	commit2 := &GossipMessage{Code: MsgCommit, Msg: subject.encode()}
	require.NoError(t, commit2.Sign(keys[1]))
	rs.Commits().Add(commit2)
	require.Equal(t, 2, rs.PrepareOrCommitSize())
}
