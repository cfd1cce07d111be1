package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
	"github.com/corvidium/bft/ledger"
)

func newTestChain(t *testing.T) (*Chain, *block.Block) {
	t.Helper()
	ledg, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledg.Close() })

	genesis := block.New(&block.Header{Difficulty: big.NewInt(1), Height: 1, Time: 1}, nil)
	c, err := Open(ledg, genesis)
	require.NoError(t, err)
	return c, genesis
}

func childBlock(parent *block.Header) *block.Block {
	return block.New(&block.Header{
		PrevHash:   parent.Hash(),
		Difficulty: big.NewInt(1),
		Height:     parent.Height + 1,
		Time:       parent.Time + 1,
	}, nil)
}

func TestChainOpenPersistsGenesis(t *testing.T) {
	c, genesis := newTestChain(t)
	require.Equal(t, genesis.Hash(), c.Head().Hash())
}

func TestChainOpenResumesExistingHead(t *testing.T) {
	ledg, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	defer ledg.Close()

	genesis := block.New(&block.Header{Difficulty: big.NewInt(1), Height: 1, Time: 1}, nil)
	c1, err := Open(ledg, genesis)
	require.NoError(t, err)
	child := childBlock(c1.Head())
	require.NoError(t, c1.Commit(child))

	c2, err := Open(ledg, genesis)
	require.NoError(t, err)
	require.Equal(t, child.Hash(), c2.Head().Hash())
}

func TestChainCommitAdvancesHead(t *testing.T) {
	c, _ := newTestChain(t)
	child := childBlock(c.Head())
	require.NoError(t, c.Commit(child))
	require.Equal(t, child.Hash(), c.Head().Hash())
}

func TestChainCommitRejectsWrongHeight(t *testing.T) {
	c, _ := newTestChain(t)
	bad := block.New(&block.Header{
		PrevHash:   c.Head().Hash(),
		Difficulty: big.NewInt(1),
		Height:     99,
		Time:       1,
	}, nil)
	require.Error(t, c.Commit(bad))
	require.Equal(t, uint64(1), c.Head().Height)
}

func TestChainCommitRejectsPrevHashMismatch(t *testing.T) {
	c, _ := newTestChain(t)
	bad := block.New(&block.Header{
		PrevHash:   crypto.Keccak256([]byte("not the head")),
		Difficulty: big.NewInt(1),
		Height:     2,
		Time:       1,
	}, nil)
	require.Error(t, c.Commit(bad))
}

func TestChainCommitIsIdempotent(t *testing.T) {
	c, _ := newTestChain(t)
	child := childBlock(c.Head())
	require.NoError(t, c.Commit(child))
	require.NoError(t, c.Commit(child))
	require.Equal(t, child.Hash(), c.Head().Hash())
	require.Equal(t, uint64(2), c.Head().Height)
}

func TestChainCommitRejectsConflictingBlockAtCommittedHeight(t *testing.T) {
	c, _ := newTestChain(t)
	child := childBlock(c.Head())
	require.NoError(t, c.Commit(child))

	conflicting := block.New(&block.Header{
		PrevHash:   c.Head().PrevHash,
		Difficulty: big.NewInt(1),
		Height:     child.Number(),
		Time:       child.Header.Time + 1,
	}, nil)
	require.Error(t, c.Commit(conflicting))
	require.Equal(t, child.Hash(), c.Head().Hash())
}

func TestChainEmitsChainEvent(t *testing.T) {
	c, _ := newTestChain(t)
	received := make(chan ChainEvent, 1)
	c.Subscribe(func(ev ChainEvent) { received <- ev })

	child := childBlock(c.Head())
	require.NoError(t, c.Commit(child))

	select {
	case ev := <-received:
		require.Equal(t, child.Hash(), ev.Header.Hash())
	default:
		t.Fatal("expected ChainEvent to be delivered synchronously")
	}
}

func TestChainEmitSurvivesPanickingHandler(t *testing.T) {
	c, _ := newTestChain(t)
	c.Subscribe(func(ChainEvent) { panic("boom") })

	called := false
	c.Subscribe(func(ChainEvent) { called = true })

	child := childBlock(c.Head())
	require.NoError(t, c.Commit(child))
	require.True(t, called, "later handlers must still run after an earlier one panics")
}

func TestChainHasHeader(t *testing.T) {
	c, genesis := newTestChain(t)
	require.True(t, c.HasHeader(1, genesis.Hash()))
	require.False(t, c.HasHeader(1, crypto.Keccak256([]byte("wrong"))))
}
