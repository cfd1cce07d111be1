package miner

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/chain"
	bft "github.com/corvidium/bft/consensus/bft"
	"github.com/corvidium/bft/crypto"
	"github.com/corvidium/bft/ledger"
)

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	ledg, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledg.Close() })

	genesis := block.New(&block.Header{Difficulty: big.NewInt(1), Height: 1, Time: 1}, nil)
	c, err := chain.Open(ledg, genesis)
	require.NoError(t, err)
	return c
}

func fixedClock(t uint64) Clock { return func() uint64 { return t } }

func TestMinerCreateProposalUsesChainHead(t *testing.T) {
	c := newTestChain(t)
	addr := crypto.RandomAddress()
	m := New(addr, c, NewMempool(), 5, 1_000_000, fixedClock(c.Head().Time+100))

	proposal, err := m.CreateProposal(bft.View{Height: 2, Round: 0})
	require.NoError(t, err)
	require.Equal(t, uint64(2), proposal.Block.Number())
	require.Equal(t, c.Head().Hash(), proposal.Block.Header.PrevHash)
	require.Equal(t, addr, proposal.Block.Header.ProposerAddr)
}

func TestMinerCreateProposalRejectsWrongHeight(t *testing.T) {
	c := newTestChain(t)
	m := New(crypto.RandomAddress(), c, NewMempool(), 5, 1_000_000, fixedClock(1))
	_, err := m.CreateProposal(bft.View{Height: 50, Round: 0})
	require.Error(t, err)
}

func TestMinerTimestampRespectsBlockPeriod(t *testing.T) {
	c := newTestChain(t)
	pool := NewMempool()

	// now is before parent.Time + blockPeriod: must use the period floor.
	m := New(crypto.RandomAddress(), c, pool, 10, 1_000_000, fixedClock(c.Head().Time+1))
	proposal, err := m.CreateProposal(bft.View{Height: 2, Round: 0})
	require.NoError(t, err)
	require.Equal(t, c.Head().Time+10, proposal.Block.Header.Time)
}

func TestMinerTimestampUsesWallClockWhenLate(t *testing.T) {
	c := newTestChain(t)
	late := c.Head().Time + 1000
	m := New(crypto.RandomAddress(), c, NewMempool(), 10, 1_000_000, fixedClock(late))
	proposal, err := m.CreateProposal(bft.View{Height: 2, Round: 0})
	require.NoError(t, err)
	require.Equal(t, late, proposal.Block.Header.Time)
}

func TestMinerCreateProposalIncludesPendingTxs(t *testing.T) {
	c := newTestChain(t)
	pool := NewMempool()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signedTx(t, priv, 1)
	require.NoError(t, pool.Add(tx))

	m := New(crypto.RandomAddress(), c, pool, 1, 1_000_000, fixedClock(c.Head().Time+1))
	proposal, err := m.CreateProposal(bft.View{Height: 2, Round: 0})
	require.NoError(t, err)
	require.Len(t, proposal.Block.Transactions, 1)
	require.Equal(t, tx.Hash(), proposal.Block.Transactions[0].Hash())
}

func TestMinerPrune(t *testing.T) {
	c := newTestChain(t)
	pool := NewMempool()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signedTx(t, priv, 1)
	require.NoError(t, pool.Add(tx))

	m := New(crypto.RandomAddress(), c, pool, 1, 1_000_000, fixedClock(1))
	m.Prune([]*block.Transaction{tx})
	require.Equal(t, 0, pool.Size())
}

func TestMinerSubmitAddsToPool(t *testing.T) {
	c := newTestChain(t)
	pool := NewMempool()
	m := New(crypto.RandomAddress(), c, pool, 1, 1_000_000, fixedClock(1))

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := signedTx(t, priv, 1)
	require.NoError(t, m.Submit(tx))
	require.Equal(t, 1, pool.Size())
}

func TestEngineSealReturnsImmediatelyIfAlreadyCommitted(t *testing.T) {
	c := newTestChain(t)
	e := NewEngine(c)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Seal(ctx, 1))
}

func TestEngineSealWakesOnCommit(t *testing.T) {
	c := newTestChain(t)
	e := NewEngine(c)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- e.Seal(ctx, 2)
	}()

	time.Sleep(20 * time.Millisecond)
	child := block.New(&block.Header{
		PrevHash:   c.Head().Hash(),
		Difficulty: big.NewInt(1),
		Height:     2,
		Time:       c.Head().Time + 1,
	}, nil)
	require.NoError(t, c.Commit(child))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Seal did not wake up after commit")
	}
}

func TestEngineSealRespectsCancellation(t *testing.T) {
	c := newTestChain(t)
	e := NewEngine(c)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Seal(ctx, 99)
	require.Error(t, err)
}
