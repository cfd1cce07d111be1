// Package miner assembles candidate blocks for the core to propose,
// grounded on original_source/bft/src/minner/mod.rs's next_block timestamp
// rule and tolelom-tolchain/core/mempool.go's pool shape.
package miner

import (
	"fmt"
	"math/big"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/chain"
	bft "github.com/corvidium/bft/consensus/bft"
	"github.com/corvidium/bft/crypto"
)

const maxTxsPerBlock = 200

// Clock returns the current unix time in seconds. Tests substitute a fixed
// clock; production uses time.Now.
type Clock func() uint64

// Miner implements consensus/bft.Proposer on top of a Chain and a Mempool.
// CreateProposal runs synchronously on the core's own actor goroutine
// (consensus/bft/core.go's sendPrePrepare), so it never blocks: it reads
// the current chain tip, pulls already-validated pending transactions, and
// assembles a block without touching the network or disk beyond what the
// Chain/Mempool already cache in memory.
type Miner struct {
	address crypto.Address
	chain   *chain.Chain
	pool    *Mempool
	clock   Clock

	blockPeriod uint64 // seconds, spec.md §4's block-period liveness parameter
	gasLimit    uint64
}

// New builds a Miner that proposes blocks as address, drawing transactions
// from pool and timestamps from clock.
func New(address crypto.Address, c *chain.Chain, pool *Mempool, blockPeriod uint64, gasLimit uint64, clock Clock) *Miner {
	return &Miner{address: address, chain: c, pool: pool, clock: clock, blockPeriod: blockPeriod, gasLimit: gasLimit}
}

// CreateProposal implements consensus/bft.Proposer. The resulting block's
// PrevHash always points at whatever the chain's tip is at call time:
// Core re-derives the proposer for the view before calling this, so a
// stale tip here would only cost a wasted proposal, never a safety bug.
func (m *Miner) CreateProposal(view bft.View) (bft.Proposal, error) {
	parent := m.chain.Head()
	if parent == nil {
		return bft.Proposal{}, fmt.Errorf("miner: no chain head")
	}
	if parent.Height+1 != view.Height {
		return bft.Proposal{}, fmt.Errorf("miner: view height %d does not follow chain head %d", view.Height, parent.Height)
	}

	txs := m.pool.Pending(maxTxsPerBlock)

	header := &block.Header{
		PrevHash:     parent.Hash(),
		ProposerAddr: m.address,
		Difficulty:   big.NewInt(1),
		Height:       view.Height,
		GasLimit:     m.gasLimit,
		Time:         m.nextTimestamp(parent),
	}
	blk := block.New(header, txs)
	return bft.Proposal{View: view, Block: blk}, nil
}

// nextTimestamp applies next_block()'s rule from the original miner: the
// candidate's time is the later of now and parent.Time + blockPeriod, so
// block production never runs faster than the configured period but also
// never lags behind wall-clock time after a long round-change stall.
func (m *Miner) nextTimestamp(parent *block.Header) uint64 {
	now := m.clock()
	earliest := parent.Time + m.blockPeriod
	if now > earliest {
		return now
	}
	return earliest
}

// Prune removes txs from the pool once their block has committed. The
// node calls this from a chain.ChainEvent subscriber, re-reading the
// committed block by height because the event carries only the header.
// This adapts the original miner's "abort and re-mine on new header"
// reaction to this module's pull-based CreateProposal: there is nothing to
// abort, so only the pruning half of that reaction applies.
func (m *Miner) Prune(txs []*block.Transaction) {
	m.pool.Remove(txs)
}

// Submit validates and adds tx to the mempool, the entry point the node's
// p2p Transaction frame handler calls for a transaction received from a peer.
func (m *Miner) Submit(tx *block.Transaction) error {
	return m.pool.Add(tx)
}
