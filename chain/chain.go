// Package chain is the thread-safe façade consensus and RPC use to read
// and extend the canonical chain, publishing a ChainEvent on every commit
// (spec.md §2's data-flow diagram, §6).
package chain

import (
	"fmt"
	"log"
	"sync"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
	"github.com/corvidium/bft/ledger"
)

// ChainEvent is published after a block is durably committed.
type ChainEvent struct {
	Header *block.Header
}

// Handler is a callback invoked for each ChainEvent.
type Handler func(ChainEvent)

// Chain wraps a Ledger with height/prev-hash continuity checks and an
// event bus, generalizing the teacher's multi-event Emitter to this
// module's single event type (spec.md's data-flow diagram has exactly
// one fan-out point: a newly committed header).
type Chain struct {
	mu     sync.RWMutex
	ledger *ledger.Ledger
	head   *block.Header

	handlersMu sync.RWMutex
	handlers   []Handler
}

// Open builds a Chain over ledg, loading the current head if the ledger
// already holds committed blocks.
func Open(ledg *ledger.Ledger, genesis *block.Block) (*Chain, error) {
	c := &Chain{ledger: ledg}

	height := uint64(0)
	for {
		h, err := ledg.HeaderByHeight(height + 1)
		if err != nil {
			break
		}
		height++
		c.head = h
	}
	if c.head == nil {
		if err := ledg.PutBlock(genesis); err != nil {
			return nil, fmt.Errorf("chain: persist genesis: %w", err)
		}
		c.head = genesis.Header
	}
	return c, nil
}

// Subscribe registers h to be called after every future commit. Like the
// teacher's Emitter, subscribe before Commit: there is no replay of past
// events.
func (c *Chain) Subscribe(h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Head returns the current chain tip header.
func (c *Chain) Head() *block.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// HeadBlock returns the tip header wrapped as a Block, the shape
// Backend.LastProposal needs (spec.md §4.7). Consensus only ever reads
// the header (hash, height, proposer) off the previous tip, so the
// ledger's per-transaction records are not re-assembled here.
func (c *Chain) HeadBlock() *block.Block {
	return &block.Block{Header: c.Head()}
}

// Commit validates height continuity and PrevHash linkage against the
// current head, persists blk, advances the tip, and publishes a
// ChainEvent (spec.md §6). Re-committing a block already present in the
// ledger is idempotent: it is detected and reported as success rather
// than a height-continuity error (spec.md §8: "insert_block(b) twice
// yields the same state as once").
func (c *Chain) Commit(blk *block.Block) error {
	c.mu.Lock()
	if blk.Number() <= c.head.Height {
		already, err := c.alreadyCommitted(blk)
		c.mu.Unlock()
		if already {
			return nil
		}
		return err
	}
	if blk.Number() != c.head.Height+1 {
		c.mu.Unlock()
		return fmt.Errorf("chain: block height %d does not follow head %d", blk.Number(), c.head.Height)
	}
	if blk.Header.PrevHash != c.head.Hash() {
		return c.rejectPrevHashMismatch(blk)
	}
	if err := c.ledger.PutBlock(blk); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("chain: commit block %d: %w", blk.Number(), err)
	}
	c.head = blk.Header
	c.mu.Unlock()

	c.emit(ChainEvent{Header: blk.Header})
	return nil
}

// alreadyCommitted reports whether blk matches the block already stored
// at its height, exactly, by hash. Must be called with c.mu held; returns
// the error Commit should surface when blk is not a match (a genuine
// height conflict, e.g. a competing block at an already-finalized height).
func (c *Chain) alreadyCommitted(blk *block.Block) (bool, error) {
	existing, err := c.ledger.HeaderByHeight(blk.Number())
	if err != nil {
		return false, fmt.Errorf("chain: block height %d does not follow head %d", blk.Number(), c.head.Height)
	}
	if existing.Hash() != blk.Hash() {
		return false, fmt.Errorf("chain: height %d already committed with a different block", blk.Number())
	}
	return true, nil
}

func (c *Chain) rejectPrevHashMismatch(blk *block.Block) error {
	defer c.mu.Unlock()
	return fmt.Errorf("chain: prev hash mismatch at height %d: got %s want %s",
		blk.Number(), blk.Header.PrevHash, c.head.Hash())
}

// emit delivers ev to every subscriber, guarding each with panic recovery
// so a misbehaving handler cannot halt block production (grounded on the
// teacher's Emitter.Emit).
func (c *Chain) emit(ev ChainEvent) {
	c.handlersMu.RLock()
	handlers := append([]Handler(nil), c.handlers...)
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("chain: event handler panicked: %v", r)
				}
			}()
			h(ev)
		}()
	}
}

// HeaderByHeight returns the committed header at height.
func (c *Chain) HeaderByHeight(height uint64) (*block.Header, error) {
	return c.ledger.HeaderByHeight(height)
}

// BlockByHeight reassembles the full committed block at height.
func (c *Chain) BlockByHeight(height uint64) (*block.Block, error) {
	return c.ledger.BlockByHeight(height)
}

// TransactionByHash returns a committed transaction by its hash.
func (c *Chain) TransactionByHash(hash crypto.Hash) (*block.Transaction, error) {
	return c.ledger.TransactionByHash(hash)
}

// HeaderByHash returns the committed header with the given hash.
func (c *Chain) HeaderByHash(hash crypto.Hash) (*block.Header, error) {
	return c.ledger.HeaderByHash(hash)
}

// HasHeader reports whether the ledger already holds a header for
// (height, hash), used by Backend.HasProposal to ignore a redundant
// PRE-PREPARE for an already-committed height.
func (c *Chain) HasHeader(height uint64, hash crypto.Hash) bool {
	h, err := c.ledger.HeaderByHeight(height)
	if err != nil {
		return false
	}
	return h.Hash() == hash
}
