package bft

import (
	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

// Backend is everything the consensus Core needs from the rest of the
// node: chain state, block verification and sealing, and the gossip
// network. Concrete nodes wire an implementation in package backend
// (spec.md §5, §6: Core is deliberately ignorant of storage and
// networking).
type Backend interface {
	// Validators returns the validator set effective at height. A height
	// of 0 means "the set effective for the next block to be proposed".
	Validators(height uint64) *ValidatorSet

	// LastProposal returns the most recently committed block and the
	// address that proposed it.
	LastProposal() (*block.Block, crypto.Address)

	// Verify checks proposal against chain rules (ancestry, timestamp
	// spacing, transaction root, and the quorum certificate when the header
	// already carries votes). Returns an *EngineError on failure; an
	// EngineFutureBlock error means the proposal's timestamp is still in
	// the future and the core should backlog it rather than reject it.
	Verify(proposal Proposal) error

	// Commit seals proposal with votes (the quorum certificate of commit
	// seals gathered by the core) and hands it to the chain for
	// insertion. Called exactly once per height, from a height the core
	// believes final.
	Commit(proposal Proposal, votes block.Votes) error

	// Broadcast gossips msg to every other validator in the current set.
	Broadcast(validators *ValidatorSet, msg *GossipMessage) error

	// HasProposal reports whether the chain already holds a block with
	// the given (height, digest), used to ignore a PRE-PREPARE for a
	// height already committed.
	HasProposal(height uint64, digest crypto.Hash) bool

	// GetProposer returns the address that proposed the block at height,
	// or the zero address if height is unknown.
	GetProposer(height uint64) crypto.Address

	// HeaderByHeight returns the committed header at height, or false if
	// none exists yet.
	HeaderByHeight(height uint64) (*block.Header, bool)
}
