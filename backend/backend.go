// Package backend bridges the consensus core (package consensus/bft) to
// the rest of the node: chain storage, the gossip network, and block
// verification (spec.md §4.7).
package backend

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/chain"
	bft "github.com/corvidium/bft/consensus/bft"
	"github.com/corvidium/bft/crypto"
)

// Gossiper sends a signed consensus message to every other validator.
// Implemented by package p2p.
type Gossiper interface {
	Broadcast(recipients []crypto.Address, payload []byte) error
}

const gossipDedupCacheSize = 4096

// Backend implements consensus/bft.Backend on top of a Chain and a
// Gossiper, deduplicating inbound and outbound gossip the way the
// istanbul-family backends do (spec.md §4.7).
type Backend struct {
	chain       *chain.Chain
	gossiper    Gossiper
	validators  func(height uint64) *bft.ValidatorSet
	blockPeriod uint64 // seconds, spec.md §4.7 verify_header's h.time >= parent.time + block_period

	seen *lru.Cache[crypto.Hash, struct{}]
}

// New builds a Backend. validatorsAt resolves the validator set
// effective at a given height: genesis config for height 1, validator
// votes embedded in later headers thereafter (spec.md §4.1's "validator
// set changes" Non-goal scopes out the latter for this module).
// blockPeriod is the minimum header-time spacing enforced by verify_header.
func New(c *chain.Chain, gossiper Gossiper, validatorsAt func(height uint64) *bft.ValidatorSet, blockPeriod uint64) (*Backend, error) {
	cache, err := lru.New[crypto.Hash, struct{}](gossipDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("backend: dedup cache: %w", err)
	}
	return &Backend{chain: c, gossiper: gossiper, validators: validatorsAt, blockPeriod: blockPeriod, seen: cache}, nil
}

// Validators implements bft.Backend.
func (b *Backend) Validators(height uint64) *bft.ValidatorSet {
	return b.validators(height)
}

// LastProposal implements bft.Backend.
func (b *Backend) LastProposal() (*block.Block, crypto.Address) {
	head := b.chain.HeadBlock()
	return head, head.Header.ProposerAddr
}

// Verify implements bft.Backend: verify_header's ancestry, timestamp and
// future-block checks, plus a re-derived transaction root and (when the
// header already carries a quorum certificate) check_seal (spec.md §4.7).
func (b *Backend) Verify(proposal bft.Proposal) error {
	h := proposal.Block.Header
	if h.Height == 0 {
		return &bft.EngineError{Kind: bft.EngineInvalidHeight, ChildHeight: h.Height}
	}

	parent, err := b.chain.HeaderByHeight(h.Height - 1)
	if err != nil {
		return &bft.EngineError{Kind: bft.EngineUnknownAncestor, ChildHeight: h.Height}
	}
	if h.PrevHash != parent.Hash() {
		return &bft.EngineError{
			Kind:         bft.EngineUnknownAncestor,
			ParentHeight: parent.Height,
			ChildHeight:  h.Height,
		}
	}

	now := uint64(time.Now().Unix())
	if h.Time > now {
		return &bft.EngineError{Kind: bft.EngineFutureBlock, ChildHeight: h.Height, Delta: h.Time - now}
	}
	if h.Time < parent.Time+b.blockPeriod {
		return &bft.EngineError{Kind: bft.EngineInvalidTimestamp, ChildHeight: h.Height}
	}

	expectedRoot := block.MerkleRoot(proposal.Block.Transactions)
	if h.TxMerkleRoot != expectedRoot {
		return &bft.EngineError{
			Kind:         bft.EngineInvalidTransactionHash,
			ExpectedHash: expectedRoot,
			GotHash:      h.TxMerkleRoot,
		}
	}

	if len(h.Votes) > 0 {
		return b.checkSeal(h)
	}
	return nil
}

// checkSeal validates a header's quorum certificate: every seal recovers
// to a validator in the set effective at that height, the proposer is a
// member of it, and the certificate meets quorum (spec.md §4.7
// verify_header's check_seal branch).
func (b *Backend) checkSeal(h *block.Header) error {
	validators := b.validators(h.Height)
	if !validators.Contains(h.ProposerAddr) {
		return &bft.EngineError{Kind: bft.EngineUnauthorized, ChildHeight: h.Height}
	}

	digest := h.Hash()
	signers := make(map[crypto.Address]struct{}, len(h.Votes))
	for _, seal := range h.Votes {
		if !validators.Contains(seal.Address) {
			return &bft.EngineError{Kind: bft.EngineUnauthorized, ChildHeight: h.Height}
		}
		if err := crypto.Verify(seal.Address, digest, seal.Signature); err != nil {
			return &bft.EngineError{Kind: bft.EngineInvalidSignature, ChildHeight: h.Height}
		}
		signers[seal.Address] = struct{}{}
	}
	if len(signers) < validators.QuorumSize() {
		return &bft.EngineError{
			Kind:        bft.EngineLackVotes,
			Need:        validators.QuorumSize(),
			Got:         len(signers),
			ChildHeight: h.Height,
		}
	}
	return nil
}

// Commit implements bft.Backend: it attaches votes as the block's quorum
// certificate and hands the sealed block to the chain. A re-commit of a
// block the chain already holds is reported by Chain.Commit as success,
// not an error, satisfying the idempotent-insert contract of spec.md §4.7.
func (b *Backend) Commit(proposal bft.Proposal, votes block.Votes) error {
	sealed := proposal.Block.WithVotes(votes)
	return b.chain.Commit(sealed)
}

// Broadcast implements bft.Backend, deduplicating identical outbound
// gossip by content hash so a re-broadcast (e.g. after a round change
// re-proposes the same locked block) does not resend bytes already on
// the wire to the same peer set.
func (b *Backend) Broadcast(validators *bft.ValidatorSet, msg *bft.GossipMessage) error {
	contentHash := msg.ContentHash()
	if _, ok := b.seen.Get(contentHash); ok {
		return nil
	}
	b.seen.Add(contentHash, struct{}{})

	recipients := make([]crypto.Address, 0, validators.Size())
	for _, v := range validators.List() {
		recipients = append(recipients, v.Address)
	}
	return b.gossiper.Broadcast(recipients, msg.Encode())
}

// Deliver is called by the network layer for each inbound gossip
// message; duplicates already seen (e.g. relayed by more than one peer)
// are dropped before they ever reach the core.
func (b *Backend) Deliver(payload []byte, core *bft.Core) error {
	msg, err := bft.DecodeGossipMessage(payload)
	if err != nil {
		return fmt.Errorf("backend: decode gossip message: %w", err)
	}
	contentHash := msg.ContentHash()
	if _, ok := b.seen.Get(contentHash); ok {
		return nil
	}
	b.seen.Add(contentHash, struct{}{})
	core.SubmitMessage(msg)
	return nil
}

// HasProposal implements bft.Backend.
func (b *Backend) HasProposal(height uint64, hash crypto.Hash) bool {
	return b.chain.HasHeader(height, hash)
}

// GetProposer implements bft.Backend.
func (b *Backend) GetProposer(height uint64) crypto.Address {
	header, err := b.chain.HeaderByHeight(height)
	if err != nil {
		return crypto.Address{}
	}
	return header.ProposerAddr
}

// HeaderByHeight implements bft.Backend.
func (b *Backend) HeaderByHeight(height uint64) (*block.Header, bool) {
	h, err := b.chain.HeaderByHeight(height)
	if err != nil {
		return nil, false
	}
	return h, true
}
