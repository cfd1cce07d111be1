// Package bft implements the per-height PBFT-style consensus core of
// spec.md: the PRE-PREPARE/PREPARE/COMMIT state machine, its ROUND-CHANGE
// liveness subprotocol, message validation and vote aggregation, the
// deterministic proposer rotation, and the authenticated gossip envelope
// every consensus message travels in.
package bft

import (
	"fmt"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

// View identifies a consensus instance by (height, round) (spec.md §3).
type View struct {
	Height uint64
	Round  uint64
}

// Cmp gives the total order over views: height first, then round.
func (v View) Cmp(o View) int {
	switch {
	case v.Height < o.Height:
		return -1
	case v.Height > o.Height:
		return 1
	case v.Round < o.Round:
		return -1
	case v.Round > o.Round:
		return 1
	default:
		return 0
	}
}

func (v View) String() string {
	return fmt.Sprintf("{height:%d round:%d}", v.Height, v.Round)
}

// Subject is the (view, digest) pair PREPARE and COMMIT messages sign
// (spec.md §3): the digest is the hash of the block the current
// PRE-PREPARE proposes.
type Subject struct {
	View   View
	Digest crypto.Hash
}

func (s Subject) encode() []byte {
	enc := newEncoder()
	enc.writeUint64(s.View.Height)
	enc.writeUint64(s.View.Round)
	enc.writeBytes(s.Digest.Bytes())
	return enc.bytes()
}

func decodeSubject(b []byte) (Subject, error) {
	dec := newDecoder(b)
	var s Subject
	s.View.Height = dec.readUint64()
	s.View.Round = dec.readUint64()
	s.Digest = crypto.BytesToHash(dec.readBytes())
	return s, dec.err()
}

// Proposal wraps a candidate block at a specific view (spec.md §3).
type Proposal struct {
	View  View
	Block *block.Block
}

// PrePrepare is the proposer's initial broadcast for a view (spec.md §3).
type PrePrepare struct {
	View     View
	Proposal Proposal
}

func (pp PrePrepare) encode() []byte {
	enc := newEncoder()
	enc.writeUint64(pp.View.Height)
	enc.writeUint64(pp.View.Round)
	enc.writeBytes(pp.Proposal.Block.Encode())
	return enc.bytes()
}

func decodePrePrepare(b []byte) (PrePrepare, error) {
	dec := newDecoder(b)
	var pp PrePrepare
	pp.View.Height = dec.readUint64()
	pp.View.Round = dec.readUint64()
	blockBytes := dec.readBytes()
	if err := dec.err(); err != nil {
		return PrePrepare{}, err
	}
	blk, err := block.DecodeBlock(blockBytes)
	if err != nil {
		return PrePrepare{}, err
	}
	pp.Proposal = Proposal{View: pp.View, Block: blk}
	return pp, nil
}
