package bft

import (
	"errors"

	"github.com/corvidium/bft/crypto"
)

// Consensus error kinds (spec.md §7). None of these are fatal: the core
// never crashes the process on a protocol error, it only decides whether
// to drop, backlog, or act on a message.
var (
	ErrIgnored             = errors.New("bft: message ignored")
	ErrFutureMessage       = errors.New("bft: future message")
	ErrFutureRoundMessage  = errors.New("bft: future round message")
	ErrInconsistentSubject = errors.New("bft: inconsistent subject")
	ErrOldMessage          = errors.New("bft: old message")
	ErrInvalidMessage      = errors.New("bft: invalid message")
	ErrUnauthorizedAddress = errors.New("bft: unauthorized address")
	ErrWaitNewRound        = errors.New("bft: waiting for new round")
	ErrNotFromProposer     = errors.New("bft: message not from proposer")
	ErrTimeoutMessage      = errors.New("bft: timeout")
)

// FutureBlockMessageError carries the reported future height, mirroring
// spec.md §7's FutureBlockMessage(height) variant.
type FutureBlockMessageError struct {
	Height uint64
}

func (e *FutureBlockMessageError) Error() string {
	return "bft: future block message"
}

// EngineErrorKind enumerates spec.md §7's Engine error kinds.
type EngineErrorKind int

const (
	EngineNotStarted EngineErrorKind = iota
	EngineInvalidProposal
	EngineInvalidSignature
	EngineInvalidHeight
	EngineInvalidTimestamp
	EngineInvalidTransactionHash
	EngineUnauthorized
	EngineLackVotes
	EngineFutureBlock
	EngineInvalidBlock
	EngineUnknownAncestor
	EngineInterrupt
	EngineUnknown
)

// EngineError is the tagged-variant error returned by Backend.verify and
// related engine operations (spec.md §7, §9's "model as a tagged-variant
// return").
type EngineError struct {
	Kind EngineErrorKind

	// Populated only for the kinds that carry data.
	ExpectedHash crypto.Hash
	GotHash      crypto.Hash
	ChildHeight  uint64
	ParentHeight uint64
	Need         int
	Got          int
	Delta        uint64 // seconds in the future, set only for EngineFutureBlock
}

func (e *EngineError) Error() string {
	switch e.Kind {
	case EngineNotStarted:
		return "engine: not started"
	case EngineInvalidProposal:
		return "engine: invalid proposal"
	case EngineInvalidSignature:
		return "engine: invalid signature"
	case EngineInvalidHeight:
		return "engine: invalid height"
	case EngineInvalidTimestamp:
		return "engine: invalid timestamp"
	case EngineInvalidTransactionHash:
		return "engine: invalid transaction hash"
	case EngineUnauthorized:
		return "engine: unauthorized"
	case EngineLackVotes:
		return "engine: lack votes"
	case EngineFutureBlock:
		return "engine: future block"
	case EngineInvalidBlock:
		return "engine: invalid block"
	case EngineUnknownAncestor:
		return "engine: unknown ancestor"
	case EngineInterrupt:
		return "engine: interrupt"
	default:
		return "engine: unknown error"
	}
}

// IsFutureBlock reports whether err is an EngineError of kind
// EngineFutureBlock, the only engine error the core must NOT treat as a
// rejection (spec.md §9).
func IsFutureBlock(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind == EngineFutureBlock
	}
	return false
}

// IsInterrupt reports whether err is an EngineError of kind EngineInterrupt.
func IsInterrupt(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind == EngineInterrupt
	}
	return false
}
