package bft

import (
	"sync"

	"github.com/corvidium/bft/crypto"
)

// RoundState holds all protocol state for a single (height, round), and
// carries the parts of that state (the lock) that survive a round
// change within the same height (spec.md §4.4).
type RoundState struct {
	mu sync.RWMutex

	view       View
	validators *ValidatorSet

	prePrepare *PrePrepare
	prepares   *MessageStore
	commits    *MessageStore

	pendingRequest *Proposal

	locked     bool
	lockedHash crypto.Hash
}

// NewRoundState creates a fresh RoundState for view, with empty prepare
// and commit stores scoped to validators.
func NewRoundState(view View, validators *ValidatorSet) *RoundState {
	return &RoundState{
		view:       view,
		validators: validators,
		prepares:   NewMessageStore(validators),
		commits:    NewMessageStore(validators),
	}
}

// View returns the round state's view.
func (r *RoundState) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view
}

// Validators returns the validator set snapshot this round state was
// built from.
func (r *RoundState) Validators() *ValidatorSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validators
}

// Subject returns the (view, digest) subject of the current PRE-PREPARE,
// or false if none has been set yet.
func (r *RoundState) Subject() (Subject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.prePrepare == nil {
		return Subject{}, false
	}
	return Subject{View: r.view, Digest: r.prePrepare.Proposal.Block.Hash()}, true
}

// PrePrepare returns the round's accepted PRE-PREPARE, or nil.
func (r *RoundState) PrePrepare() *PrePrepare {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prePrepare
}

// SetPrePrepare records pp as the round's accepted proposal.
func (r *RoundState) SetPrePrepare(pp *PrePrepare) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prePrepare = pp
}

// Prepares returns the round's PREPARE message store.
func (r *RoundState) Prepares() *MessageStore { return r.prepares }

// Commits returns the round's COMMIT message store.
func (r *RoundState) Commits() *MessageStore { return r.commits }

// PendingRequest returns the proposal queued for the next round this
// node is proposer for, or nil.
func (r *RoundState) PendingRequest() *Proposal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingRequest
}

// SetPendingRequest records p as the pending request.
func (r *RoundState) SetPendingRequest(p *Proposal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingRequest = p
}

// LockHash locks the round state on the digest of the current
// PRE-PREPARE (spec.md §4.4: a node locks its vote once it has sent a
// COMMIT, and must re-propose the locked block on any subsequent round
// within the same height). The locked proposal is also recorded as the
// pending request, so a locked validator that becomes proposer in a later
// round (which carries pendingRequest forward via Derive, not
// prePrepare) still has the block to re-propose (spec.md §5(a).5).
func (r *RoundState) LockHash() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prePrepare == nil {
		return
	}
	r.locked = true
	r.lockedHash = r.prePrepare.Proposal.Block.Hash()
	r.pendingRequest = &r.prePrepare.Proposal
}

// IsLocked reports whether the round state is locked on a hash.
func (r *RoundState) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// GetLockedHash returns the locked digest and true, or the zero hash and
// false if not locked.
func (r *RoundState) GetLockedHash() (crypto.Hash, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.locked {
		return crypto.Hash{}, false
	}
	return r.lockedHash, true
}

// PrepareOrCommitSize returns the number of distinct senders that have
// sent either a PREPARE or a COMMIT for the current subject, used to
// detect the Prepared state even when some senders skipped straight to
// COMMIT (spec.md §4.4 / §5, the "prepared certificate" quorum check).
func (r *RoundState) PrepareOrCommitSize() int {
	seen := make(map[crypto.Address]bool)
	for addr := range r.prepares.Senders() {
		seen[addr] = true
	}
	for addr := range r.commits.Senders() {
		seen[addr] = true
	}
	return len(seen)
}

// Derive builds the RoundState for the next round within the same
// height, carrying the lock forward untouched (spec.md §4.4: "the lock
// survives a round change within the same height").
func (r *RoundState) Derive(nextRound uint64, validators *ValidatorSet) *RoundState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	next := NewRoundState(View{Height: r.view.Height, Round: nextRound}, validators)
	next.pendingRequest = r.pendingRequest
	next.locked = r.locked
	next.lockedHash = r.lockedHash
	return next
}
