package bft

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/corvidium/bft/crypto"
)

// ErrEmptyValidatorSet is returned by operations that require at least one
// validator (spec.md §4.1: "operations on an empty validator set are
// forbidden").
var ErrEmptyValidatorSet = errors.New("bft: validator set is empty")

// Validator is a node authorised to participate in consensus, identified
// by its address (GLOSSARY).
type Validator struct {
	Address crypto.Address
}

// ValidatorSet is an ordered set of validators (sorted by address) with
// deterministic proposer selection for a given (height, round) (spec.md
// §4.1). The zero value is not usable; build one with NewValidatorSet.
type ValidatorSet struct {
	mu         sync.RWMutex
	validators []Validator
	proposer   crypto.Address
}

// NewValidatorSet builds a ValidatorSet from addrs, sorting and
// de-duplicating them (spec.md §3: "duplicate addresses are rejected",
// silently collapsed here rather than erroring, matching the teacher's
// idempotent-add semantics in AddValidator).
func NewValidatorSet(addrs []crypto.Address) *ValidatorSet {
	seen := make(map[crypto.Address]bool, len(addrs))
	vs := make([]Validator, 0, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		vs = append(vs, Validator{Address: a})
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].Address.Cmp(vs[j].Address) < 0 })
	return &ValidatorSet{validators: vs}
}

// Size returns the number of validators.
func (s *ValidatorSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.validators)
}

// Contains reports whether addr belongs to the set.
func (s *ValidatorSet) Contains(addr crypto.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(addr) >= 0
}

// indexOf must be called with s.mu held.
func (s *ValidatorSet) indexOf(addr crypto.Address) int {
	for i, v := range s.validators {
		if v.Address == addr {
			return i
		}
	}
	return -1
}

// GetByAddress returns the validator with the given address and true, or
// the zero value and false.
func (s *ValidatorSet) GetByAddress(addr crypto.Address) (Validator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(addr)
	if i < 0 {
		return Validator{}, false
	}
	return s.validators[i], true
}

// GetByIndex returns the validator at position i, or false if out of range.
func (s *ValidatorSet) GetByIndex(i int) (Validator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.validators) {
		return Validator{}, false
	}
	return s.validators[i], true
}

// List returns a snapshot copy of the ordered validator list.
func (s *ValidatorSet) List() []Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Validator, len(s.validators))
	copy(out, s.validators)
	return out
}

// Add inserts addr, re-sorting to maintain order. Idempotent: adding an
// address already present is a no-op (spec.md §4.1).
func (s *ValidatorSet) Add(addr crypto.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(addr) >= 0 {
		return false
	}
	s.validators = append(s.validators, Validator{Address: addr})
	sort.Slice(s.validators, func(i, j int) bool {
		return s.validators[i].Address.Cmp(s.validators[j].Address) < 0
	})
	return true
}

// Remove deletes addr from the set. Removing an absent address is a no-op
// returning false (spec.md §4.1).
func (s *ValidatorSet) Remove(addr crypto.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(addr)
	if i < 0 {
		return false
	}
	s.validators = append(s.validators[:i], s.validators[i+1:]...)
	return true
}

// TwoThirdsMajority returns floor(2*n/3) (spec.md §3).
func (s *ValidatorSet) TwoThirdsMajority() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (2 * len(s.validators)) / 3
}

// QuorumSize returns the quorum threshold two_thirds_majority()+1, i.e.
// 2f+1 for n = 3f+1 (spec.md §3).
func (s *ValidatorSet) QuorumSize() int {
	return s.TwoThirdsMajority() + 1
}

// F returns the maximum number of Byzantine validators tolerated.
func (s *ValidatorSet) F() int {
	n := s.Size()
	return (n - 1) / 3
}

// CalcProposer computes the deterministic proposer for (parentHash,
// round) and records it as the set's current proposer (spec.md
// §4.1): seed is the first 8 bytes of parentHash read as a big-endian
// unsigned integer, index := (seed mod n + round) mod n.
func (s *ValidatorSet) CalcProposer(parentHash crypto.Hash, round uint64) (Validator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.validators) == 0 {
		return Validator{}, ErrEmptyValidatorSet
	}
	n := uint64(len(s.validators))
	seed := binary.BigEndian.Uint64(parentHash.Bytes()[:8])
	index := (seed%n + round) % n
	proposer := s.validators[index]
	s.proposer = proposer.Address
	return proposer, nil
}

// GetProposer returns the validator set's currently recorded proposer.
func (s *ValidatorSet) GetProposer() crypto.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proposer
}

// IsProposer reports whether addr is the set's currently recorded proposer.
func (s *ValidatorSet) IsProposer(addr crypto.Address) bool {
	return s.GetProposer() == addr
}

// Copy returns an independent ValidatorSet with the same members and
// proposer, used to snapshot the set into a RoundState (spec.md §4.4:
// "validator_set snapshot").
func (s *ValidatorSet) Copy() *ValidatorSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &ValidatorSet{
		validators: append([]Validator(nil), s.validators...),
		proposer:   s.proposer,
	}
	return out
}
