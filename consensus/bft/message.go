package bft

import (
	"fmt"
	"sync"

	"github.com/corvidium/bft/crypto"
)

// MessageCode identifies which of the three consensus phases, or the
// liveness subprotocol, a GossipMessage carries (spec.md §4.2).
type MessageCode uint8

const (
	MsgPrePrepare MessageCode = iota + 1
	MsgPrepare
	MsgCommit
	MsgRoundChange
)

func (c MessageCode) String() string {
	switch c {
	case MsgPrePrepare:
		return "PRE-PREPARE"
	case MsgPrepare:
		return "PREPARE"
	case MsgCommit:
		return "COMMIT"
	case MsgRoundChange:
		return "ROUND-CHANGE"
	default:
		return fmt.Sprintf("MessageCode(%d)", c)
	}
}

// GossipMessage is the authenticated, signed wire envelope every
// consensus message travels in (spec.md §4.2).
type GossipMessage struct {
	Code       MessageCode
	CreateTime uint64 // unix millis
	Msg        []byte // canonical encoding of a PrePrepare or Subject
	Signature  []byte
	CommitSeal []byte // present only for Code == MsgCommit

	// Address is the sender's address: set by Sign, carried in the wire
	// encoding, and checked by Authenticate against the address recovered
	// from Signature.
	Address crypto.Address
}

// signingPayload is the canonical encoding signed by Signature: the
// message with Signature and CommitSeal cleared (spec.md §4.2).
func (m *GossipMessage) signingPayload() []byte {
	enc := newEncoder()
	enc.writeUint64(uint64(m.Code))
	enc.writeUint64(m.CreateTime)
	enc.writeBytes(m.Msg)
	return enc.bytes()
}

// Sign signs m with priv and records the signer's address.
func (m *GossipMessage) Sign(priv crypto.PrivateKey) error {
	digest := crypto.Keccak256(m.signingPayload())
	sig, err := crypto.Sign(priv, digest)
	if err != nil {
		return err
	}
	m.Signature = sig
	m.Address = priv.Public().Address()
	return nil
}

// SignCommitSeal sets CommitSeal to priv's signature over digest, the
// block-hash digest of the current subject (spec.md §4.2).
func (m *GossipMessage) SignCommitSeal(priv crypto.PrivateKey, digest crypto.Hash) error {
	seal, err := crypto.Sign(priv, digest)
	if err != nil {
		return err
	}
	m.CommitSeal = seal
	return nil
}

// Authenticate recovers the signer address from Signature and checks it
// equals m.Address and belongs to validators (spec.md §4.2:
// "sender address MUST equal the address recovered from signature AND
// MUST belong to the current validator set; otherwise the message is
// dropped (unauthorised)").
func (m *GossipMessage) Authenticate(validators *ValidatorSet) error {
	digest := crypto.Keccak256(m.signingPayload())
	addr, err := crypto.Recover(digest, m.Signature)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnauthorizedAddress, err)
	}
	if m.Address != addr {
		return fmt.Errorf("%w: sender %s does not match signer %s", ErrUnauthorizedAddress, m.Address, addr)
	}
	if !validators.Contains(addr) {
		return fmt.Errorf("%w: %s not in validator set", ErrUnauthorizedAddress, addr)
	}
	return nil
}

// VerifyCommitSeal checks that CommitSeal recovers to m.Address and signs
// exactly digest (spec.md §4.2).
func (m *GossipMessage) VerifyCommitSeal(digest crypto.Hash) error {
	if len(m.CommitSeal) == 0 {
		return fmt.Errorf("%w: missing commit seal", ErrInvalidMessage)
	}
	return crypto.Verify(m.Address, digest, m.CommitSeal)
}

// ContentHash is the canonical content hash used to define equality and
// to key dedup caches (spec.md §4.2).
func (m *GossipMessage) ContentHash() crypto.Hash {
	enc := newEncoder()
	enc.writeUint64(uint64(m.Code))
	enc.writeUint64(m.CreateTime)
	enc.writeBytes(m.Msg)
	enc.writeBytes(m.Signature)
	enc.writeBytes(m.CommitSeal)
	return crypto.Keccak256(enc.bytes())
}

// Encode returns the canonical, self-describing encoding used to
// transmit m over the wire.
func (m *GossipMessage) Encode() []byte {
	enc := newEncoder()
	enc.writeUint64(uint64(m.Code))
	enc.writeUint64(m.CreateTime)
	enc.writeBytes(m.Msg)
	enc.writeBytes(m.Signature)
	enc.writeBytes(m.CommitSeal)
	enc.writeBytes(m.Address.Bytes())
	return enc.bytes()
}

// DecodeGossipMessage parses the encoding produced by GossipMessage.Encode.
// The embedded Address is untrusted until Authenticate confirms it matches
// the signature's recovered address.
func DecodeGossipMessage(b []byte) (*GossipMessage, error) {
	dec := newDecoder(b)
	m := &GossipMessage{}
	m.Code = MessageCode(dec.readUint64())
	m.CreateTime = dec.readUint64()
	m.Msg = dec.readBytes()
	m.Signature = dec.readBytes()
	m.CommitSeal = dec.readBytes()
	m.Address = crypto.BytesToAddress(dec.readBytes())
	if err := dec.err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Subject decodes m.Msg as a Subject, valid for PREPARE, COMMIT and
// ROUND-CHANGE messages.
func (m *GossipMessage) Subject() (Subject, error) {
	return decodeSubject(m.Msg)
}

// PrePrepare decodes m.Msg as a PrePrepare, valid only for
// Code == MsgPrePrepare.
func (m *GossipMessage) PrePrepare() (PrePrepare, error) {
	return decodePrePrepare(m.Msg)
}

// MessageStore is a per-(view, phase) map from sender address to message,
// with duplicate suppression: a second message from the same sender
// overwrites the first (last-write-wins), per spec.md §4.3.
type MessageStore struct {
	mu         sync.RWMutex
	validators *ValidatorSet
	messages   map[crypto.Address]*GossipMessage
}

// NewMessageStore creates a MessageStore whose Add rejects senders not in
// validators.
func NewMessageStore(validators *ValidatorSet) *MessageStore {
	return &MessageStore{
		validators: validators,
		messages:   make(map[crypto.Address]*GossipMessage),
	}
}

// Add stores msg keyed by its sender address, rejecting senders outside
// the validator set. Returns true if the message was accepted.
func (s *MessageStore) Add(msg *GossipMessage) bool {
	if !s.validators.Contains(msg.Address) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.Address] = msg
	return true
}

// Len returns the number of distinct senders stored.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Get returns the message from addr, if any.
func (s *MessageStore) Get(addr crypto.Address) (*GossipMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[addr]
	return m, ok
}

// Has reports whether addr has a message recorded.
func (s *MessageStore) Has(addr crypto.Address) bool {
	_, ok := s.Get(addr)
	return ok
}

// Values returns a snapshot of all stored messages, in no particular order.
func (s *MessageStore) Values() []*GossipMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*GossipMessage, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	return out
}

// Senders returns the set of addresses with a message recorded.
func (s *MessageStore) Senders() map[crypto.Address]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[crypto.Address]bool, len(s.messages))
	for a := range s.messages {
		out[a] = true
	}
	return out
}
