package p2p

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/corvidium/bft/crypto"
)

// Handshake is exchanged on every new TCP connection, in both directions,
// before any other frame is accepted (spec.md §6).
type Handshake struct {
	Version     uint32
	PeerID      string // base58, libp2p-style (spec.md §6)
	GenesisHash crypto.Hash
}

// ErrHandshakeRejected names why a connection was dropped post-handshake.
type ErrHandshakeRejected struct {
	Reason string
}

func (e *ErrHandshakeRejected) Error() string { return "p2p: handshake rejected: " + e.Reason }

// EncodePeerID renders addr as the base58 peer id carried in a Handshake.
func EncodePeerID(addr crypto.Address) string {
	return base58.Encode(addr.Bytes())
}

// DecodePeerID parses a base58 peer id back into an address.
func DecodePeerID(id string) (crypto.Address, error) {
	b := base58.Decode(id)
	if len(b) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("p2p: invalid peer id %q", id)
	}
	return crypto.BytesToAddress(b), nil
}

func (h Handshake) encode() []byte {
	enc := newEncoder()
	enc.writeUint64(uint64(h.Version))
	enc.writeBytes([]byte(h.PeerID))
	enc.writeBytes(h.GenesisHash.Bytes())
	return enc.bytes()
}

func decodeHandshake(data []byte) (Handshake, error) {
	dec := newDecoder(data)
	var h Handshake
	h.Version = uint32(dec.readUint64())
	h.PeerID = string(dec.readBytes())
	h.GenesisHash = crypto.BytesToHash(dec.readBytes())
	if err := dec.err(); err != nil {
		return Handshake{}, err
	}
	return h, nil
}

// checkHandshake applies spec.md §6's three rejection rules: a peer
// claiming our own id, an id we already have connected, or a differing
// genesis hash.
func checkHandshake(local Handshake, remote Handshake, alreadyConnected func(peerID string) bool) error {
	if remote.PeerID == local.PeerID {
		return &ErrHandshakeRejected{Reason: "peer id equals ours"}
	}
	if alreadyConnected(remote.PeerID) {
		return &ErrHandshakeRejected{Reason: "peer id already connected"}
	}
	if remote.GenesisHash != local.GenesisHash {
		return &ErrHandshakeRejected{Reason: "genesis hash mismatch"}
	}
	return nil
}
