package block

import (
	"math/big"

	"github.com/corvidium/bft/crypto"
)

// Seal is one validator's signature over a committed block's header hash
// (spec.md §3's "Quorum Certificate").
type Seal struct {
	Address   crypto.Address
	Signature []byte
}

// Votes is the quorum certificate embedded in a committed block's header:
// an ordered list of seals, each signing the block's header hash, with the
// proposer's own commit seal included (spec.md §3).
type Votes []Seal

// Header is the block header of spec.md §3.
type Header struct {
	PrevHash       crypto.Hash
	ProposerAddr   crypto.Address
	StateRoot      crypto.Hash
	TxMerkleRoot   crypto.Hash
	ReceiptRoot    crypto.Hash
	Bloom          [256]byte
	Difficulty     *big.Int
	Height         uint64
	GasLimit       uint64
	GasUsed        uint64
	Time           uint64 // unix seconds
	Extra          []byte
	Votes          Votes // nil until committed
}

// encodeWithoutVotes returns the canonical encoding of h with Votes
// omitted, the input to Hash(), per spec.md §3: "Block hash = cryptographic
// hash over the canonical header encoding with votes = none."
func (h *Header) encodeWithoutVotes() []byte {
	enc := newEncoder()
	enc.writeBytes(h.PrevHash.Bytes())
	enc.writeBytes(h.ProposerAddr.Bytes())
	enc.writeBytes(h.StateRoot.Bytes())
	enc.writeBytes(h.TxMerkleRoot.Bytes())
	enc.writeBytes(h.ReceiptRoot.Bytes())
	enc.writeBytes(h.Bloom[:])
	enc.writeBigInt(h.Difficulty)
	enc.writeUint64(h.Height)
	enc.writeUint64(h.GasLimit)
	enc.writeUint64(h.GasUsed)
	enc.writeUint64(h.Time)
	enc.writeBytes(h.Extra)
	return enc.bytes()
}

// Hash is the block hash: the Keccak-256 digest of the header's canonical
// encoding with Votes cleared.
func (h *Header) Hash() crypto.Hash {
	return crypto.Keccak256(h.encodeWithoutVotes())
}

// Encode returns the canonical, self-describing encoding of the full
// header, including Votes, used for on-disk storage and wire transfer.
func (h *Header) Encode() []byte {
	enc := newEncoder()
	enc.buf.Write(h.encodeWithoutVotes())
	enc.writeUint64(uint64(len(h.Votes)))
	for _, s := range h.Votes {
		enc.writeBytes(s.Address.Bytes())
		enc.writeBytes(s.Signature)
	}
	return enc.bytes()
}

// DecodeHeader parses the encoding produced by Header.Encode.
func DecodeHeader(b []byte) (*Header, error) {
	dec := newDecoder(b)
	h := &Header{}
	h.PrevHash = crypto.BytesToHash(dec.readBytes())
	h.ProposerAddr = crypto.BytesToAddress(dec.readBytes())
	h.StateRoot = crypto.BytesToHash(dec.readBytes())
	h.TxMerkleRoot = crypto.BytesToHash(dec.readBytes())
	h.ReceiptRoot = crypto.BytesToHash(dec.readBytes())
	copy(h.Bloom[:], dec.readBytes())
	h.Difficulty = dec.readBigInt()
	h.Height = dec.readUint64()
	h.GasLimit = dec.readUint64()
	h.GasUsed = dec.readUint64()
	h.Time = dec.readUint64()
	h.Extra = dec.readBytes()
	n := dec.readUint64()
	if n > 0 {
		h.Votes = make(Votes, 0, n)
		for i := uint64(0); i < n; i++ {
			addr := crypto.BytesToAddress(dec.readBytes())
			sig := dec.readBytes()
			h.Votes = append(h.Votes, Seal{Address: addr, Signature: sig})
		}
	}
	if err := dec.err(); err != nil {
		return nil, err
	}
	return h, nil
}

// Copy returns a deep-enough copy of h suitable for building a new
// candidate header from a parent without aliasing slices.
func (h *Header) Copy() *Header {
	cp := *h
	if h.Difficulty != nil {
		cp.Difficulty = new(big.Int).Set(h.Difficulty)
	}
	cp.Extra = append([]byte(nil), h.Extra...)
	cp.Votes = append(Votes(nil), h.Votes...)
	return &cp
}
