package block

import "github.com/corvidium/bft/crypto"

// Block is an ordered list of transactions under a Header (spec.md §3).
type Block struct {
	Header       *Header
	Transactions []*Transaction
}

// New builds an unsealed candidate block: TxMerkleRoot is computed from
// txs, Votes is left nil.
func New(header *Header, txs []*Transaction) *Block {
	header.TxMerkleRoot = MerkleRoot(txs)
	return &Block{Header: header, Transactions: txs}
}

// Hash is the block's hash, delegated to its header.
func (b *Block) Hash() crypto.Hash { return b.Header.Hash() }

// Number returns the block's height, naming it the way the Proposal
// interface of the istanbul-family examples does ("Number"), since the
// Backend/Core boundary (spec.md §4.7) is itself modeled on that interface.
func (b *Block) Number() uint64 { return b.Header.Height }

// WithVotes returns a shallow copy of b with Header.Votes replaced by
// votes, used by Backend.commit to attach the quorum certificate without
// mutating the block the core itself may still be referencing.
func (b *Block) WithVotes(votes Votes) *Block {
	h := b.Header.Copy()
	h.Votes = votes
	return &Block{Header: h, Transactions: b.Transactions}
}

// Encode returns the canonical encoding of the full block (header + txs),
// used for ledger storage and for Block gossip frames (spec.md §6).
func (b *Block) Encode() []byte {
	enc := newEncoder()
	enc.writeBytes(b.Header.Encode())
	enc.writeUint64(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		enc.writeBytes(tx.Encode())
	}
	return enc.bytes()
}

// DecodeBlock parses the encoding produced by Block.Encode.
func DecodeBlock(data []byte) (*Block, error) {
	dec := newDecoder(data)
	headerBytes := dec.readBytes()
	if dec.err() != nil {
		return nil, dec.err()
	}
	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	n := dec.readUint64()
	txs := make([]*Transaction, 0, n)
	for i := uint64(0); i < n; i++ {
		txBytes := dec.readBytes()
		if dec.err() != nil {
			return nil, dec.err()
		}
		tx, err := DecodeTransaction(txBytes)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := dec.err(); err != nil {
		return nil, err
	}
	return &Block{Header: header, Transactions: txs}, nil
}
