// Package block defines the data model of spec.md §3: blocks, headers,
// transactions, quorum certificates and the Merkle tree over transactions.
package block

import (
	"math/big"

	"github.com/corvidium/bft/crypto"
)

// Transaction is an opaque-to-consensus unit of work: the core only ever
// hashes it into the block's Merkle root (spec.md §1, §3). Execution is
// explicitly out of scope.
type Transaction struct {
	Nonce     uint64
	GasPrice  *big.Int
	GasLimit  uint64
	Recipient crypto.Address
	Amount    *big.Int
	Payload   []byte
	Signature []byte
}

// Hash returns the transaction hash: the Keccak-256 digest of the
// canonical encoding including the signature (spec.md §3).
func (tx *Transaction) Hash() crypto.Hash {
	enc := newEncoder()
	enc.writeUint64(tx.Nonce)
	enc.writeBigInt(tx.GasPrice)
	enc.writeUint64(tx.GasLimit)
	enc.writeBytes(tx.Recipient.Bytes())
	enc.writeBigInt(tx.Amount)
	enc.writeBytes(tx.Payload)
	enc.writeBytes(tx.Signature)
	return crypto.Keccak256(enc.bytes())
}

// SigningHash is the digest a transaction's Signature is produced over: the
// canonical encoding with Signature omitted, so the signature cannot sign
// itself.
func (tx *Transaction) SigningHash() crypto.Hash {
	enc := newEncoder()
	enc.writeUint64(tx.Nonce)
	enc.writeBigInt(tx.GasPrice)
	enc.writeUint64(tx.GasLimit)
	enc.writeBytes(tx.Recipient.Bytes())
	enc.writeBigInt(tx.Amount)
	enc.writeBytes(tx.Payload)
	return crypto.Keccak256(enc.bytes())
}

// Encode returns the canonical, self-describing encoding used for both
// hashing and wire transmission.
func (tx *Transaction) Encode() []byte {
	enc := newEncoder()
	enc.writeUint64(tx.Nonce)
	enc.writeBigInt(tx.GasPrice)
	enc.writeUint64(tx.GasLimit)
	enc.writeBytes(tx.Recipient.Bytes())
	enc.writeBigInt(tx.Amount)
	enc.writeBytes(tx.Payload)
	enc.writeBytes(tx.Signature)
	return enc.bytes()
}

// DecodeTransaction parses the encoding produced by Transaction.Encode.
func DecodeTransaction(b []byte) (*Transaction, error) {
	dec := newDecoder(b)
	tx := &Transaction{}
	tx.Nonce = dec.readUint64()
	tx.GasPrice = dec.readBigInt()
	tx.GasLimit = dec.readUint64()
	tx.Recipient = crypto.BytesToAddress(dec.readBytes())
	tx.Amount = dec.readBigInt()
	tx.Payload = dec.readBytes()
	tx.Signature = dec.readBytes()
	if err := dec.err(); err != nil {
		return nil, err
	}
	return tx, nil
}
