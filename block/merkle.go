package block

import "github.com/corvidium/bft/crypto"

// MerkleRoot builds the balanced Merkle tree whose leaves are transaction
// hashes in block order and returns its root (spec.md §3, §8).
//
//   - an empty list hashes to the zero hash,
//   - a single transaction's root is its own hash,
//   - the tree is order-sensitive: permuting txs changes the root.
func MerkleRoot(txs []*Transaction) crypto.Hash {
	if len(txs) == 0 {
		return crypto.Hash{}
	}
	level := make([]crypto.Hash, len(txs))
	for i, tx := range txs {
		level[i] = tx.Hash()
	}
	return merkleReduce(level)
}

func merkleReduce(level []crypto.Hash) crypto.Hash {
	for len(level) > 1 {
		next := make([]crypto.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, crypto.Keccak256(level[i].Bytes(), level[i+1].Bytes()))
			} else {
				// odd node out: paired with itself, so its parent is the
				// hash of the node concatenated with itself.
				next = append(next, crypto.Keccak256(level[i].Bytes(), level[i].Bytes()))
			}
		}
		level = next
	}
	return level[0]
}
