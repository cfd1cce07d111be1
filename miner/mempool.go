package miner

import (
	"errors"
	"sync"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

const maxPoolSize = 10_000

// ErrPoolFull is returned when the pool is already at maxPoolSize.
var ErrPoolFull = errors.New("miner: transaction pool full")

// Mempool is a thread-safe pending-transaction pool, generalized from the
// teacher's Mempool to this module's Transaction type and signature
// scheme (spec.md §3's "opaque-to-consensus" transactions).
type Mempool struct {
	mu  sync.RWMutex
	txs map[crypto.Hash]*block.Transaction
	ord []crypto.Hash // insertion order, for deterministic block assembly
}

// NewMempool creates an empty Mempool.
func NewMempool() *Mempool {
	return &Mempool{txs: make(map[crypto.Hash]*block.Transaction)}
}

// Add validates tx's signature and inserts it.
func (m *Mempool) Add(tx *block.Transaction) error {
	if _, err := crypto.Recover(tx.SigningHash(), tx.Signature); err != nil {
		return err
	}
	hash := tx.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= maxPoolSize {
		return ErrPoolFull
	}
	if _, exists := m.txs[hash]; exists {
		return nil
	}
	m.txs[hash] = tx
	m.ord = append(m.ord, hash)
	return nil
}

// Pending returns up to n pending transactions in insertion order.
func (m *Mempool) Pending(n int) []*block.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*block.Transaction, 0, n)
	for _, hash := range m.ord {
		tx, ok := m.txs[hash]
		if !ok {
			continue
		}
		result = append(result, tx)
		if len(result) >= n {
			break
		}
	}
	return result
}

// Remove deletes the given transactions, called after their block commits.
func (m *Mempool) Remove(txs []*block.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[crypto.Hash]bool, len(txs))
	for _, tx := range txs {
		hash := tx.Hash()
		delete(m.txs, hash)
		removed[hash] = true
	}
	filtered := m.ord[:0]
	for _, hash := range m.ord {
		if !removed[hash] {
			filtered = append(filtered, hash)
		}
	}
	m.ord = filtered
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
