// Package ledger is the durable, append-only block store: header and
// transaction column families, a height-to-hash index, and bounded LRU
// caches in front of LevelDB (spec.md §6).
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

// ErrNotFound is returned when a requested header, block, or height index
// entry does not exist.
var ErrNotFound = errors.New("ledger: not found")

// Column family prefixes, grounded on spec.md §6's naming
// ("core.headers", "core.transaction", "core.block_hashes_by_height",
// "core.validators"): goleveldb has no native column families, so each
// is a distinct key prefix within one database.
var (
	prefixHeader       = []byte("core.headers/")
	prefixTransaction  = []byte("core.transaction/")
	prefixHeightToHash = []byte("core.block_hashes_by_height/")
	prefixValidators   = []byte("core.validators/")
	prefixBlockTxs     = []byte("core.block_transactions/")
)

const headerCacheSize = 1024

// Ledger is the node's on-disk chain storage.
type Ledger struct {
	mu sync.RWMutex
	db *leveldb.DB

	headerCache *lru.Cache[crypto.Hash, *block.Header]
}

// Open opens (or creates) the LevelDB database at path.
func Open(path string) (*Ledger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", path, err)
	}
	cache, err := lru.New[crypto.Hash, *block.Header](headerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: header cache: %w", err)
	}
	return &Ledger{db: db, headerCache: cache}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeightToHash)+8)
	copy(key, prefixHeightToHash)
	binary.BigEndian.PutUint64(key[len(prefixHeightToHash):], height)
	return key
}

func headerKey(hash crypto.Hash) []byte {
	return append(append([]byte(nil), prefixHeader...), hash.Bytes()...)
}

func txKey(hash crypto.Hash) []byte {
	return append(append([]byte(nil), prefixTransaction...), hash.Bytes()...)
}

func blockTxsKey(height uint64) []byte {
	key := make([]byte, len(prefixBlockTxs)+8)
	copy(key, prefixBlockTxs)
	binary.BigEndian.PutUint64(key[len(prefixBlockTxs):], height)
	return key
}

// PutBlock writes blk's header, every transaction in it, and its
// height-index entry as a single atomic batch (spec.md §6).
func (l *Ledger) PutBlock(blk *block.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hash := blk.Hash()
	batch := new(leveldb.Batch)
	batch.Put(headerKey(hash), blk.Header.Encode())
	batch.Put(heightKey(blk.Number()), hash.Bytes())
	txHashes := make([]byte, 0, len(blk.Transactions)*crypto.HashLength)
	for _, tx := range blk.Transactions {
		batch.Put(txKey(tx.Hash()), tx.Encode())
		txHashes = append(txHashes, tx.Hash().Bytes()...)
	}
	batch.Put(blockTxsKey(blk.Number()), txHashes)
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("ledger: put block %d: %w", blk.Number(), err)
	}
	l.headerCache.Add(hash, blk.Header)
	return nil
}

// HeaderByHash returns the header with the given hash.
func (l *Ledger) HeaderByHash(hash crypto.Hash) (*block.Header, error) {
	if h, ok := l.headerCache.Get(hash); ok {
		return h, nil
	}
	l.mu.RLock()
	data, err := l.db.Get(headerKey(hash), nil)
	l.mu.RUnlock()
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: header %s: %w", hash, err)
	}
	h, err := block.DecodeHeader(data)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode header %s: %w", hash, err)
	}
	l.headerCache.Add(hash, h)
	return h, nil
}

// HashByHeight returns the canonical block hash at height.
func (l *Ledger) HashByHeight(height uint64) (crypto.Hash, error) {
	l.mu.RLock()
	data, err := l.db.Get(heightKey(height), nil)
	l.mu.RUnlock()
	if errors.Is(err, leveldb.ErrNotFound) {
		return crypto.Hash{}, ErrNotFound
	}
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("ledger: height %d: %w", height, err)
	}
	return crypto.BytesToHash(data), nil
}

// HeaderByHeight resolves height to its hash, then to its header.
func (l *Ledger) HeaderByHeight(height uint64) (*block.Header, error) {
	hash, err := l.HashByHeight(height)
	if err != nil {
		return nil, err
	}
	return l.HeaderByHash(hash)
}

// TransactionByHash returns the transaction with the given hash.
func (l *Ledger) TransactionByHash(hash crypto.Hash) (*block.Transaction, error) {
	l.mu.RLock()
	data, err := l.db.Get(txKey(hash), nil)
	l.mu.RUnlock()
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: transaction %s: %w", hash, err)
	}
	return block.DecodeTransaction(data)
}

// TransactionsByHeight returns every transaction included in the block at
// height, in the order they were committed.
func (l *Ledger) TransactionsByHeight(height uint64) ([]*block.Transaction, error) {
	l.mu.RLock()
	data, err := l.db.Get(blockTxsKey(height), nil)
	l.mu.RUnlock()
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: block transactions at %d: %w", height, err)
	}
	txs := make([]*block.Transaction, 0, len(data)/crypto.HashLength)
	for i := 0; i+crypto.HashLength <= len(data); i += crypto.HashLength {
		tx, err := l.TransactionByHash(crypto.BytesToHash(data[i : i+crypto.HashLength]))
		if err != nil {
			return nil, fmt.Errorf("ledger: block transactions at %d: %w", height, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// BlockByHeight reassembles the full block (header + transactions) at height.
func (l *Ledger) BlockByHeight(height uint64) (*block.Block, error) {
	header, err := l.HeaderByHeight(height)
	if err != nil {
		return nil, err
	}
	txs, err := l.TransactionsByHeight(height)
	if err != nil {
		return nil, err
	}
	return &block.Block{Header: header, Transactions: txs}, nil
}

// PutValidators persists the validator address list recorded for height,
// keyed by height so historical sets remain queryable.
func (l *Ledger) PutValidators(height uint64, addrs []crypto.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := append(append([]byte(nil), prefixValidators...), heightKey(height)[len(prefixHeightToHash):]...)
	data := make([]byte, 0, len(addrs)*20)
	for _, a := range addrs {
		data = append(data, a.Bytes()...)
	}
	return l.db.Put(key, data, nil)
}

// ValidatorsAtHeight returns the validator address list recorded for
// exactly height, or ErrNotFound if none was ever recorded for it; sets
// recorded at lower heights are not consulted.
func (l *Ledger) ValidatorsAtHeight(height uint64) ([]crypto.Address, error) {
	l.mu.RLock()
	key := append(append([]byte(nil), prefixValidators...), heightKey(height)[len(prefixHeightToHash):]...)
	data, err := l.db.Get(key, nil)
	l.mu.RUnlock()
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: validators at %d: %w", height, err)
	}
	const addrLen = 20
	addrs := make([]crypto.Address, 0, len(data)/addrLen)
	for i := 0; i+addrLen <= len(data); i += addrLen {
		addrs = append(addrs, crypto.BytesToAddress(data[i:i+addrLen]))
	}
	return addrs, nil
}
