package ledger

import (
	"math/big"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

// newTestLedger builds a Ledger over an in-memory LevelDB storage so
// tests never touch disk.
func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	cache, err := lru.New[crypto.Hash, *block.Header](headerCacheSize)
	require.NoError(t, err)
	l := &Ledger{db: db, headerCache: cache}
	t.Cleanup(func() { l.Close() })
	return l
}

func sampleBlockAt(height uint64, prevHash crypto.Hash) *block.Block {
	header := &block.Header{
		PrevHash:   prevHash,
		Difficulty: big.NewInt(1),
		Height:     height,
		Time:       height,
	}
	tx := &block.Transaction{
		Nonce:     height,
		GasPrice:  big.NewInt(1),
		GasLimit:  21000,
		Recipient: crypto.RandomAddress(),
		Amount:    big.NewInt(1),
	}
	return block.New(header, []*block.Transaction{tx})
}

func TestLedgerPutAndGetBlock(t *testing.T) {
	l := newTestLedger(t)
	blk := sampleBlockAt(1, crypto.Hash{})
	require.NoError(t, l.PutBlock(blk))

	header, err := l.HeaderByHash(blk.Hash())
	require.NoError(t, err)
	require.Equal(t, blk.Header.Height, header.Height)

	hash, err := l.HashByHeight(1)
	require.NoError(t, err)
	require.Equal(t, blk.Hash(), hash)

	byHeight, err := l.HeaderByHeight(1)
	require.NoError(t, err)
	require.Equal(t, blk.Hash(), byHeight.Hash())

	tx, err := l.TransactionByHash(blk.Transactions[0].Hash())
	require.NoError(t, err)
	require.Equal(t, blk.Transactions[0].Nonce, tx.Nonce)
}

func TestLedgerMissingReturnsErrNotFound(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.HeaderByHash(crypto.Keccak256([]byte("missing")))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = l.HashByHeight(99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerHeaderCacheHit(t *testing.T) {
	l := newTestLedger(t)
	blk := sampleBlockAt(1, crypto.Hash{})
	require.NoError(t, l.PutBlock(blk))

	_, ok := l.headerCache.Get(blk.Hash())
	require.True(t, ok, "header should be cached on put")
}

func TestLedgerValidatorsAtHeight(t *testing.T) {
	l := newTestLedger(t)
	addrs := []crypto.Address{crypto.RandomAddress(), crypto.RandomAddress(), crypto.RandomAddress()}
	require.NoError(t, l.PutValidators(10, addrs))

	got, err := l.ValidatorsAtHeight(10)
	require.NoError(t, err)
	require.Equal(t, addrs, got)

	_, err = l.ValidatorsAtHeight(11)
	require.ErrorIs(t, err, ErrNotFound)
}
