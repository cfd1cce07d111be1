package miner

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

func signedTx(t *testing.T, priv crypto.PrivateKey, nonce uint64) *block.Transaction {
	t.Helper()
	tx := &block.Transaction{
		Nonce:     nonce,
		GasPrice:  big.NewInt(1),
		GasLimit:  21000,
		Recipient: crypto.RandomAddress(),
		Amount:    big.NewInt(1),
	}
	sig, err := crypto.Sign(priv, tx.SigningHash())
	require.NoError(t, err)
	tx.Signature = sig
	return tx
}

func TestMempoolAddAndPending(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	pool := NewMempool()
	tx1 := signedTx(t, priv, 1)
	tx2 := signedTx(t, priv, 2)
	require.NoError(t, pool.Add(tx1))
	require.NoError(t, pool.Add(tx2))
	require.Equal(t, 2, pool.Size())

	pending := pool.Pending(10)
	require.Len(t, pending, 2)
	require.Equal(t, tx1.Hash(), pending[0].Hash())
	require.Equal(t, tx2.Hash(), pending[1].Hash())
}

func TestMempoolRejectsUnsigned(t *testing.T) {
	pool := NewMempool()
	tx := &block.Transaction{Nonce: 1, GasPrice: big.NewInt(1), Amount: big.NewInt(1), Signature: []byte{1, 2, 3}}
	require.Error(t, pool.Add(tx))
	require.Equal(t, 0, pool.Size())
}

func TestMempoolAddIsIdempotent(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	pool := NewMempool()
	tx := signedTx(t, priv, 1)
	require.NoError(t, pool.Add(tx))
	require.NoError(t, pool.Add(tx))
	require.Equal(t, 1, pool.Size())
}

func TestMempoolRemove(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	pool := NewMempool()
	tx1 := signedTx(t, priv, 1)
	tx2 := signedTx(t, priv, 2)
	require.NoError(t, pool.Add(tx1))
	require.NoError(t, pool.Add(tx2))

	pool.Remove([]*block.Transaction{tx1})
	require.Equal(t, 1, pool.Size())
	pending := pool.Pending(10)
	require.Len(t, pending, 1)
	require.Equal(t, tx2.Hash(), pending[0].Hash())
}

func TestMempoolPendingRespectsLimit(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	pool := NewMempool()
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, pool.Add(signedTx(t, priv, i)))
	}
	require.Len(t, pool.Pending(3), 3)
}
