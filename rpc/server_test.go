package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/chain"
	"github.com/corvidium/bft/crypto"
	"github.com/corvidium/bft/ledger"
)

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	ledg, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledg.Close() })

	genesis := block.New(&block.Header{Difficulty: big.NewInt(1), Height: 1, Time: 1}, nil)
	c, err := chain.Open(ledg, genesis)
	require.NoError(t, err)
	return c
}

func startTestServer(t *testing.T, c *chain.Chain) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", c)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestServerGetBlocksEmpty(t *testing.T) {
	c := newTestChain(t)
	s := startTestServer(t, c)

	resp, err := http.Get(fmt.Sprintf("http://%s/blocks", s.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var blocks []block.Block
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&blocks))
	require.Len(t, blocks, 1) // genesis
}

func TestServerGetBlocksAfterCommit(t *testing.T) {
	c := newTestChain(t)
	child := block.New(&block.Header{
		PrevHash:   c.Head().Hash(),
		Difficulty: big.NewInt(1),
		Height:     2,
		Time:       2,
	}, nil)
	require.NoError(t, c.Commit(child))

	s := startTestServer(t, c)
	resp, err := http.Get(fmt.Sprintf("http://%s/blocks", s.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var blocks []block.Block
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&blocks))
	require.Len(t, blocks, 2)
}

func TestServerGetTransactions(t *testing.T) {
	c := newTestChain(t)
	tx := &block.Transaction{
		Nonce:     1,
		GasPrice:  big.NewInt(1),
		GasLimit:  21000,
		Recipient: crypto.RandomAddress(),
		Amount:    big.NewInt(5),
	}
	child := block.New(&block.Header{
		PrevHash:   c.Head().Hash(),
		Difficulty: big.NewInt(1),
		Height:     2,
		Time:       2,
	}, []*block.Transaction{tx})
	require.NoError(t, c.Commit(child))

	s := startTestServer(t, c)
	resp, err := http.Get(fmt.Sprintf("http://%s/transactions", s.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var txs []block.Transaction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&txs))
	require.Len(t, txs, 1)
	require.Equal(t, tx.Nonce, txs[0].Nonce)
}

func TestServerGetTransactionsEmpty(t *testing.T) {
	c := newTestChain(t)
	s := startTestServer(t, c)

	resp, err := http.Get(fmt.Sprintf("http://%s/transactions", s.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var txs []block.Transaction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&txs))
	require.Empty(t, txs)
}

func TestServerStopIsGraceful(t *testing.T) {
	c := newTestChain(t)
	s := NewServer("127.0.0.1:0", c)
	require.NoError(t, s.Start())

	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Stop did not return")
	}
}
