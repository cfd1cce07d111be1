package rpc

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/chain"
)

// Handler holds the read-only dependency the API serves from.
type Handler struct {
	chain *chain.Chain
}

// getBlocks implements GET /blocks: spec.md §6's "JSON array of all
// blocks", walked from height 1 through the current chain head.
func (h *Handler) getBlocks(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	head := h.chain.Head()
	blocks := make([]*block.Block, 0, head.Height)
	for height := uint64(1); height <= head.Height; height++ {
		blk, err := h.chain.BlockByHeight(height)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		blocks = append(blocks, blk)
	}
	writeJSON(w, http.StatusOK, blocks)
}

// getTransactions implements GET /transactions: spec.md §6's "JSON array
// of all known transactions", flattened across every committed block.
func (h *Handler) getTransactions(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	head := h.chain.Head()
	var txs []*block.Transaction
	for height := uint64(1); height <= head.Height; height++ {
		blockTxs, err := h.chain.BlockByHeight(height)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		txs = append(txs, blockTxs.Transactions...)
	}
	if txs == nil {
		txs = []*block.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}
