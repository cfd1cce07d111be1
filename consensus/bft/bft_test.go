package bft

import (
	"math/big"

	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

// sampleBlock builds a minimal, internally consistent candidate block at
// height on top of prevHash, used throughout this package's tests.
func sampleBlock(height uint64, prevHash crypto.Hash, proposer crypto.Address) *block.Block {
	header := &block.Header{
		PrevHash:     prevHash,
		ProposerAddr: proposer,
		Difficulty:   big.NewInt(1),
		Height:       height,
		GasLimit:     8_000_000,
		Time:         uint64(height),
	}
	return block.New(header, nil)
}
