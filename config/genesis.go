package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/corvidium/bft/block"
	bft "github.com/corvidium/bft/consensus/bft"
	"github.com/corvidium/bft/crypto"
)

func parseHash(s string) (crypto.Hash, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("config: invalid hash %q: %w", s, err)
	}
	return crypto.BytesToHash(b), nil
}

// ValidatorSet parses the genesis validator address list into a ValidatorSet.
func (g Genesis) ValidatorSet() (*bft.ValidatorSet, error) {
	addrs := make([]crypto.Address, 0, len(g.Validators))
	for _, s := range g.Validators {
		addr, err := crypto.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("config: genesis validator %q: %w", s, err)
		}
		addrs = append(addrs, addr)
	}
	return bft.NewValidatorSet(addrs), nil
}

// Block builds block #1 (spec.md's genesis, since the height-0 slot is
// never committed as a real block; the chain's Open persists this as its
// first entry) from the genesis table.
func (g Genesis) Block() (*block.Block, error) {
	proposer, err := crypto.ParseAddress(g.Proposer)
	if err != nil {
		return nil, fmt.Errorf("config: genesis proposer %q: %w", g.Proposer, err)
	}
	epoch, err := time.Parse(time.RFC3339, g.EpochTime)
	if err != nil {
		return nil, fmt.Errorf("config: genesis epoch_time: %w", err)
	}

	header := &block.Header{
		ProposerAddr: proposer,
		Difficulty:   big.NewInt(1),
		Height:       1,
		Time:         uint64(epoch.Unix()),
		GasUsed:      g.GasUsed,
		Extra:        []byte(g.Extra),
	}
	blk := block.New(header, nil)

	if g.BlockHash != "" {
		want, err := parseHash(g.BlockHash)
		if err != nil {
			return nil, err
		}
		if blk.Hash() != want {
			return nil, fmt.Errorf("config: genesis block_hash mismatch: computed %s, configured %s", blk.Hash(), want)
		}
	}
	return blk, nil
}
