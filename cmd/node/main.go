// Command node starts a corvidium validator node.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvidium/bft/backend"
	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/chain"
	bft "github.com/corvidium/bft/consensus/bft"
	"github.com/corvidium/bft/config"
	"github.com/corvidium/bft/crypto"
	"github.com/corvidium/bft/ledger"
	applog "github.com/corvidium/bft/log"
	"github.com/corvidium/bft/miner"
	"github.com/corvidium/bft/p2p"
	"github.com/corvidium/bft/rpc"
)

var (
	cfgPath string
	keyPath string
)

func main() {
	root := &cobra.Command{
		Use:   "node",
		Short: "corvidium BFT validator node",
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "start the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, keyPath)
		},
	}
	start.Flags().StringVarP(&cfgPath, "config", "c", "config.toml", "path to TOML config file")
	start.Flags().StringVar(&keyPath, "key", "validator.key", "path to the hex-encoded validator key file")

	genkey := &cobra.Command{
		Use:   "genkey",
		Short: "generate a new validator key and print its address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenKey(keyPath)
		},
	}
	genkey.Flags().StringVar(&keyPath, "key", "validator.key", "path to write the generated key to")

	root.AddCommand(start, genkey)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGenKey(path string) error {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(path, []byte(priv.Hex()), 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	fmt.Printf("Generated key. Validator address: %s\n", priv.Public().Address())
	fmt.Printf("Saved to: %s\n", path)
	return nil
}

func loadKey(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return crypto.PrivateKey{}, fmt.Errorf("read key %s: %w", path, err)
	}
	return crypto.PrivateKeyFromHex(string(data))
}

func run(cfgPath, keyPath string) error {
	logger := applog.New("node")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	priv, err := loadKey(keyPath)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	address := priv.Public().Address()

	validators, err := cfg.Genesis.ValidatorSet()
	if err != nil {
		return fmt.Errorf("genesis validators: %w", err)
	}
	genesis, err := cfg.Genesis.Block()
	if err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}

	ledg, err := ledger.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer ledg.Close()

	c, err := chain.Open(ledg, genesis)
	if err != nil {
		return fmt.Errorf("open chain: %w", err)
	}

	// No validator-set-change support (spec's Non-goal): the genesis set
	// is authoritative at every height.
	validatorsAt := func(uint64) *bft.ValidatorSet { return validators }

	identity := p2p.Handshake{Version: 1, PeerID: p2p.EncodePeerID(address), GenesisHash: genesis.Hash()}
	listenAddr := fmt.Sprintf("%s:%d", cfg.IP, cfg.Port)
	node := p2p.NewNode(identity, listenAddr)

	gossiper := &nodeGossiper{node: node}
	be, err := backend.New(c, gossiper, validatorsAt, uint64(cfg.BlockPeriod().Seconds()))
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	pool := miner.NewMempool()
	m := miner.New(address, c, pool, uint64(cfg.BlockPeriod().Seconds()), 8_000_000, func() uint64 { return uint64(time.Now().Unix()) })

	core := bft.NewCore(be, m, priv, cfg.RequestTimeout(), cfg.BlockPeriod(), logger)

	node.Handle(p2p.CodeConsensus, func(_ *p2p.Peer, f p2p.Frame) {
		if err := be.Deliver(f.Payload, core); err != nil {
			logger.Warnf("deliver consensus message: %v", err)
		}
	})
	node.Handle(p2p.CodeTransaction, func(_ *p2p.Peer, f p2p.Frame) {
		tx, err := block.DecodeTransaction(f.Payload)
		if err != nil {
			logger.Warnf("decode transaction: %v", err)
			return
		}
		if err := m.Submit(tx); err != nil {
			logger.Warnf("submit transaction: %v", err)
		}
	})

	c.Subscribe(func(ev chain.ChainEvent) {
		blk, err := c.BlockByHeight(ev.Header.Height)
		if err != nil {
			return
		}
		m.Prune(blk.Transactions)
	})

	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	logger.Infof("p2p listening on %s", listenAddr)

	rpcAddr := fmt.Sprintf("%s:%d", cfg.IP, cfg.Port+1)
	rpcServer := rpc.NewServer(rpcAddr, c)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	logger.Infof("rpc listening on %s", rpcAddr)

	core.Start()
	defer core.Stop()
	logger.Infof("consensus running (validator: %s)", address)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Infof("shutting down")
	return nil
}

// nodeGossiper adapts a p2p.Node into backend.Gossiper. Flooding to every
// connected peer (ignoring the explicit recipient list) is the right
// default here: a BFT validator set is expected to be fully connected, so
// the recipient list is redundant with "everyone we're peered with".
type nodeGossiper struct {
	node *p2p.Node
}

func (g *nodeGossiper) Broadcast(_ []crypto.Address, payload []byte) error {
	g.node.Broadcast(p2p.Frame{
		Header:  p2p.Header{Code: p2p.CodeConsensus, CreateTime: time.Now().UnixMilli()},
		Payload: payload,
	})
	return nil
}
