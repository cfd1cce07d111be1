package miner

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/corvidium/bft/chain"
)

const maxConcurrentSeals = 16

// Engine drives a candidate block through to commit, blocking a caller
// until its height lands in the chain or ctx is cancelled. It never runs
// this wait on the core's own actor goroutine: consensus/bft/core.go's
// single event loop must stay free to keep processing gossip, so every
// Seal call is scheduled onto Engine's own errgroup-bounded worker pool
// (grounded on original_source/bft/src/minner/mod.rs's seal/abort split,
// adapted here from a push-based abort channel to a pull-based wait since
// this module's CreateProposal is synchronous and non-blocking).
type Engine struct {
	chain *chain.Chain
	group *errgroup.Group

	mu      sync.Mutex
	waiters map[uint64][]chan struct{}
}

// NewEngine builds an Engine bounded to maxConcurrentSeals simultaneous
// waits, subscribing to chain commits to wake them.
func NewEngine(c *chain.Chain) *Engine {
	group := new(errgroup.Group)
	group.SetLimit(maxConcurrentSeals)
	e := &Engine{chain: c, group: group, waiters: make(map[uint64][]chan struct{})}
	c.Subscribe(e.onCommit)
	return e
}

func (e *Engine) onCommit(ev chain.ChainEvent) {
	e.mu.Lock()
	woken := e.waiters[ev.Header.Height]
	delete(e.waiters, ev.Header.Height)
	e.mu.Unlock()
	for _, ch := range woken {
		close(ch)
	}
}

// Seal blocks until height is committed or ctx is cancelled, running the
// wait on the engine's worker pool rather than the caller's own
// goroutine. Returns ctx.Err() on cancellation, nil on commit.
func (e *Engine) Seal(ctx context.Context, height uint64) error {
	if h := e.chain.Head(); h != nil && h.Height >= height {
		return nil
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.waiters[height] = append(e.waiters[height], done)
	e.mu.Unlock()

	result := make(chan error, 1)
	e.group.Go(func() error {
		select {
		case <-done:
			result <- nil
		case <-ctx.Done():
			e.forget(height, done)
			result <- fmt.Errorf("miner: seal height %d: %w", height, ctx.Err())
		}
		return nil
	})

	return <-result
}

// forget removes done from height's waiter list after a cancelled Seal, so
// a long-abandoned wait does not keep growing the waiters map.
func (e *Engine) forget(height uint64, done chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.waiters[height]
	for i, ch := range list {
		if ch == done {
			e.waiters[height] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(e.waiters[height]) == 0 {
		delete(e.waiters, height)
	}
}
