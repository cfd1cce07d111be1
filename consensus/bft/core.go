package bft

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvidium/bft/crypto"
)

// State is the consensus core's position in the per-height state machine
// (spec.md §5): AcceptRequest -> Preprepared -> Prepared -> Committed,
// with a ROUND-CHANGE transition back to AcceptRequest at a higher round
// reachable from any state.
type State int

const (
	StateAcceptRequest State = iota
	StatePreprepared
	StatePrepared
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateAcceptRequest:
		return "AcceptRequest"
	case StatePreprepared:
		return "Preprepared"
	case StatePrepared:
		return "Prepared"
	case StateCommitted:
		return "Committed"
	default:
		return "Unknown"
	}
}

// Cmp gives the state's position in the happy-path order, used to reject
// messages for a state already passed within the same round.
func (s State) Cmp(o State) int {
	if s < o {
		return -1
	}
	if s > o {
		return 1
	}
	return 0
}

// Proposer supplies the block a proposing node should broadcast for a
// given view, implemented by package miner, kept out of Core so the
// consensus state machine never depends on the mempool or block
// assembly (spec.md §5, §6).
type Proposer interface {
	CreateProposal(view View) (Proposal, error)
}

// Core drives the PRE-PREPARE/PREPARE/COMMIT state machine and its
// ROUND-CHANGE liveness subprotocol for a single node (spec.md §5). One
// Core exists per running validator; it is not safe for concurrent use
// from outside its own event loop, matching the teacher's single-actor
// design: Start/Stop/SubmitMessage/NotifyFinalCommitted and the
// State/View accessors may be called from any goroutine; all other
// methods run only on the loop goroutine.
type Core struct {
	backend  Backend
	proposer Proposer

	privateKey crypto.PrivateKey
	address    crypto.Address

	requestTimeout time.Duration
	blockPeriod    time.Duration

	mu             sync.RWMutex
	state          State
	current        *RoundState
	roundChangeSet *RoundChangeSet
	backlog        *Backlog

	timer        *roundTimer
	changeLimiter *rate.Limiter

	events  chan *GossipMessage
	final   chan struct{}
	stopped chan struct{}
	once    sync.Once

	logger Logger
}

// Logger is the narrow logging surface Core needs, satisfied by
// package log's implementation (spec.md's ambient logging stack).
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NewCore builds a Core for address's validator key. requestTimeout is
// the base round timeout; it doubles per additional round (spec.md §5's
// exponential round-timeout backoff).
func NewCore(backend Backend, proposer Proposer, priv crypto.PrivateKey, requestTimeout, blockPeriod time.Duration, logger Logger) *Core {
	c := &Core{
		backend:        backend,
		proposer:       proposer,
		privateKey:     priv,
		address:        priv.Public().Address(),
		requestTimeout: requestTimeout,
		blockPeriod:    blockPeriod,
		backlog:        NewBacklog(),
		changeLimiter:  rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		events:         make(chan *GossipMessage, 256),
		final:          make(chan struct{}, 1),
		stopped:        make(chan struct{}),
		logger:         logger,
	}
	c.timer = newRoundTimer()
	return c
}

// SubmitMessage enqueues an inbound GossipMessage for processing on the
// core's own goroutine. Safe to call from any goroutine (the network
// layer).
func (c *Core) SubmitMessage(msg *GossipMessage) {
	select {
	case c.events <- msg:
	case <-c.stopped:
	}
}

// NotifyFinalCommitted wakes the core after the chain applies a block
// committed out of band (e.g. received via block sync rather than this
// core's own COMMIT quorum), matching spec.md §5's FINAL-COMMITTED event.
func (c *Core) NotifyFinalCommitted() {
	select {
	case c.final <- struct{}{}:
	default:
	}
}

// Start begins the core's event loop in the calling goroutine. It
// returns when Stop is called.
func (c *Core) Start() {
	c.startNewRound(0, false)
	c.loop()
}

// Stop terminates the event loop.
func (c *Core) Stop() {
	c.once.Do(func() { close(c.stopped) })
}

func (c *Core) loop() {
	scan := time.NewTicker(backlogScanInterval)
	defer scan.Stop()
	for {
		select {
		case <-c.stopped:
			c.timer.stop()
			return
		case <-c.final:
			c.startNewRound(0, false)
		case <-c.timer.c:
			c.handleTimeout()
		case <-scan.C:
			c.drainBacklog()
		case msg := <-c.events:
			c.handleMessage(msg)
			c.drainBacklog()
		}
	}
}

// State returns the core's current state.
func (c *Core) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// View returns the core's current view.
func (c *Core) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.View()
}

// startNewRound moves the core to (height, round), deriving the lock
// forward when staying at the same height (spec.md §5's "enter round"
// algorithm). roundChanged distinguishes a same-height round bump (lock
// preserved, round-change set pruned) from a fresh height (everything
// reset).
// startNewRound is only ever called from the core's own event loop
// goroutine; c.mu below protects the fields it mutates against
// concurrent reads from State()/View(), not against concurrent writers.
func (c *Core) startNewRound(round uint64, roundChanged bool) {
	lastBlock, _ := c.backend.LastProposal()
	height := lastBlock.Number() + 1

	var valSet *ValidatorSet
	var next *RoundState
	if roundChanged && c.current != nil && c.current.View().Height == height {
		valSet = c.current.Validators()
		next = c.current.Derive(round, valSet)
	} else {
		valSet = c.backend.Validators(height).Copy()
		next = NewRoundState(View{Height: height, Round: round}, valSet)
		c.roundChangeSet = NewRoundChangeSet(valSet)
	}
	if round > 0 {
		c.roundChangeSet.Clear(round)
	}

	c.mu.Lock()
	c.current = next
	c.state = StateAcceptRequest
	c.mu.Unlock()

	c.timer.reset(c.roundTimeout(round))

	proposerAddr, err := valSet.CalcProposer(lastBlock.Hash(), round)
	if err != nil {
		c.logger.Errorf("calc proposer: %s", err)
		return
	}
	if proposerAddr.Address != c.address {
		return
	}
	c.sendPrePrepare()
}

// roundTimeout doubles the base request timeout per round, capped to
// avoid integer overflow on a long-running partition (spec.md §5).
func (c *Core) roundTimeout(round uint64) time.Duration {
	if round > 16 {
		round = 16
	}
	return c.requestTimeout * time.Duration(uint64(1)<<round)
}

// sendPrePrepare broadcasts a PRE-PREPARE for the core's own proposal:
// the locked block if one exists, the pending request if one was queued,
// or a freshly assembled one (spec.md §5: "a node that is locked MUST
// re-propose its locked block").
func (c *Core) sendPrePrepare() {
	view := c.current.View()

	var proposal Proposal
	if hash, locked := c.current.GetLockedHash(); locked {
		pending := c.current.PendingRequest()
		if pending == nil || pending.Block.Hash() != hash {
			c.logger.Errorf("locked on %s but no matching pending request", hash)
			return
		}
		proposal = Proposal{View: view, Block: pending.Block}
	} else if pending := c.current.PendingRequest(); pending != nil {
		proposal = Proposal{View: view, Block: pending.Block}
	} else {
		p, err := c.proposer.CreateProposal(view)
		if err != nil {
			c.logger.Warnf("create proposal: %s", err)
			return
		}
		proposal = p
	}

	c.current.SetPendingRequest(&proposal)

	pp := PrePrepare{View: view, Proposal: proposal}
	msg := &GossipMessage{Code: MsgPrePrepare, CreateTime: nowMillis(), Msg: pp.encode()}
	if err := msg.Sign(c.privateKey); err != nil {
		c.logger.Errorf("sign preprepare: %s", err)
		return
	}
	c.broadcast(msg)
	c.acceptPrePrepare(&pp)
	c.setState(StatePreprepared)
	c.sendPrepare()
}

func (c *Core) broadcast(msg *GossipMessage) {
	if err := c.backend.Broadcast(c.current.Validators(), msg); err != nil {
		c.logger.Warnf("broadcast %s: %s", msg.Code, err)
	}
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// setState updates c.state under c.mu so State() always observes a
// consistent value.
func (c *Core) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
