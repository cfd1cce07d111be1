package bft

import (
	"github.com/corvidium/bft/block"
	"github.com/corvidium/bft/crypto"
)

// checkMessage classifies view against the core's current view, per
// spec.md §7: negative means old (drop), positive means future (the
// caller backlogs it), zero means it belongs to the round in progress.
func (c *Core) checkMessage(view View) error {
	cmp := view.Cmp(c.current.View())
	switch {
	case cmp < 0:
		return ErrOldMessage
	case cmp > 0:
		if view.Height == c.current.View().Height {
			return ErrFutureRoundMessage
		}
		return ErrFutureMessage
	default:
		return nil
	}
}

// messageView extracts the view a buffered message concerns, without
// otherwise validating it.
func messageView(msg *GossipMessage) (View, error) {
	if msg.Code == MsgPrePrepare {
		pp, err := msg.PrePrepare()
		if err != nil {
			return View{}, err
		}
		return pp.View, nil
	}
	s, err := msg.Subject()
	if err != nil {
		return View{}, err
	}
	return s.View, nil
}

// handleMessage authenticates and dispatches a single inbound message.
// Called only from the core's own event loop.
func (c *Core) handleMessage(msg *GossipMessage) {
	if err := msg.Authenticate(c.current.Validators()); err != nil {
		c.logger.Debugf("drop unauthenticated message: %s", err)
		return
	}
	switch msg.Code {
	case MsgPrePrepare:
		c.handlePrePrepare(msg)
	case MsgPrepare:
		c.handlePrepare(msg)
	case MsgCommit:
		c.handleCommit(msg)
	case MsgRoundChange:
		c.handleRoundChange(msg)
	default:
		c.logger.Debugf("drop message with unknown code %d", msg.Code)
	}
}

// drainBacklog re-dispatches every buffered message whose view has
// become current, called after every processed message and on every
// backlogScanInterval tick (spec.md §4.5).
func (c *Core) drainBacklog() {
	ready := c.backlog.PopReady(func(msg *GossipMessage) bool {
		view, err := messageView(msg)
		if err != nil {
			return true // drop malformed entries rather than buffer forever
		}
		return c.checkMessage(view) == nil
	})
	for _, msg := range ready {
		c.handleMessage(msg)
	}
}

func (c *Core) handlePrePrepare(msg *GossipMessage) {
	pp, err := msg.PrePrepare()
	if err != nil {
		c.logger.Debugf("drop malformed preprepare: %s", err)
		return
	}

	switch err := c.checkMessage(pp.View); err {
	case ErrFutureMessage, ErrFutureRoundMessage:
		c.backlog.Push(pp.View, msg)
		return
	case ErrOldMessage:
		return
	}

	if msg.Address != c.current.Validators().GetProposer() {
		c.logger.Debugf("drop preprepare: %s", ErrNotFromProposer)
		return
	}
	if c.State() != StateAcceptRequest {
		return
	}
	if c.backend.HasProposal(pp.View.Height, pp.Proposal.Block.Hash()) {
		return
	}

	if err := c.backend.Verify(pp.Proposal); err != nil {
		if IsFutureBlock(err) {
			c.backlog.Push(pp.View, msg)
			return
		}
		c.logger.Warnf("reject proposal at height %d: %s", pp.View.Height, err)
		return
	}

	if hash, locked := c.current.GetLockedHash(); locked && hash != pp.Proposal.Block.Hash() {
		c.logger.Warnf("proposer %s re-proposed a different block than our lock", msg.Address)
		return
	}

	c.acceptPrePrepare(&pp)
	c.setState(StatePreprepared)
	c.sendPrepare()
}

// acceptPrePrepare records pp as the round's accepted proposal.
func (c *Core) acceptPrePrepare(pp *PrePrepare) {
	c.current.SetPrePrepare(pp)
}

func (c *Core) sendPrepare() {
	subject, ok := c.current.Subject()
	if !ok {
		return
	}
	msg := &GossipMessage{Code: MsgPrepare, CreateTime: nowMillis(), Msg: subject.encode()}
	if err := msg.Sign(c.privateKey); err != nil {
		c.logger.Errorf("sign prepare: %s", err)
		return
	}
	c.broadcast(msg)
	c.current.Prepares().Add(msg)
	c.checkPrepared()
}

func (c *Core) handlePrepare(msg *GossipMessage) {
	subject, err := msg.Subject()
	if err != nil {
		c.logger.Debugf("drop malformed prepare: %s", err)
		return
	}
	switch err := c.checkMessage(subject.View); err {
	case ErrFutureMessage, ErrFutureRoundMessage:
		c.backlog.Push(subject.View, msg)
		return
	case ErrOldMessage:
		return
	}
	if c.current.PrePrepare() == nil {
		c.backlog.Push(subject.View, msg)
		return
	}
	if current, ok := c.current.Subject(); !ok || current.Digest != subject.Digest {
		c.logger.Debugf("drop prepare: %s", ErrInconsistentSubject)
		return
	}
	if !c.current.Prepares().Add(msg) {
		return
	}
	c.checkPrepared()
}

// checkPrepared moves AcceptRequest/Preprepared to Prepared once a
// quorum of PREPARE-or-COMMIT senders agree on the current subject
// (spec.md §5's "prepared certificate").
func (c *Core) checkPrepared() {
	if c.State().Cmp(StatePrepared) >= 0 {
		return
	}
	if c.current.PrepareOrCommitSize() < c.current.Validators().QuorumSize() {
		return
	}
	c.setState(StatePrepared)
	c.current.LockHash()
	c.sendCommit()
}

func (c *Core) sendCommit() {
	subject, ok := c.current.Subject()
	if !ok {
		return
	}
	msg := &GossipMessage{Code: MsgCommit, CreateTime: nowMillis(), Msg: subject.encode()}
	if err := msg.Sign(c.privateKey); err != nil {
		c.logger.Errorf("sign commit: %s", err)
		return
	}
	if err := msg.SignCommitSeal(c.privateKey, subject.Digest); err != nil {
		c.logger.Errorf("sign commit seal: %s", err)
		return
	}
	c.broadcast(msg)
	c.current.Commits().Add(msg)
	c.checkCommitted()
}

func (c *Core) handleCommit(msg *GossipMessage) {
	subject, err := msg.Subject()
	if err != nil {
		c.logger.Debugf("drop malformed commit: %s", err)
		return
	}
	switch err := c.checkMessage(subject.View); err {
	case ErrFutureMessage, ErrFutureRoundMessage:
		c.backlog.Push(subject.View, msg)
		return
	case ErrOldMessage:
		return
	}
	if c.current.PrePrepare() == nil {
		c.backlog.Push(subject.View, msg)
		return
	}
	if current, ok := c.current.Subject(); !ok || current.Digest != subject.Digest {
		c.logger.Debugf("drop commit: %s", ErrInconsistentSubject)
		return
	}
	if err := msg.VerifyCommitSeal(subject.Digest); err != nil {
		c.logger.Warnf("drop commit: invalid commit seal: %s", err)
		return
	}
	if !c.current.Commits().Add(msg) {
		return
	}
	c.checkCommitted()
}

// checkCommitted finalises the height once a quorum of COMMIT messages
// has been gathered (spec.md §5).
func (c *Core) checkCommitted() {
	if c.State().Cmp(StateCommitted) >= 0 {
		return
	}
	if c.current.Commits().Len() < c.current.Validators().QuorumSize() {
		return
	}
	c.setState(StateCommitted)
	c.commit()
}

func (c *Core) commit() {
	pp := c.current.PrePrepare()
	if pp == nil {
		c.logger.Errorf("commit called with no preprepare")
		return
	}
	votes := make(block.Votes, 0, c.current.Commits().Len())
	for _, m := range c.current.Commits().Values() {
		votes = append(votes, block.Seal{Address: m.Address, Signature: m.CommitSeal})
	}
	if err := c.backend.Commit(pp.Proposal, votes); err != nil {
		c.logger.Errorf("commit height %d: %s", pp.View.Height, err)
		return
	}
	c.startNewRound(0, false)
}

// sendRoundChange broadcasts a ROUND-CHANGE to round, rate-limited so a
// misbehaving timer or repeated catch-up trigger cannot flood the
// network (spec.md §5). The subject digest is always zero (spec.md
// §4.6(e): "ROUND-CHANGE(subject=(view', digest=0))"); the lock itself
// is carried forward in the round state, not announced on the wire.
func (c *Core) sendRoundChange(round uint64) {
	if !c.changeLimiter.Allow() {
		return
	}
	view := View{Height: c.current.View().Height, Round: round}
	subject := Subject{View: view, Digest: crypto.Hash{}}
	msg := &GossipMessage{Code: MsgRoundChange, CreateTime: nowMillis(), Msg: subject.encode()}
	if err := msg.Sign(c.privateKey); err != nil {
		c.logger.Errorf("sign round change: %s", err)
		return
	}
	c.broadcast(msg)
	c.roundChangeSet.Add(round, msg)
	c.evaluateRoundChanges(round)
}

func (c *Core) handleRoundChange(msg *GossipMessage) {
	subject, err := msg.Subject()
	if err != nil {
		c.logger.Debugf("drop malformed round change: %s", err)
		return
	}
	if subject.View.Height < c.current.View().Height {
		return
	}
	if subject.View.Height > c.current.View().Height {
		c.backlog.Push(subject.View, msg)
		return
	}
	if subject.View.Round <= c.current.View().Round {
		c.roundChangeSet.Add(subject.View.Round, msg)
		return
	}
	c.roundChangeSet.Add(subject.View.Round, msg)

	// f+1 agreement on a higher round is proof at least one honest
	// validator has already moved on: catch up without waiting for our
	// own timeout (spec.md §5).
	if c.roundChangeSet.Size(subject.View.Round) >= c.current.Validators().F()+1 {
		c.sendRoundChange(subject.View.Round)
	}
	c.evaluateRoundChanges(subject.View.Round)
}

// evaluateRoundChanges moves the core to round once a full quorum of
// ROUND-CHANGE messages agree on it.
func (c *Core) evaluateRoundChanges(round uint64) {
	if round <= c.current.View().Round {
		return
	}
	if c.roundChangeSet.Size(round) < c.current.Validators().QuorumSize() {
		return
	}
	c.startNewRound(round, true)
}

// handleTimeout fires when the current round's timer expires with no
// commit reached (spec.md §4.6(f)). If a peer has already committed this
// height (our own NEW-HEIGHT transition just hasn't arrived yet), the
// timer is simply stopped rather than starting a pointless round change;
// otherwise it advances to at least one round beyond any round already
// observed in the round-change set.
func (c *Core) handleTimeout() {
	lastBlock, _ := c.backend.LastProposal()
	if lastBlock.Number() >= c.current.View().Height {
		c.timer.stop()
		return
	}
	c.sendNextRoundChange()
}

// sendNextRoundChange implements spec.md §4.6's send_next_round_change:
// r := max(max_round_in_round_change_set, current.round+1).
func (c *Core) sendNextRoundChange() {
	next := c.current.View().Round + 1
	if max, ok := c.roundChangeSet.MaxRound(1); ok && max > next {
		next = max
	}
	c.sendRoundChange(next)
}
