package bft

import (
	"container/heap"
	"sync"
	"time"

	"github.com/corvidium/bft/crypto"
)

// backlogCapacity bounds the number of messages buffered per sender.
// Decided in SPEC_FULL.md's Open Questions section: a sender that floods
// future messages can occupy at most this many slots, oldest-biased.
const backlogCapacity = 8

// backlogScanInterval is how often the core drains messages that have
// become processable (spec.md §4.5).
const backlogScanInterval = 100 * time.Millisecond

// backlogPriority orders messages so the earliest (view, phase) is always
// drained first: priority is the negation of height*1000+round*10+phase,
// so the max-heap below pops the numerically smallest (height, round,
// phase) first.
func backlogPriority(view View, code MessageCode) int64 {
	phase := int64(code) - 1
	return -(int64(view.Height)*1000 + int64(view.Round)*10 + phase)
}

type backlogEntry struct {
	msg      *GossipMessage
	priority int64
	index    int
}

// backlogQueue is a bounded max-heap on priority, ordered by
// backlogPriority so Pop always returns the earliest buffered message.
type backlogQueue []*backlogEntry

func (q backlogQueue) Len() int            { return len(q) }
func (q backlogQueue) Less(i, j int) bool  { return q[i].priority > q[j].priority }
func (q backlogQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *backlogQueue) Push(x interface{}) {
	e := x.(*backlogEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *backlogQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// minPriority returns the index of the lowest-priority (most "future",
// least urgent) entry currently queued.
func (q backlogQueue) minPriority() int {
	min := 0
	for i := 1; i < len(q); i++ {
		if q[i].priority < q[min].priority {
			min = i
		}
	}
	return min
}

// Backlog buffers messages that arrived for a future height or round,
// per-sender, so a fast or adversarial sender cannot starve out slower
// senders' early messages (spec.md §4.5).
type Backlog struct {
	mu     sync.Mutex
	queues map[crypto.Address]*backlogQueue
}

// NewBacklog creates an empty Backlog.
func NewBacklog() *Backlog {
	return &Backlog{queues: make(map[crypto.Address]*backlogQueue)}
}

// Push buffers msg under its sender. If that sender's queue is already at
// backlogCapacity, the new message is kept only if it is more urgent
// (earlier view/phase) than the queue's least urgent entry, which is then
// evicted; otherwise the new message is dropped. Returns true if msg was
// buffered.
func (b *Backlog) Push(view View, msg *GossipMessage) bool {
	priority := backlogPriority(view, msg.Code)

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[msg.Address]
	if !ok {
		q = &backlogQueue{}
		b.queues[msg.Address] = q
	}

	if q.Len() < backlogCapacity {
		heap.Push(q, &backlogEntry{msg: msg, priority: priority})
		return true
	}

	worst := q.minPriority()
	if priority <= (*q)[worst].priority {
		return false
	}
	heap.Remove(q, worst)
	heap.Push(q, &backlogEntry{msg: msg, priority: priority})
	return true
}

// PopReady drains and returns every buffered message from every sender
// whose view is now processable according to ready. Each sender's
// messages come out in urgency order; the order across senders is not
// defined.
func (b *Backlog) PopReady(ready func(*GossipMessage) bool) []*GossipMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*GossipMessage
	for addr, q := range b.queues {
		var keep backlogQueue
		for q.Len() > 0 {
			e := heap.Pop(q).(*backlogEntry)
			if ready(e.msg) {
				out = append(out, e.msg)
			} else {
				keep = append(keep, e)
			}
		}
		if len(keep) == 0 {
			delete(b.queues, addr)
			continue
		}
		for i, e := range keep {
			e.index = i
		}
		heap.Init(&keep)
		*q = keep
	}
	return out
}

// Len returns the total number of buffered messages across all senders.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.queues {
		n += q.Len()
	}
	return n
}
