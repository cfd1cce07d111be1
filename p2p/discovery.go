package p2p

import (
	"context"
	"time"
)

// PeerSource discovers candidate peer addresses, generalized from
// original_source/bft/src/p2p/discover_service.rs's mDNS-based
// AddPeer/DropPeer push model to a pull-based channel. No mDNS
// implementation ships in this module's dependency set: StaticPeerSource
// is the only implementation, and cmd/node does not wire a PeerSource.
type PeerSource interface {
	// Discover emits newly found peer addresses until ctx is cancelled.
	Discover(ctx context.Context) <-chan string
}

// StaticPeerSource emits a fixed, config-supplied address list once, then
// re-emits it on every ttl interval, the discovery ttl knob spec.md §6
// calls "ttl (discovery ttl, milliseconds)".
type StaticPeerSource struct {
	Addrs []string
	TTL   time.Duration
}

// Discover implements PeerSource.
func (s StaticPeerSource) Discover(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		ttl := s.TTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		emit := func() bool {
			for _, a := range s.Addrs {
				select {
				case out <- a:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}
		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()
	return out
}
