package p2p

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

const readDeadline = 30 * time.Second

// Peer is a connected remote validator node, generalized from
// tolelom-tolchain/network/Peer to this module's binary Frame instead of
// length-prefixed JSON.
type Peer struct {
	SessionID uuid.UUID // local-only, not transmitted; distinguishes reconnects in logs
	PeerID    string    // base58, set once the handshake completes
	Addr      string

	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

func newPeer(addr string, conn net.Conn) *Peer {
	return &Peer{SessionID: uuid.New(), Addr: addr, conn: conn}
}

// Send writes a length-prefixed Frame to the peer.
func (p *Peer) Send(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("p2p: peer %s closed", p.Addr)
	}
	_, err := p.conn.Write(f.Encode())
	return err
}

// Receive reads the next Frame, bounding the wait with readDeadline so a
// stalled peer cannot block a reader goroutine forever.
func (p *Peer) Receive() (Frame, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(readDeadline))
	var lenPrefix [4]byte
	if _, err := io.ReadFull(p.conn, lenPrefix[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return Frame{}, errFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(p.conn, body); err != nil {
		return Frame{}, err
	}
	return decodeBody(body)
}

// Close terminates the underlying connection, idempotently.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}

// Handler processes one inbound frame from peer.
type Handler func(peer *Peer, f Frame)

// Node listens for and manages peer connections, dispatching inbound
// frames by Code to registered handlers (generalized from
// tolelom-tolchain/network/Node).
type Node struct {
	identity   Handshake
	listenAddr string
	maxPeers   int

	mu       sync.RWMutex
	peers    map[string]*Peer // keyed by PeerID
	handlers map[Code]Handler

	listener net.Listener
	stopCh   chan struct{}
}

// DefaultMaxPeers bounds simultaneous inbound connections.
const DefaultMaxPeers = 50

// NewNode builds a Node that identifies itself with identity and will
// listen on listenAddr.
func NewNode(identity Handshake, listenAddr string) *Node {
	return &Node{
		identity:   identity,
		listenAddr: listenAddr,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		handlers:   make(map[Code]Handler),
		stopCh:     make(chan struct{}),
	}
}

// Handle registers h for frames carrying code.
func (n *Node) Handle(code Code, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[code] = h
}

// Start begins accepting inbound connections.
func (n *Node) Start() error {
	ln, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return fmt.Errorf("p2p: listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop closes the listener and every connected peer.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// Dial connects to addr, exchanges handshakes, and registers the peer on
// success.
func (n *Node) Dial(addr string) (*Peer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("p2p: dial %s: %w", addr, err)
	}
	peer := newPeer(addr, conn)
	if err := n.handshake(peer); err != nil {
		peer.Close()
		return nil, err
	}
	n.register(peer)
	go n.readLoop(peer)
	return peer, nil
}

// Broadcast sends f to every connected peer in turn, logging (not failing)
// on a per-peer send error so one failing peer does not stop delivery to
// the rest. Sends have no write deadline, so a peer whose write blocks
// delays the peers after it.
func (n *Node) Broadcast(f Frame) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(f); err != nil {
			log.Printf("p2p: broadcast to %s: %v", p.Addr, err)
		}
	}
}

// Peers returns the currently connected peer ids.
func (n *Node) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("p2p: accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		full := len(n.peers) >= n.maxPeers
		n.mu.RUnlock()
		if full {
			conn.Close()
			continue
		}
		peer := newPeer(conn.RemoteAddr().String(), conn)
		go func() {
			if err := n.handshake(peer); err != nil {
				log.Printf("p2p: handshake with %s rejected: %v", peer.Addr, err)
				peer.Close()
				return
			}
			n.register(peer)
			n.readLoop(peer)
		}()
	}
}

func (n *Node) handshake(peer *Peer) error {
	if err := peer.Send(Frame{Header: Header{Code: CodeHandshake}, Payload: n.identity.encode()}); err != nil {
		return fmt.Errorf("p2p: send handshake: %w", err)
	}
	f, err := peer.Receive()
	if err != nil {
		return fmt.Errorf("p2p: receive handshake: %w", err)
	}
	if f.Header.Code != CodeHandshake {
		return fmt.Errorf("p2p: expected handshake frame, got %s", f.Header.Code)
	}
	remote, err := decodeHandshake(f.Payload)
	if err != nil {
		return fmt.Errorf("p2p: decode handshake: %w", err)
	}
	if err := checkHandshake(n.identity, remote, n.isConnected); err != nil {
		return err
	}
	peer.PeerID = remote.PeerID
	return nil
}

func (n *Node) isConnected(peerID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.peers[peerID]
	return ok
}

func (n *Node) register(peer *Peer) {
	n.mu.Lock()
	n.peers[peer.PeerID] = peer
	n.mu.Unlock()
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("p2p: readLoop panic from %s: %v", peer.Addr, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.PeerID)
		n.mu.Unlock()
	}()
	for {
		f, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[f.Header.Code]
		n.mu.RUnlock()
		if ok {
			h(peer, f)
		}
	}
}
