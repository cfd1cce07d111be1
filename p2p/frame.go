// Package p2p is the gossip transport: length-prefixed TCP frames carrying
// handshakes, transactions, blocks, consensus messages, and sync requests
// (spec.md §6), grounded on tolelom-tolchain/network/{node,peer,sync}.go's
// Peer/Node shape, generalized from JSON framing to a canonical binary one.
package p2p

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Code labels the payload carried by a Frame.
type Code uint8

const (
	CodeHandshake Code = iota + 1
	CodeTransaction
	CodeBlock
	CodeConsensus
	CodeSync
)

func (c Code) String() string {
	switch c {
	case CodeHandshake:
		return "Handshake"
	case CodeTransaction:
		return "Transaction"
	case CodeBlock:
		return "Block"
	case CodeConsensus:
		return "Consensus"
	case CodeSync:
		return "Sync"
	default:
		return fmt.Sprintf("Code(%d)", c)
	}
}

// maxFrameSize bounds a single frame so a malicious or corrupt length
// prefix cannot force an unbounded allocation.
const maxFrameSize = 32 * 1024 * 1024

var errFrameTooLarge = errors.New("p2p: frame exceeds maximum size")

// Header precedes every frame's payload (spec.md §6).
type Header struct {
	Code       Code
	TTL        uint32
	CreateTime int64 // unix millis
}

// Frame is the unit written to and read from the wire: a 4-byte
// big-endian length prefix, followed by the canonical encoding of
// (Header, payload).
type Frame struct {
	Header  Header
	Payload []byte
}

// Encode returns the length-prefixed wire bytes for f.
func (f Frame) Encode() []byte {
	body := make([]byte, 0, 1+4+8+4+len(f.Payload))
	body = append(body, byte(f.Header.Code))
	var ttl [4]byte
	binary.BigEndian.PutUint32(ttl[:], f.Header.TTL)
	body = append(body, ttl[:]...)
	var ct [8]byte
	binary.BigEndian.PutUint64(ct[:], uint64(f.Header.CreateTime))
	body = append(body, ct[:]...)
	var plen [4]byte
	binary.BigEndian.PutUint32(plen[:], uint32(len(f.Payload)))
	body = append(body, plen[:]...)
	body = append(body, f.Payload...)

	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

// decodeBody parses the part of Encode's output after the 4-byte length
// prefix has already been stripped.
func decodeBody(body []byte) (Frame, error) {
	if len(body) < 1+4+8+4 {
		return Frame{}, fmt.Errorf("p2p: frame body too short (%d bytes)", len(body))
	}
	var f Frame
	f.Header.Code = Code(body[0])
	f.Header.TTL = binary.BigEndian.Uint32(body[1:5])
	f.Header.CreateTime = int64(binary.BigEndian.Uint64(body[5:13]))
	plen := binary.BigEndian.Uint32(body[13:17])
	rest := body[17:]
	if uint64(plen) != uint64(len(rest)) {
		return Frame{}, fmt.Errorf("p2p: frame payload length mismatch: header says %d, got %d", plen, len(rest))
	}
	f.Payload = rest
	return f, nil
}
