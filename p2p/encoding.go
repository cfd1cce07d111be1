package p2p

import (
	"bytes"
	"encoding/binary"
)

// encoder/decoder is the same minimal canonical framing duplicated in
// consensus/bft/encoding.go and block/encoding.go: a handshake only ever
// needs a uint64 and two byte strings, so it gets its own tiny copy
// rather than an exported cross-package dependency.

type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) writeBytes(b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	e.buf.Write(l[:])
	e.buf.Write(b)
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

type decoder struct {
	r        *bytes.Reader
	firstErr error
}

func newDecoder(b []byte) *decoder { return &decoder{r: bytes.NewReader(b)} }

func (d *decoder) fail(err error) {
	if d.firstErr == nil {
		d.firstErr = err
	}
}

func (d *decoder) err() error { return d.firstErr }

func (d *decoder) readUint64() uint64 {
	var b [8]byte
	if _, err := d.r.Read(b[:]); err != nil {
		d.fail(err)
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

func (d *decoder) readBytes() []byte {
	var l [4]byte
	if _, err := d.r.Read(l[:]); err != nil {
		d.fail(err)
		return nil
	}
	n := binary.BigEndian.Uint32(l[:])
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := d.r.Read(b); err != nil {
		d.fail(err)
		return nil
	}
	return b
}
