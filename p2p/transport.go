package p2p

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/xaichain/xaid/wire"
)

// maxFrameSize bounds one length-prefixed frame read off the wire,
// generous enough for the largest legitimate envelope (a full block
// payload plus its envelope overhead).
const maxFrameSize = wire.MaxMessagePayload + 4096

// writeFrame writes a 4-byte big-endian length prefix followed by
// payload, the on-the-wire framing every envelope travels inside.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame, rejecting anything beyond
// maxFrameSize so a misbehaving peer can't force an unbounded
// allocation.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameSize {
		return nil, errors.Errorf("frame of %d bytes exceeds the %d byte limit", size, maxFrameSize)
	}
	payload := make([]byte, size)
	_, err := io.ReadFull(r, payload)
	return payload, err
}

// Conn is one established peer-to-peer connection: a raw net.Conn
// paired with the Peer bookkeeping and Router dispatch that verify and
// demultiplex whatever arrives on it.
type Conn struct {
	netConn net.Conn
	peer    *Peer
	router  *Router
}

// NewConn wraps an already-established net.Conn.
func NewConn(netConn net.Conn, peer *Peer, router *Router) *Conn {
	return &Conn{netConn: netConn, peer: peer, router: router}
}

// ReadLoop reads envelopes off the connection until it errors or closes,
// verifying each one through verify before dispatching its decoded
// message onto the matching Router route.
func (c *Conn) ReadLoop(verify func(env *wire.Envelope) (wire.Message, error)) error {
	for {
		frame, err := readFrame(c.netConn)
		if err != nil {
			return err
		}
		var env wire.Envelope
		if err := env.Decode(bytes.NewReader(frame)); err != nil {
			continue // malformed envelope: drop and keep reading
		}
		msg, err := verify(&env)
		if err != nil {
			continue // rejected by signature/replay/rate-limit/ban check
		}
		if err := c.router.Dispatch(msg); err != nil {
			continue // no route registered for this command
		}
	}
}

// WriteLoop drains the peer's send queue onto the connection until it
// is closed or the connection errors.
func (c *Conn) WriteLoop() error {
	for frame := range c.peer.SendQueue {
		if err := writeFrame(c.netConn, frame); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.netConn.Close() }

// Listener accepts inbound peer connections on a TCP listen address.
type Listener struct {
	net.Listener
}

// Listen binds addr (specification §6 Environment: "listen address").
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return &Listener{Listener: ln}, nil
}

// Dial opens an outbound connection to a peer's endpoint.
func Dial(endpoint string) (net.Conn, error) {
	conn, err := net.Dial("tcp", endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", endpoint)
	}
	return conn, nil
}
