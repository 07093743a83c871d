// If you are AI: This file defines the Conn abstraction and the per-consumer
// state: one attached peer with its ring buffer and header-delivery progress.

package stream

import (
	"net"
	"time"

	"pnrelay/internal/core/ring"
)

// Conn is the send side of an attached peer. *net.TCPConn satisfies it, as
// does the WebSocket adapter in svc/wsstream. SetWriteDeadline is the
// non-blocking-send mechanism: drains use a short deadline and treat
// deadline expiry as "would block".
type Conn interface {
	Write(p []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

// Consumer is one attached stream consumer. Bytes broadcast while the
// consumer's socket is slow accumulate in its ring; the oldest are lost
// first. The stream header is delivered in full before any data bytes.
// Lock expectations: owned by the relay goroutine of its stream.
type Consumer struct {
	id          uint64
	conn        Conn
	addr        string
	buf         *ring.Buffer
	headerSent  bool
	headerOff   int // Bytes of the header delivered so far
	connectedAt time.Time
	seenDropped uint64 // Ring overflow already accounted to set stats
}

// Addr returns the peer address recorded at attach time.
func (c *Consumer) Addr() string {
	return c.addr
}

// HeaderSent reports whether the full stream header has been delivered.
func (c *Consumer) HeaderSent() bool {
	return c.headerSent
}

// Delivered returns the bytes of stream data delivered to the socket.
func (c *Consumer) Delivered() uint64 {
	return c.buf.Delivered()
}

// Overflows returns the bytes this consumer lost to ring overflow.
func (c *Consumer) Overflows() uint64 {
	return c.buf.Overflows()
}
