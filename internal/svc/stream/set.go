// If you are AI: This file implements the consumer set of one stream:
// attach with a hard cap, broadcast into every ring, and the periodic drain
// that moves ring bytes to sockets with header-once delivery and eviction
// on fatal write errors.

package stream

import (
	"errors"
	"log"
	"net"
	"os"
	"sync/atomic"
	"time"

	"pnrelay/internal/core/ring"
	"pnrelay/internal/core/wire"
)

// ErrCapacityExceeded is returned by Attach when the set is full.
var ErrCapacityExceeded = errors.New("consumer set full")

const (
	// drainChunk is the most stream data sent to one consumer per drain pass.
	drainChunk = 8192

	// writeWait is the send deadline emulating a non-blocking socket write.
	// Expiry is the would-block signal, not an error.
	writeWait = 10 * time.Millisecond
)

// Set is the collection of consumers attached to one stream.
// Lock expectations: all mutating methods run on the owning relay goroutine.
// The atomic stats exist only so the status reporter and metrics can read
// them from outside.
type Set struct {
	name      string
	header    [wire.HeaderSize]byte
	ringBytes int
	max       int
	consumers []*Consumer
	scratch   [drainChunk]byte

	count   atomic.Int32
	served  atomic.Uint64 // Consumers ever attached
	relayed atomic.Uint64 // Bytes broadcast into rings
	dropped atomic.Uint64 // Bytes lost to ring overflow, all consumers
}

// NewSet creates a consumer set for a stream with the given sample rate.
// Each attached consumer gets a ring of ringBytes bytes.
func NewSet(name string, sampleRate uint32, ringBytes, max int) *Set {
	s := &Set{
		name:      name,
		ringBytes: ringBytes,
		max:       max,
	}
	s.header = wire.StreamHeader{SampleRate: sampleRate}.Encode()
	return s
}

// Attach adds a consumer for conn. Fails with ErrCapacityExceeded when the
// set is at its cap; the caller closes the connection.
func (s *Set) Attach(conn Conn) (*Consumer, error) {
	if len(s.consumers) >= s.max {
		return nil, ErrCapacityExceeded
	}

	c := &Consumer{
		conn:        conn,
		addr:        conn.RemoteAddr().String(),
		buf:         ring.New(s.ringBytes),
		connectedAt: time.Now(),
	}
	s.consumers = append(s.consumers, c)
	s.count.Store(int32(len(s.consumers)))
	s.served.Add(1)

	log.Printf("[CLIENT] %s: new connection from %s (total: %d)", s.name, c.addr, len(s.consumers))
	return c, nil
}

// Broadcast writes p into every consumer's ring. Never fails and never
// blocks; slow consumers absorb the bytes as ring overflow.
func (s *Set) Broadcast(p []byte) {
	if len(p) == 0 {
		return
	}
	for _, c := range s.consumers {
		c.buf.Write(p)
		if d := c.buf.Overflows(); d != c.seenDropped {
			s.dropped.Add(d - c.seenDropped)
			c.seenDropped = d
		}
	}
	s.relayed.Add(uint64(len(p)))
}

// Drain attempts, for every consumer, to deliver first the stream header and
// then up to drainChunk buffered bytes. Deadline expiry is transient: unsent
// bytes go back to the front of the ring for the next pass. Any other write
// error evicts the consumer. Iterates in reverse so eviction does not skip
// entries.
func (s *Set) Drain() {
	for i := len(s.consumers) - 1; i >= 0; i-- {
		c := s.consumers[i]

		if !c.headerSent {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			n, err := c.conn.Write(s.header[c.headerOff:])
			c.headerOff += n
			if c.headerOff == len(s.header) {
				c.headerSent = true
			}
			if err != nil && !isWouldBlock(err) {
				s.evict(i, err)
				continue
			}
			if !c.headerSent {
				continue // Remainder next pass
			}
		}

		if c.buf.Len() == 0 {
			continue
		}

		n := c.buf.Read(s.scratch[:])
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		sent, err := c.conn.Write(s.scratch[:n])
		if sent < n {
			c.buf.Unread(n - sent)
		}
		if err != nil && !isWouldBlock(err) {
			s.evict(i, err)
		}
	}
}

// Release removes a consumer without closing its connection. Used when an
// attached connection turns out to be the stream's producer; the served
// counter is rolled back so producers never show up in total_served.
func (s *Set) Release(c *Consumer) bool {
	for i, have := range s.consumers {
		if have == c {
			s.remove(i)
			s.served.Add(^uint64(0))
			return true
		}
	}
	return false
}

// Evict closes and removes a consumer.
func (s *Set) Evict(c *Consumer, err error) {
	for i, have := range s.consumers {
		if have == c {
			s.evict(i, err)
			return
		}
	}
}

func (s *Set) evict(i int, err error) {
	c := s.consumers[i]
	c.conn.Close()
	log.Printf("[CLIENT] %s: disconnecting %s (sent: %d bytes, lost: %d): %v",
		s.name, c.addr, c.buf.Delivered(), c.buf.Overflows(), err)
	s.remove(i)
}

func (s *Set) remove(i int) {
	s.consumers = append(s.consumers[:i], s.consumers[i+1:]...)
	s.count.Store(int32(len(s.consumers)))
}

// CloseAll closes every consumer connection. Called at shutdown.
func (s *Set) CloseAll() {
	for _, c := range s.consumers {
		c.conn.Close()
	}
	s.consumers = s.consumers[:0]
	s.count.Store(0)
}

// Len returns the number of attached consumers.
func (s *Set) Len() int {
	return len(s.consumers)
}

// Stats is a point-in-time view of the set counters, safe from any goroutine.
type Stats struct {
	Consumers int
	Served    uint64
	Relayed   uint64
	Dropped   uint64
}

// Stats returns the current counters.
func (s *Set) Stats() Stats {
	return Stats{
		Consumers: int(s.count.Load()),
		Served:    s.served.Load(),
		Relayed:   s.relayed.Load(),
		Dropped:   s.dropped.Load(),
	}
}

// isWouldBlock reports whether a send failed only because the short write
// deadline expired, i.e. the socket buffer is full.
func isWouldBlock(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
