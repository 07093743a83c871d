// If you are AI: This file implements the control bridge: a single listener
// whose first accepted socket becomes the producer side (the edge splitter),
// the second the controller (the remote operator), and any further connection
// is refused. Bytes are forwarded verbatim in both directions. The command
// protocol is a request/response dialogue, so losing either side tears down
// both; a half-open bridge would strand the survivor.

package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync/atomic"
	"time"
)

const (
	// readChunk is the per-read forwarding unit.
	readChunk = 4096

	// writeWait is the send deadline emulating a non-blocking write.
	writeWait = 10 * time.Millisecond
)

type side int

const (
	sideProducer side = iota
	sideController
)

func (s side) String() string {
	if s == sideProducer {
		return "SOURCE"
	}
	return "CLIENT"
}

type bridgeEvent struct {
	gen  uint64 // Pairing generation; stale events are discarded
	from side
	data []byte
	err  error
}

// Bridge relays bytes between one producer and one controller.
// Lock expectations: producer/controller slots and the generation counter
// are owned by the Run goroutine; the atomic flags exist for status readers.
type Bridge struct {
	ln      net.Listener
	accepts chan net.Conn
	events  chan bridgeEvent
	done    chan struct{}

	gen        uint64
	producer   net.Conn
	controller net.Conn

	producerUp   atomic.Bool
	controllerUp atomic.Bool
}

// NewBridge creates an unbound bridge.
func NewBridge() *Bridge {
	return &Bridge{
		accepts: make(chan net.Conn, 4),
		events:  make(chan bridgeEvent, 16),
		done:    make(chan struct{}),
	}
}

// Listen binds the control port. Must be called before Run.
func (b *Bridge) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen control on %s: %w", addr, err)
	}
	b.ln = ln
	log.Printf("[LISTEN] control bridge ready on %s", ln.Addr())
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (b *Bridge) Addr() net.Addr {
	return b.ln.Addr()
}

// Run accepts and forwards until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	go b.acceptLoop()

	for {
		select {
		case conn := <-b.accepts:
			b.handleAccept(conn)

		case ev := <-b.events:
			b.handleEvent(ev)

		case <-ctx.Done():
			close(b.done)
			b.ln.Close()
			b.teardown(nil)
			return
		}
	}
}

func (b *Bridge) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		select {
		case b.accepts <- conn:
		case <-b.done:
			conn.Close()
			return
		}
	}
}

func (b *Bridge) handleAccept(conn net.Conn) {
	switch {
	case b.producer == nil:
		b.producer = conn
		b.producerUp.Store(true)
		log.Printf("[CTRL-SOURCE] Connected from %s", conn.RemoteAddr())
	case b.controller == nil:
		b.controller = conn
		b.controllerUp.Store(true)
		log.Printf("[CTRL-CLIENT] Connected from %s", conn.RemoteAddr())
	default:
		log.Printf("[CTRL] Rejecting connection from %s (already occupied)", conn.RemoteAddr())
		conn.Close()
		return
	}

	// Forwarding starts once the pair exists; until then, inbound bytes
	// wait in the kernel socket buffer.
	if b.producer != nil && b.controller != nil {
		b.gen++
		go b.readLoop(b.gen, sideProducer, b.producer)
		go b.readLoop(b.gen, sideController, b.controller)
	}
}

func (b *Bridge) readLoop(gen uint64, from side, conn net.Conn) {
	for {
		buf := make([]byte, readChunk)
		n, err := conn.Read(buf)

		ev := bridgeEvent{gen: gen, from: from, err: err}
		if n > 0 {
			ev.data = buf[:n]
		}

		select {
		case b.events <- ev:
		case <-b.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (b *Bridge) handleEvent(ev bridgeEvent) {
	if ev.gen != b.gen || b.producer == nil || b.controller == nil {
		return // From a pairing that has already been torn down
	}

	if len(ev.data) > 0 {
		to := b.producer
		if ev.from == sideProducer {
			to = b.controller
		}

		to.SetWriteDeadline(time.Now().Add(writeWait))
		sent, err := to.Write(ev.data)
		if err != nil {
			if isWouldBlock(err) {
				// Peer's buffer is full; the command dialogue is tiny, so
				// this only happens to a wedged peer. Drop the remainder.
				log.Printf("[CTRL-%s] Forward stalled, dropped %d bytes", ev.from, len(ev.data)-sent)
			} else {
				b.teardown(err)
				return
			}
		}
	}

	if ev.err != nil {
		log.Printf("[CTRL-%s] Connection closed: %v", ev.from, ev.err)
		b.teardown(nil)
	}
}

// teardown closes both sides and clears both slots. The bridge is then
// ready for a fresh producer/controller pair.
func (b *Bridge) teardown(cause error) {
	if cause != nil {
		log.Printf("[CTRL] Tearing down bridge: %v", cause)
	}
	if b.producer != nil {
		b.producer.Close()
		b.producer = nil
	}
	if b.controller != nil {
		b.controller.Close()
		b.controller = nil
	}
	b.producerUp.Store(false)
	b.controllerUp.Store(false)
	b.gen++
}

// Status reports which sides are connected; safe from any goroutine.
type Status struct {
	ProducerUp   bool
	ControllerUp bool
}

// Status returns current liveness of both slots.
func (b *Bridge) Status() Status {
	return Status{
		ProducerUp:   b.producerUp.Load(),
		ControllerUp: b.controllerUp.Load(),
	}
}

func isWouldBlock(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
