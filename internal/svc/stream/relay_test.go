// If you are AI: This file contains end-to-end tests for the stream relay
// over real TCP sockets: producer adoption, fan-out, producer restart and
// replacement, and the consumer cap.

package stream

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"pnrelay/internal/core/wire"
)

func startRelay(t *testing.T, maxConsumers int) (*Relay, context.CancelFunc) {
	t.Helper()
	r := NewRelay("DETECTOR", 50000, 1<<20, maxConsumers)
	if err := r.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	return r, cancel
}

func dial(t *testing.T, r *Relay) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", r.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// makeFrames renders n DATA frames of the given sample count with
// recognisable payloads.
func makeFrames(n, samples int) []byte {
	var out bytes.Buffer
	for i := 0; i < n; i++ {
		f := wire.DataFrame{Sequence: uint32(i), NumSamples: uint32(samples)}
		h := f.Encode()
		out.Write(h[:])
		payload := bytes.Repeat([]byte{byte(i)}, f.PayloadSize())
		out.Write(payload)
	}
	return out.Bytes()
}

func readFull(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("reading %d bytes: %v", n, err)
	}
	return buf
}

func TestFanOutToThreeConsumers(t *testing.T) {
	r, cancel := startRelay(t, 100)
	defer cancel()

	var consumers []net.Conn
	for i := 0; i < 3; i++ {
		consumers = append(consumers, dial(t, r))
	}
	defer func() {
		for _, c := range consumers {
			c.Close()
		}
	}()
	waitFor(t, "3 consumers attached", func() bool { return r.Status().Stats.Consumers == 3 })

	producer := dial(t, r)
	defer producer.Close()

	frames := makeFrames(10, 256)
	if _, err := producer.Write(frames); err != nil {
		t.Fatalf("producer write: %v", err)
	}
	waitFor(t, "producer adopted", func() bool { return r.Status().ProducerUp })

	for i, c := range consumers {
		header := readFull(t, c, wire.HeaderSize)
		h, err := wire.ParseStreamHeader(header)
		if err != nil {
			t.Fatalf("consumer %d: bad header: %v", i, err)
		}
		if h.SampleRate != 50000 {
			t.Errorf("consumer %d: sample rate %d, want 50000", i, h.SampleRate)
		}

		data := readFull(t, c, len(frames))
		if !bytes.Equal(data, frames) {
			t.Errorf("consumer %d: frame bytes diverge from producer", i)
		}
	}

	// The producer must not appear in the consumer count or in total_served.
	if got := r.Status().Stats.Consumers; got != 3 {
		t.Errorf("consumer count = %d, want 3", got)
	}
	if got := r.Status().Stats.Served; got != 3 {
		t.Errorf("consumers served = %d, want 3", got)
	}
}

func TestProducerRestartNoSecondHeader(t *testing.T) {
	r, cancel := startRelay(t, 100)
	defer cancel()

	consumer := dial(t, r)
	defer consumer.Close()
	waitFor(t, "consumer attached", func() bool { return r.Status().Stats.Consumers == 1 })

	producer := dial(t, r)
	first := makeFrames(10, 64)
	if _, err := producer.Write(first); err != nil {
		t.Fatalf("producer write: %v", err)
	}
	waitFor(t, "producer adopted", func() bool { return r.Status().ProducerUp })

	readFull(t, consumer, wire.HeaderSize)
	got := readFull(t, consumer, len(first))
	if !bytes.Equal(got, first) {
		t.Fatal("first batch diverges")
	}

	producer.Close()
	waitFor(t, "producer gone", func() bool { return !r.Status().ProducerUp })

	producer2 := dial(t, r)
	defer producer2.Close()
	second := makeFrames(5, 64)
	if _, err := producer2.Write(second); err != nil {
		t.Fatalf("second producer write: %v", err)
	}

	// No second header: the next bytes are the new frames, contiguously.
	got = readFull(t, consumer, len(second))
	if !bytes.Equal(got, second) {
		t.Fatal("second batch diverges (or an extra header was sent)")
	}
}

func TestTransmittingConnectionDisplacesProducer(t *testing.T) {
	r, cancel := startRelay(t, 100)
	defer cancel()

	old := dial(t, r)
	defer old.Close()
	if _, err := old.Write([]byte("aaa")); err != nil {
		t.Fatalf("old producer write: %v", err)
	}
	waitFor(t, "first producer adopted", func() bool { return r.Status().ProducerUp })

	replacement := dial(t, r)
	defer replacement.Close()
	waitFor(t, "replacement attached as consumer", func() bool { return r.Status().Stats.Consumers == 1 })
	if _, err := replacement.Write([]byte("bbb")); err != nil {
		t.Fatalf("replacement write: %v", err)
	}

	// The displaced socket gets closed by the relay. It was attached as a
	// consumer before it transmitted, so the stream header arrives first.
	readFull(t, old, wire.HeaderSize)
	old.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := old.Read(make([]byte, 1)); err == nil {
		t.Fatal("old producer should have been closed")
	}
	waitFor(t, "replacement is sole producer", func() bool {
		st := r.Status()
		return st.ProducerUp && st.Stats.Consumers == 0
	})
}

func TestConsumerCapRefusesExtra(t *testing.T) {
	r, cancel := startRelay(t, 2)
	defer cancel()

	a, b := dial(t, r), dial(t, r)
	defer a.Close()
	defer b.Close()
	waitFor(t, "2 consumers attached", func() bool { return r.Status().Stats.Consumers == 2 })

	extra := dial(t, r)
	defer extra.Close()

	extra.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := extra.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("over-cap connection: read err = %v, want EOF", err)
	}
	if got := r.Status().Stats.Consumers; got != 2 {
		t.Errorf("consumer count = %d, want 2", got)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	r, cancel := startRelay(t, 100)

	consumer := dial(t, r)
	defer consumer.Close()
	waitFor(t, "consumer attached", func() bool { return r.Status().Stats.Consumers == 1 })

	cancel()

	consumer.SetReadDeadline(time.Now().Add(5 * time.Second))
	// Drain the header if it was delivered before shutdown, then expect EOF.
	buf := make([]byte, 4096)
	var err error
	for err == nil {
		_, err = consumer.Read(buf)
	}
	if err != io.EOF {
		t.Fatalf("consumer read err = %v, want EOF after shutdown", err)
	}
}
