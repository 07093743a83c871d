// If you are AI: This file contains end-to-end tests for the WebSocket
// stream tap: header-first delivery, parity with TCP consumers, and 404s.

package wsstream

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pnrelay/internal/core/wire"
	"pnrelay/internal/svc/stream"

	"github.com/gorilla/websocket"
)

func startStack(t *testing.T) (*stream.Relay, *httptest.Server, context.CancelFunc) {
	t.Helper()
	relay := stream.NewRelay("DETECTOR", 50000, 1<<20, 100)
	if err := relay.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go relay.Run(ctx)

	mux := http.NewServeMux()
	NewService(map[string]*stream.Relay{"detector": relay}).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)

	return relay, ts, func() {
		ts.Close()
		cancel()
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestWebSocketConsumerGetsHeaderThenData(t *testing.T) {
	relay, ts, stop := startStack(t)
	defer stop()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/detector"), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer ws.Close()

	// Wait for the attach to land on the relay goroutine.
	deadline := time.Now().Add(5 * time.Second)
	for relay.Status().Stats.Consumers != 1 {
		if time.Now().After(deadline) {
			t.Fatal("ws consumer never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	producer, err := net.Dial("tcp", relay.Addr().String())
	if err != nil {
		t.Fatalf("producer dial: %v", err)
	}
	defer producer.Close()
	payload := []byte("iq-sample-bytes")
	if _, err := producer.Write(payload); err != nil {
		t.Fatalf("producer write: %v", err)
	}

	// First frames carry the 16-byte stream header, then the payload.
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got []byte
	for len(got) < wire.HeaderSize+len(payload) {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("ws read: %v", err)
		}
		if mt != websocket.BinaryMessage {
			t.Fatalf("message type = %d, want binary", mt)
		}
		got = append(got, data...)
	}

	h, err := wire.ParseStreamHeader(got[:wire.HeaderSize])
	if err != nil {
		t.Fatalf("first bytes are not a stream header: %v", err)
	}
	if h.SampleRate != 50000 {
		t.Errorf("sample rate = %d, want 50000", h.SampleRate)
	}
	if !bytes.Equal(got[wire.HeaderSize:wire.HeaderSize+len(payload)], payload) {
		t.Errorf("payload diverges: %q", got[wire.HeaderSize:])
	}
}

func TestWebSocketClientCannotBecomeProducer(t *testing.T) {
	relay, ts, stop := startStack(t)
	defer stop()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/detector"), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteMessage(websocket.BinaryMessage, []byte("rogue bytes")); err != nil {
		t.Fatalf("ws write: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if relay.Status().ProducerUp {
		t.Fatal("a WebSocket client must never be adopted as producer")
	}
}

func TestWebSocketUnknownStream(t *testing.T) {
	_, ts, stop := startStack(t)
	defer stop()

	resp, err := http.Get(ts.URL + "/ws/nonsense")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketDisconnectDetaches(t *testing.T) {
	relay, ts, stop := startStack(t)
	defer stop()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/detector"), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for relay.Status().Stats.Consumers != 1 {
		if time.Now().After(deadline) {
			t.Fatal("ws consumer never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	ws.Close()
	for relay.Status().Stats.Consumers != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed ws consumer never detached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
