// If you are AI: This file adapts a WebSocket connection to net.Conn so the
// stream relay can treat WebSocket consumers exactly like TCP consumers.
// Writes become binary frames. Reads discard client frames and only report
// the connection closing, so a WebSocket client can never be adopted as a
// stream producer.

package wsstream

import (
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn wraps *websocket.Conn as a net.Conn.
type wsConn struct {
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

// Write sends p as one binary frame. A frame is all-or-nothing: on error
// nothing of p is considered delivered, which the relay handles the same
// way as a zero-byte partial send.
func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read blocks until the peer closes (or errors), discarding any inbound
// frames. Control frames (ping/pong/close) are handled inside NextReader.
func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			return 0, err
		}
	}
}

func (c *wsConn) Close() error                       { return c.ws.Close() }
func (c *wsConn) LocalAddr() net.Addr                { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error      { return c.ws.SetWriteDeadline(t) }
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
