package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"csms/utility"
)

const writeWait = 10 * time.Second

// WebSocket wraps a single station link. All writes go through the mutex,
// a closed connection turns later writes into errors instead of panics.
type WebSocket struct {
	conn     *websocket.Conn
	id       string
	version  string
	features map[string]Feature

	mu     sync.Mutex
	closed bool
	alive  bool
}

func (ws *WebSocket) ID() string {
	return ws.id
}

func (ws *WebSocket) Version() string {
	return ws.version
}

func (ws *WebSocket) IsClosed() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.closed
}

func (ws *WebSocket) WriteMessage(data []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return utility.Err("connection is closed")
	}
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

// CloseWithCode sends a close frame with the given code and reason, then
// terminates the link.
func (ws *WebSocket) CloseWithCode(code int, reason string) {
	ws.mu.Lock()
	if !ws.closed {
		message := websocket.FormatCloseMessage(code, reason)
		_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.conn.WriteMessage(websocket.CloseMessage, message)
	}
	ws.mu.Unlock()
	ws.Terminate()
}

// Terminate closes the underlying connection without a close handshake.
// Safe to call more than once.
func (ws *WebSocket) Terminate() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return
	}
	ws.closed = true
	_ = ws.conn.Close()
}

func (ws *WebSocket) MarkAlive() {
	ws.mu.Lock()
	ws.alive = true
	ws.mu.Unlock()
}

// Expired arms the liveness probe: the first call after a period of silence
// returns false and expects a pong before the next one, a second call with
// no pong in between reports the link as dead.
func (ws *WebSocket) Expired() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !ws.alive {
		return true
	}
	ws.alive = false
	return false
}

func (ws *WebSocket) Ping() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return utility.Err("connection is closed")
	}
	_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.conn.WriteMessage(websocket.PingMessage, nil)
}
