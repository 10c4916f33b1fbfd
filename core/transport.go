package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/voxvault/voxvault-core/core/protocol"
)

// transportCallbacks are invoked from the transport's single read-loop
// goroutine, so inbound messages are handled strictly in arrival order. Each
// callback carries the transport it fired from: read loops can outlive the
// session that owned them, and a receiver must be able to tell a live
// transport's callback from a stale one.
type transportCallbacks struct {
	onMessage func(from *sessionTransport, msg protocol.Inbound)
	onError   func(from *sessionTransport, err error)
	onClose   func(from *sessionTransport)
}

// sessionTransport owns one duplex websocket connection to the agent's
// signed per-session endpoint.
type sessionTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	open      atomic.Bool
	closeOnce sync.Once
}

func dialSession(ctx context.Context, signedURL string, callbacks transportCallbacks) (*sessionTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open session websocket: %w", err)
	}

	transport := &sessionTransport{conn: conn}
	transport.open.Store(true)
	go transport.readLoop(callbacks)
	return transport, nil
}

func (t *sessionTransport) IsOpen() bool {
	return t != nil && t.open.Load()
}

// Send marshals one outbound message. Writes are serialized; the read loop
// runs independently on its own goroutine.
func (t *sessionTransport) Send(msg any) error {
	if !t.IsOpen() {
		return fmt.Errorf("session transport is not open")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to session websocket: %w", err)
	}
	return nil
}

// Close is idempotent and safe to call concurrently with the read loop.
func (t *sessionTransport) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		t.open.Store(false)
		t.writeMu.Lock()
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		_ = t.conn.Close()
	})
}

func (t *sessionTransport) readLoop(callbacks transportCallbacks) {
	defer callbacks.onClose(t)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			wasOpen := t.open.Swap(false)
			if wasOpen && websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				callbacks.onError(t, err)
			}
			return
		}
		if !t.IsOpen() {
			// Teardown raced a buffered frame; drop it.
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			// Protocol noise must not crash the session.
			log.Printf("Dropping unparseable session message: %v", err)
			continue
		}
		if unknown, ok := msg.(protocol.Unknown); ok {
			logger.Debug("ignoring unhandled message", "type", unknown.Type)
			continue
		}

		callbacks.onMessage(t, msg)
	}
}
