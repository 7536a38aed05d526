package bridge

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Peer is one attached viewer connection. Implementations must be safe for
// concurrent Send calls.
type Peer interface {
	// Send transmits a single message to the viewer.
	Send(v interface{}) error

	// Close tears the connection down.
	Close() error
}

// WSPeer wraps a websocket connection as a Peer. gorilla/websocket allows
// only one concurrent writer, so writes are serialized with a mutex.
type WSPeer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSPeer creates a peer over an upgraded websocket connection
func NewWSPeer(conn *websocket.Conn) *WSPeer {
	return &WSPeer{conn: conn}
}

// Send writes v as a JSON message
func (p *WSPeer) Send(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(v)
}

// Close closes the underlying connection
func (p *WSPeer) Close() error {
	return p.conn.Close()
}
