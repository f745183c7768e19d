package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asciiarena/asciiarena/protocol"
)

// PlayerConnection is the subset of *websocket.Conn the server needs.
// A Write sends one framed message. Tests substitute pipes or fakes.
type PlayerConnection interface {
	io.Writer
	io.Closer
	RemoteAddr() net.Addr
}

// ErrConnClosed is returned by Send once a connection is shut down.
var ErrConnClosed = errors.New("connection closed")

// ErrSendQueueFull is returned when a connection's outbound queue cannot
// take another message; the connection is treated as dead.
var ErrSendQueueFull = errors.New("send queue full")

// Conn is one registered client connection. Outbound messages go through
// a buffered queue drained by a single writer goroutine, so each client
// sees messages in the order the server sent them.
type Conn struct {
	ClientID    string
	ConnectedAt time.Time

	ws     PlayerConnection
	sendCh chan []byte
	closed chan struct{}
	once   sync.Once

	mu           sync.Mutex
	playerID     string
	lastActivity time.Time
}

// Send marshals the message and enqueues it. It never blocks: a full
// queue fails the send and the connection is declared dead by the caller.
func (c *Conn) Send(msg protocol.Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendCh <- frame:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrSendQueueFull
	}
}

// PlayerID returns the bound player id, empty before a join completes.
func (c *Conn) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// LastActivity returns the time of the last inbound frame.
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Close shuts the connection down exactly once: the writer goroutine
// stops and the socket closes.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// writeLoop drains the send queue onto the socket. A write failure kills
// the connection; onDead runs once afterwards.
func (c *Conn) writeLoop(onDead func(*Conn)) {
	for {
		select {
		case frame := <-c.sendCh:
			if _, err := c.ws.Write(frame); err != nil {
				c.Close()
				if onDead != nil {
					onDead(c)
				}
				return
			}
		case <-c.closed:
			return
		}
	}
}

// ConnectionManager is the registry of live connections keyed by their
// server-issued clientId.
type ConnectionManager struct {
	mu        sync.RWMutex
	conns     map[string]*Conn
	queueSize int
	onDead    func(*Conn)
	log       *zap.SugaredLogger
}

// NewConnectionManager builds a registry. onDead is invoked (on its own
// goroutine) whenever a connection's writer fails; the server routes it
// into the normal disconnect path.
func NewConnectionManager(queueSize int, onDead func(*Conn), log *zap.SugaredLogger) *ConnectionManager {
	return &ConnectionManager{
		conns:     make(map[string]*Conn),
		queueSize: queueSize,
		onDead:    onDead,
		log:       log,
	}
}

// Add registers a socket, issues a fresh opaque clientId and starts the
// connection's writer goroutine.
func (cm *ConnectionManager) Add(ws PlayerConnection) *Conn {
	now := time.Now()
	conn := &Conn{
		ClientID:     uuid.NewString(),
		ConnectedAt:  now,
		lastActivity: now,
		ws:           ws,
		sendCh:       make(chan []byte, cm.queueSize),
		closed:       make(chan struct{}),
	}

	cm.mu.Lock()
	cm.conns[conn.ClientID] = conn
	cm.mu.Unlock()

	go conn.writeLoop(func(c *Conn) {
		if cm.onDead != nil {
			go cm.onDead(c)
		}
	})
	return conn
}

// Remove closes and deregisters a connection. Returns false when the
// clientId was already gone, which makes disconnect handling idempotent.
func (cm *ConnectionManager) Remove(clientID string) bool {
	cm.mu.Lock()
	conn, ok := cm.conns[clientID]
	delete(cm.conns, clientID)
	cm.mu.Unlock()

	if !ok {
		return false
	}
	conn.Close()
	return true
}

// Bind attaches a player to a connection.
func (cm *ConnectionManager) Bind(clientID, playerID string) bool {
	conn, ok := cm.ByClientID(clientID)
	if !ok {
		return false
	}
	conn.mu.Lock()
	conn.playerID = playerID
	conn.mu.Unlock()
	return true
}

// ByClientID looks a connection up.
func (cm *ConnectionManager) ByClientID(clientID string) (*Conn, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conn, ok := cm.conns[clientID]
	return conn, ok
}

// ByPlayerID finds the connection currently bound to a player.
func (cm *ConnectionManager) ByPlayerID(playerID string) (*Conn, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, conn := range cm.conns {
		conn.mu.Lock()
		bound := conn.playerID
		conn.mu.Unlock()
		if bound == playerID {
			return conn, true
		}
	}
	return nil, false
}

// All returns the current connections.
func (cm *ConnectionManager) All() []*Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	all := make([]*Conn, 0, len(cm.conns))
	for _, conn := range cm.conns {
		all = append(all, conn)
	}
	return all
}

// Count returns the number of live connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// Touch records inbound activity for the liveness check.
func (cm *ConnectionManager) Touch(clientID string) {
	conn, ok := cm.ByClientID(clientID)
	if !ok {
		return
	}
	conn.mu.Lock()
	conn.lastActivity = time.Now()
	conn.mu.Unlock()
}

// Broadcast fans one message out to every connection. Connections whose
// queue rejects the message are reported dead.
func (cm *ConnectionManager) Broadcast(msg protocol.Message) {
	for _, conn := range cm.All() {
		if err := conn.Send(msg); err != nil {
			cm.log.Warnw("broadcast send failed", "clientId", conn.ClientID, "error", err)
			conn.Close()
			if cm.onDead != nil {
				go cm.onDead(conn)
			}
		}
	}
}
