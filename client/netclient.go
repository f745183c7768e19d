package client

import (
	"fmt"
	"sync"
	"time"

	messagebus "github.com/vardius/message-bus"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/protocol"
)

const (
	topicConnected    = "net.connected"
	topicDisconnected = "net.disconnected"
	topicReconnecting = "net.reconnecting"
	topicReconnected  = "net.reconnected"
	topicMessage      = "net.message." // + message type
)

const busQueueSize = 100

// NetClient owns the single outbound websocket connection. Inbound
// messages are dispatched by type over a message bus; connection lifecycle
// events get their own topics. On an unexpected disconnect it retries with
// exponential backoff and resumes the previous session by replaying its
// playerId in the CONNECT request.
type NetClient struct {
	url    string
	origin string
	cfg    config.Reconnection
	bus    messagebus.MessageBus
	log    *zap.SugaredLogger

	mu          sync.Mutex
	ws          *websocket.Conn
	playerID    string
	playerName  string
	manualClose bool
}

// NewNetClient builds a client for a ws:// URL.
func NewNetClient(url string, cfg config.Reconnection, log *zap.SugaredLogger) *NetClient {
	return &NetClient{
		url:    url,
		origin: "http://localhost/",
		cfg:    cfg,
		bus:    messagebus.New(busQueueSize),
		log:    log,
	}
}

// SetIdentity records the name to join with and, after a CONNECT reply
// assigned one, the playerId to resume with.
func (c *NetClient) SetIdentity(playerID, playerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if playerID != "" {
		c.playerID = playerID
	}
	if playerName != "" {
		c.playerName = playerName
	}
}

// Connect dials the server, sends the join/resume CONNECT and starts the
// receive loop.
func (c *NetClient) Connect() error {
	ws, err := websocket.Dial(c.url, "", c.origin)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.manualClose = false
	playerID, playerName := c.playerID, c.playerName
	c.mu.Unlock()

	if err := c.sendConnectRequest(playerID, playerName); err != nil {
		_ = ws.Close()
		return err
	}

	go c.readLoop(ws)
	c.bus.Publish(topicConnected)
	return nil
}

// Send writes one message to the server.
func (c *NetClient) Send(msg protocol.Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("not connected")
	}
	if err := websocket.JSON.Send(ws, msg); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Type, err)
	}
	return nil
}

// Close shuts the connection down for good; no reconnect follows a
// manual close.
func (c *NetClient) Close() {
	c.mu.Lock()
	c.manualClose = true
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

// OnMessage registers a handler for one message type.
func (c *NetClient) OnMessage(msgType string, handler func(protocol.Message)) {
	if err := c.bus.Subscribe(topicMessage+msgType, handler); err != nil {
		c.log.Errorw("subscribing handler", "type", msgType, "error", err)
	}
}

// OnConnect registers a handler for every successful connect, first or
// resumed.
func (c *NetClient) OnConnect(handler func()) {
	if err := c.bus.Subscribe(topicConnected, handler); err != nil {
		c.log.Errorw("subscribing connect handler", "error", err)
	}
}

// OnDisconnect registers a handler for lost connections.
func (c *NetClient) OnDisconnect(handler func()) {
	if err := c.bus.Subscribe(topicDisconnected, handler); err != nil {
		c.log.Errorw("subscribing disconnect handler", "error", err)
	}
}

// OnReconnecting fires before each reconnect attempt with the attempt
// number and the backoff delay about to be waited.
func (c *NetClient) OnReconnecting(handler func(attempt int, delay time.Duration)) {
	if err := c.bus.Subscribe(topicReconnecting, handler); err != nil {
		c.log.Errorw("subscribing reconnecting handler", "error", err)
	}
}

// OnReconnected fires once a reconnect attempt succeeds.
func (c *NetClient) OnReconnected(handler func()) {
	if err := c.bus.Subscribe(topicReconnected, handler); err != nil {
		c.log.Errorw("subscribing reconnected handler", "error", err)
	}
}

func (c *NetClient) sendConnectRequest(playerID, playerName string) error {
	msg, err := protocol.New(protocol.TypeConnect, protocol.ConnectRequest{
		PlayerID:   playerID,
		PlayerName: playerName,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("not connected")
	}
	return websocket.JSON.Send(ws, msg)
}

// readLoop receives frames until the connection dies, publishing each
// message on its type topic.
func (c *NetClient) readLoop(ws *websocket.Conn) {
	for {
		var msg protocol.Message
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			c.mu.Lock()
			manual := c.manualClose
			if c.ws == ws {
				c.ws = nil
			}
			c.mu.Unlock()

			c.bus.Publish(topicDisconnected)
			if !manual && c.cfg.Enabled {
				go c.reconnectLoop()
			}
			return
		}
		if msg.Type == "" {
			c.log.Debugw("dropping untyped frame")
			continue
		}
		c.bus.Publish(topicMessage+msg.Type, msg)
	}
}

// reconnectLoop retries the connection with capped exponential backoff
// until it succeeds or the attempt budget runs out.
func (c *NetClient) reconnectLoop() {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		delay := RetryDelay(c.cfg, attempt)
		c.bus.Publish(topicReconnecting, attempt+1, delay)
		c.log.Infow("reconnecting", "attempt", attempt+1, "delay", delay)
		time.Sleep(delay)

		c.mu.Lock()
		if c.manualClose {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ws, err := websocket.Dial(c.url, "", c.origin)
		if err != nil {
			c.log.Warnw("reconnect failed", "attempt", attempt+1, "error", err)
			continue
		}

		c.mu.Lock()
		c.ws = ws
		playerID, playerName := c.playerID, c.playerName
		c.mu.Unlock()

		if err := c.sendConnectRequest(playerID, playerName); err != nil {
			c.log.Warnw("resume request failed", "error", err)
			_ = ws.Close()
			continue
		}

		go c.readLoop(ws)
		c.bus.Publish(topicReconnected)
		c.bus.Publish(topicConnected)
		return
	}
	c.log.Errorw("reconnect attempts exhausted", "attempts", c.cfg.MaxAttempts)
}

// RetryDelay returns the backoff delay for a zero-based attempt number:
// min(retryDelay * 2^attempt, maxRetryDelay), or a flat retryDelay when
// exponential backoff is disabled.
func RetryDelay(cfg config.Reconnection, attempt int) time.Duration {
	if !cfg.ExponentialBackoff {
		return cfg.RetryDelay
	}
	delay := cfg.RetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxRetryDelay || delay <= 0 {
			return cfg.MaxRetryDelay
		}
	}
	if delay > cfg.MaxRetryDelay {
		return cfg.MaxRetryDelay
	}
	return delay
}
