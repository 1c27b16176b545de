// Package server manages individual WebSocket connections, handling
// read/write pumps, liveness checks, and lifecycle control for each client.
package server

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client wraps one live WebSocket connection and implements the Conn
// capability the registry relays through. Outgoing events are enqueued on a
// buffered channel drained by the write pump; the read pump decodes inbound
// frames and dispatches them to the registry.
type Client struct {
	id       string
	conn     *websocket.Conn
	registry *Registry
	addr     string

	send      chan []byte
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
}

// NewClient creates a Client for the provided WebSocket connection. The send
// channel is buffered so broadcasts never block the relay; a client that
// cannot drain it is closed and reaped through the normal leave path.
func NewClient(conn *websocket.Conn, registry *Registry, addr string, cfg Config) *Client {
	cfg = cfg.sanitized()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:           uuid.NewString(),
		conn:         conn,
		registry:     registry,
		addr:         addr,
		send:         make(chan []byte, 256),
		done:         make(chan struct{}),
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
		writeWait:    cfg.WriteWait,
	}
}

// ID returns the connection's identity, stable for its lifetime.
func (c *Client) ID() string {
	return c.id
}

// IsOpen reports whether the transport is still usable for sends.
func (c *Client) IsOpen() bool {
	return !c.closed.Load()
}

// Send serializes the event and enqueues it for the write pump. Sends to a
// closed or closing connection are skipped silently. A full send buffer means
// the peer has stopped draining; the connection is closed so the read pump
// can run the leave path.
func (c *Client) Send(event Outbound) {
	if !c.IsOpen() {
		return
	}

	payload, err := EncodeOutbound(event)
	if err != nil {
		log.Printf("Error encoding event for %s: %v", c.id, err)
		return
	}

	select {
	case c.send <- payload:
	default:
		sendsDropped.Inc()
		log.Printf("Send buffer full for %s; closing connection", c.id)
		c.shutdown()
	}
}

// shutdown marks the client closed and tears down the transport. It is safe
// to call from any goroutine and any number of times; the read pump observes
// the closed transport and detaches the client from the registry.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing connection %s: %v", c.id, err)
			}
		}
	})
}

// setupReadConnection configures the read deadline and pong handler. A peer
// that stops answering pings trips the deadline and is reaped through the
// same leave path as a clean close.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// logReadError logs an appropriate message for the error that ended the read
// loop. Disconnection is a normal terminal state here, not a failure.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded the read limit", c.addr)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// dispatch decodes one inbound frame and routes it to the registry.
// Malformed or unknown events are logged and dropped; the connection stays
// open.
func (c *Client) dispatch(payload []byte) {
	event, err := DecodeInbound(payload)
	if err != nil {
		log.Printf("Invalid event from %s: %v", c.addr, err)
		return
	}

	switch e := event.(type) {
	case JoinEvent:
		if err := c.registry.Join(c, e.RoomID, e.Username); err != nil {
			log.Printf("Rejected join from %s: %v", c.addr, err)
		}
	case ChatEvent:
		c.registry.Broadcast(c, e.Text)
	}
}

// readPump reads frames until the connection dies, then detaches the client
// from the registry exactly once.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.registry.detachClient(c)
	}()

	c.setupReadConnection()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.dispatch(payload)
	}
}

// writePump drains the send channel and keeps the connection alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case payload := <-c.send:
			if !c.writeMessage(payload) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		case <-c.done:
			c.writeCloseMessage()
			return
		}
	}
}

// writeMessage writes a single event frame, returning false when the pump
// should stop.
func (c *Client) writeMessage(payload []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writePing sends a liveness probe, returning false when the pump should stop.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing ping message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage tells the peer the server is closing the connection.
func (c *Client) writeCloseMessage() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
