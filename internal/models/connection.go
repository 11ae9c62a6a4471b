package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ConnectionRole is the capability level of a connection's identity
type ConnectionRole string

const (
	RoleAnonymous  ConnectionRole = "anonymous"
	RoleMember     ConnectionRole = "member"
	RolePrivileged ConnectionRole = "privileged"
)

// Registered reports whether the role belongs to an authenticated identity
func (r ConnectionRole) Registered() bool {
	return r == RoleMember || r == RolePrivileged
}

// OutboundBufferSize bounds the per-connection write channel. When the
// buffer is full the newest message is dropped so ordering of what remains
// is preserved and a slow peer never stalls the publisher.
const OutboundBufferSize = 64

// ClientConnection represents a single live WebSocket connection
type ClientConnection struct {
	ConnID     string
	IdentityID string
	Role       ConnectionRole
	ClientIP   string
	Conn       *websocket.Conn
	Channels   map[string]bool
	CreatedAt  time.Time
	WriteChan  chan ServerMessage

	Mutex    sync.Mutex
	lastSeen time.Time
	closed   bool
}

// NewClientConnection builds a connection with a bounded outbound buffer
func NewClientConnection(connID, identityID string, role ConnectionRole, clientIP string, conn *websocket.Conn) *ClientConnection {
	now := time.Now()
	return &ClientConnection{
		ConnID:     connID,
		IdentityID: identityID,
		Role:       role,
		ClientIP:   clientIP,
		Conn:       conn,
		Channels:   make(map[string]bool),
		CreatedAt:  now,
		WriteChan:  make(chan ServerMessage, OutboundBufferSize),
		lastSeen:   now,
	}
}

// SafeSend enqueues a message without blocking. Returns false if the
// connection is closed or the bounded buffer is full (message dropped).
func (c *ClientConnection) SafeSend(msg ServerMessage) bool {
	c.Mutex.Lock()
	if c.closed {
		c.Mutex.Unlock()
		return false
	}
	c.Mutex.Unlock()

	// Send on a closed channel panics; recover and mark closed
	defer func() {
		if r := recover(); r != nil {
			c.Mutex.Lock()
			c.closed = true
			c.Mutex.Unlock()
		}
	}()

	select {
	case c.WriteChan <- msg:
		return true
	default:
		// Buffer full: drop the newest message
		return false
	}
}

// Subscribed reports whether the connection is subscribed to a channel
func (c *ClientConnection) Subscribed(channel string) bool {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	return c.Channels[channel]
}

// Subscribe adds the connection to a channel
func (c *ClientConnection) Subscribe(channel string) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.Channels[channel] = true
}

// Touch records inbound traffic for liveness tracking
func (c *ClientConnection) Touch(now time.Time) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.lastSeen = now
}

// LastSeen returns the time of the most recent inbound traffic
func (c *ClientConnection) LastSeen() time.Time {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	return c.lastSeen
}

// MarkClosed marks the connection as closed
func (c *ClientConnection) MarkClosed() {
	c.Mutex.Lock()
	c.closed = true
	c.Mutex.Unlock()
}

// IsClosed returns true if the connection has been marked as closed
func (c *ClientConnection) IsClosed() bool {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	return c.closed
}
