package services

import (
	"context"
	"log"
	"sync"
	"time"

	"leadpulse/internal/models"
)

// Heartbeat cadence: every connection is probed on the ping interval and
// forcibly closed once silent beyond the liveness timeout.
const (
	HeartbeatInterval = 30 * time.Second
	LivenessTimeout   = 90 * time.Second
)

// ConnectionManager owns every live client connection: identity tracking,
// channel subscriptions, offline queuing and liveness.
type ConnectionManager struct {
	connections map[string]*models.ClientConnection            // connID -> connection
	byIdentity  map[string]map[string]*models.ClientConnection // identityID -> connID -> connection
	mutex       sync.RWMutex

	queue  *QueueService  // nil when Redis is unavailable (queuing disabled)
	pubsub *PubSubService // nil in single-instance deployments

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(queue *QueueService, pubsub *PubSubService) *ConnectionManager {
	cm := &ConnectionManager{
		connections: make(map[string]*models.ClientConnection),
		byIdentity:  make(map[string]map[string]*models.ClientConnection),
		queue:       queue,
		pubsub:      pubsub,
		stopChan:    make(chan struct{}),
	}
	if pubsub != nil {
		pubsub.OnRelay(cm.deliverLocal)
	}
	return cm
}

// Accept registers a connection, subscribes it to its channels and flushes
// any messages queued while the identity was offline. Public channels for
// everyone; a private identity channel for registered identities; the
// operational channels only for privileged roles.
func (cm *ConnectionManager) Accept(ctx context.Context, conn *models.ClientConnection) {
	conn.Subscribe(models.ChannelListings)
	conn.Subscribe(models.ChannelMarket)
	if conn.Role.Registered() {
		conn.Subscribe(models.IdentityChannel(conn.IdentityID))
	}
	if conn.Role == models.RolePrivileged {
		conn.Subscribe(models.ChannelAgentAlert)
		conn.Subscribe(models.ChannelOps)
	}

	cm.mutex.Lock()
	cm.connections[conn.ConnID] = conn
	if cm.byIdentity[conn.IdentityID] == nil {
		cm.byIdentity[conn.IdentityID] = make(map[string]*models.ClientConnection)
	}
	cm.byIdentity[conn.IdentityID][conn.ConnID] = conn
	total := len(cm.connections)
	cm.mutex.Unlock()

	log.Printf("✅ Connection added: %s identity=%s role=%s (Total: %d)", conn.ConnID, conn.IdentityID, conn.Role, total)

	// Flush the offline queue for reconnecting registered identities
	if cm.queue != nil && conn.Role.Registered() {
		queued, err := cm.queue.Drain(ctx, conn.IdentityID)
		if err != nil {
			log.Printf("⚠️ Failed to drain queued messages for %s: %v", conn.IdentityID, err)
			return
		}
		for _, msg := range queued {
			msg.Type = "queued_message"
			if !conn.SafeSend(msg) {
				log.Printf("⚠️ Dropped queued message for %s (buffer full or closed)", conn.IdentityID)
			}
		}
		if len(queued) > 0 {
			log.Printf("📬 Flushed %d queued messages to %s", len(queued), conn.IdentityID)
		}
	}
}

// Remove deregisters a connection and closes its write channel
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	conn, exists := cm.connections[connID]
	if !exists {
		return
	}
	conn.MarkClosed()
	close(conn.WriteChan)
	delete(cm.connections, connID)
	if peers := cm.byIdentity[conn.IdentityID]; peers != nil {
		delete(peers, connID)
		if len(peers) == 0 {
			delete(cm.byIdentity, conn.IdentityID)
		}
	}
	log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
}

// Get retrieves a connection by ID
func (cm *ConnectionManager) Get(connID string) (*models.ClientConnection, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	conn, exists := cm.connections[connID]
	return conn, exists
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// GetAll returns all active connections
func (cm *ConnectionManager) GetAll() []*models.ClientConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conns := make([]*models.ClientConnection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Send delivers to every live connection for the identity. With none
// live, registered identities get the message queued for their next
// handshake; anonymous identities are ephemeral and the message is
// dropped.
func (cm *ConnectionManager) Send(ctx context.Context, identityID string, msg models.ServerMessage) {
	cm.mutex.RLock()
	peers := make([]*models.ClientConnection, 0, len(cm.byIdentity[identityID]))
	for _, conn := range cm.byIdentity[identityID] {
		peers = append(peers, conn)
	}
	cm.mutex.RUnlock()

	delivered := false
	for _, conn := range peers {
		if conn.SafeSend(msg) {
			delivered = true
		} else {
			log.Printf("⚠️ Dropped message to closed/slow connection %s", conn.ConnID)
		}
	}
	if delivered {
		return
	}

	if cm.queue == nil {
		return
	}
	if err := cm.queue.Enqueue(ctx, identityID, msg); err != nil {
		log.Printf("⚠️ Failed to queue message for offline identity %s: %v", identityID, err)
	}
}

// Broadcast delivers to every connection subscribed to the channel, and
// relays the broadcast to other instances. Delivery is non-blocking per
// connection: a slow or dead peer has its message dropped, never stalling
// the rest.
func (cm *ConnectionManager) Broadcast(ctx context.Context, channel string, msg models.ServerMessage) {
	msg.Channel = channel
	cm.deliverLocal(channel, msg)

	if cm.pubsub != nil {
		if err := cm.pubsub.PublishBroadcast(ctx, channel, msg); err != nil {
			log.Printf("⚠️ Failed to relay broadcast on %s: %v", channel, err)
		}
	}
}

// deliverLocal fans a broadcast out to locally subscribed connections
func (cm *ConnectionManager) deliverLocal(channel string, msg models.ServerMessage) {
	cm.mutex.RLock()
	subscribed := make([]*models.ClientConnection, 0)
	for _, conn := range cm.connections {
		if conn.Subscribed(channel) {
			subscribed = append(subscribed, conn)
		}
	}
	cm.mutex.RUnlock()

	dropped := 0
	for _, conn := range subscribed {
		if !conn.SafeSend(msg) {
			dropped++
		}
	}
	if dropped > 0 {
		if metrics := GetMetrics(); metrics != nil {
			metrics.BroadcastDrops.Add(float64(dropped))
		}
		log.Printf("⚠️ Broadcast on %s dropped for %d slow/closed connections", channel, dropped)
	}
}

// StartReaper launches the liveness loop: connections silent beyond the
// timeout are forcibly closed and deregistered.
func (cm *ConnectionManager) StartReaper() {
	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cm.stopChan:
				return
			case <-ticker.C:
				cm.reapStale(time.Now())
			}
		}
	}()
}

// reapStale closes every connection silent beyond the liveness timeout
func (cm *ConnectionManager) reapStale(now time.Time) {
	stale := make([]*models.ClientConnection, 0)
	cm.mutex.RLock()
	for _, conn := range cm.connections {
		if now.Sub(conn.LastSeen()) > LivenessTimeout {
			stale = append(stale, conn)
		}
	}
	cm.mutex.RUnlock()

	for _, conn := range stale {
		log.Printf("⏱️ Closing stale connection %s (silent %v)", conn.ConnID, now.Sub(conn.LastSeen()).Round(time.Second))
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		cm.Remove(conn.ConnID)
	}
}

// Stop halts the liveness loop
func (cm *ConnectionManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopChan) })
}
