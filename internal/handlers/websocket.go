package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"leadpulse/internal/models"
	"leadpulse/internal/services"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	connManager *services.ConnectionManager
	router      *services.EventRouter
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, router *services.EventRouter) *WebSocketHandler {
	return &WebSocketHandler{
		connManager: connManager,
		router:      router,
	}
}

// Handle handles a new WebSocket connection. Identity and role were
// resolved during the upgrade and stashed in Locals; a failed or absent
// token resolves to a fresh anonymous identity rather than a rejection.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	identityID, _ := c.Locals("identity_id").(string)
	roleStr, _ := c.Locals("identity_role").(string)
	clientIP, _ := c.Locals("client_ip").(string)

	role := models.ConnectionRole(roleStr)
	if identityID == "" {
		identityID = "anon-" + uuid.New().String()
		role = models.RoleAnonymous
	}

	done := make(chan struct{})

	conn := models.NewClientConnection(connID, identityID, role, clientIP, c)

	ctx := context.Background()
	h.connManager.Accept(ctx, conn)
	if metrics := services.GetMetrics(); metrics != nil {
		metrics.ActiveConnections.Inc()
	}
	defer func() {
		close(done)
		h.connManager.Remove(connID)
		if metrics := services.GetMetrics(); metrics != nil {
			metrics.ActiveConnections.Dec()
		}
	}()

	// Liveness: the peer must show traffic (or pong) within the timeout
	c.SetReadDeadline(time.Now().Add(services.LivenessTimeout))
	c.SetPongHandler(func(appData string) error {
		conn.Touch(time.Now())
		c.SetReadDeadline(time.Now().Add(services.LivenessTimeout))
		return nil
	})

	go h.pingLoop(conn, done)
	go h.writeLoop(conn)

	conn.WriteChan <- models.ServerMessage{
		Type: "connected",
		Payload: map[string]interface{}{
			"identity_id": identityID,
			"role":        string(role),
		},
	}

	h.readLoop(ctx, conn)
}

// pingLoop probes the peer on the heartbeat interval
func (h *WebSocketHandler) pingLoop(conn *models.ClientConnection, done <-chan struct{}) {
	ticker := time.NewTicker(services.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.Mutex.Lock()
			err := conn.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			conn.Mutex.Unlock()
			if err != nil {
				log.Printf("⚠️ Ping failed for %s: %v", conn.ConnID, err)
				return
			}
		}
	}
}

// readLoop handles incoming events from the client
func (h *WebSocketHandler) readLoop(ctx context.Context, conn *models.ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := conn.Conn.ReadMessage()
		if err != nil {
			log.Printf("🔌 WebSocket closed for %s: %v", conn.ConnID, err)
			break
		}

		now := time.Now()
		conn.Touch(now)
		conn.Conn.SetReadDeadline(now.Add(services.LivenessTimeout))

		var event models.ClientEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			log.Printf("⚠️  Invalid event format from %s: %v", conn.ConnID, err)
			conn.SafeSend(models.ServerMessage{
				Type:         "error",
				ErrorCode:    "validation_failed",
				ErrorMessage: "Invalid event format",
			})
			continue
		}

		if event.Type == "ping" {
			conn.SafeSend(models.ServerMessage{Type: "pong"})
			continue
		}

		h.handleEvent(ctx, conn, event)
	}
}

// handleEvent routes one event and reports the outcome back synchronously
func (h *WebSocketHandler) handleEvent(ctx context.Context, conn *models.ClientConnection, event models.ClientEvent) {
	update, err := h.router.Submit(ctx, conn, event)

	kindLabel := string(event.Kind)
	if kindLabel == "" {
		kindLabel = event.Type
	}

	if err != nil {
		code := services.ErrorCode(err)
		if metrics := services.GetMetrics(); metrics != nil {
			metrics.EventsSubmitted.WithLabelValues(kindLabel, code).Inc()
		}
		log.Printf("🚫 Event rejected for %s (%s): %v", conn.IdentityID, code, err)
		conn.SafeSend(models.ServerMessage{
			Type:         "error",
			ErrorCode:    code,
			ErrorMessage: err.Error(),
		})
		return
	}

	if metrics := services.GetMetrics(); metrics != nil {
		metrics.EventsSubmitted.WithLabelValues(kindLabel, "accepted").Inc()
	}

	ack := models.ServerMessage{Type: "ack"}
	if update != nil {
		ack.Score = update.NewScore
		ack.Category = update.NewCategory
	}
	conn.SafeSend(ack)
}

// writeLoop handles outgoing messages to the client
func (h *WebSocketHandler) writeLoop(conn *models.ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in writeLoop: %v", r)
		}
	}()

	for msg := range conn.WriteChan {
		if err := conn.Conn.WriteJSON(msg); err != nil {
			log.Printf("❌ WebSocket write error for %s: %v", conn.ConnID, err)
			return
		}
	}
}
