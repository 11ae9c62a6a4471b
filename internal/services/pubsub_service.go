package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"leadpulse/internal/models"
)

// PubSubService relays broadcasts between server instances through Redis
// so a subscriber connected to one instance still sees events published on
// another.
type PubSubService struct {
	redis      *RedisService
	pubsub     *redis.PubSub
	handlers   []RelayHandler
	mu         sync.RWMutex
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

// RelayHandler receives a broadcast relayed from another instance
type RelayHandler func(channel string, msg models.ServerMessage)

// relayEnvelope wraps a broadcast with its source instance
type relayEnvelope struct {
	InstanceID string               `json:"instanceId"`
	Channel    string               `json:"channel"`
	Message    models.ServerMessage `json:"message"`
}

// NewPubSubService creates a relay identified by this instance's ID
func NewPubSubService(redisService *RedisService, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:      redisService,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// OnRelay registers a handler for broadcasts from other instances
func (s *PubSubService) OnRelay(handler RelayHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Start begins listening for relayed broadcasts
func (s *PubSubService) Start() error {
	s.pubsub = s.redis.PSubscribe(s.ctx, "broadcast:*")

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Relay listening (instance: %s)", s.instanceID)
	return nil
}

// processMessages handles incoming relay messages
func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg)
		}
	}
}

// handleMessage decodes one relayed broadcast and fans it to handlers
func (s *PubSubService) handleMessage(msg *redis.Message) {
	var envelope relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to unmarshal relay message: %v", err)
		return
	}

	// Skip our own broadcasts (avoid loops)
	if envelope.InstanceID == s.instanceID {
		return
	}

	channel := strings.TrimPrefix(msg.Channel, "broadcast:")
	if envelope.Channel != "" {
		channel = envelope.Channel
	}

	s.mu.RLock()
	handlers := append([]RelayHandler(nil), s.handlers...)
	s.mu.RUnlock()

	for _, handler := range handlers {
		handler(channel, envelope.Message)
	}
}

// PublishBroadcast relays a local broadcast to the other instances
func (s *PubSubService) PublishBroadcast(ctx context.Context, channel string, msg models.ServerMessage) error {
	envelope := relayEnvelope{
		InstanceID: s.instanceID,
		Channel:    channel,
		Message:    msg,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return s.redis.Publish(ctx, "broadcast:"+channel, data)
}

// Stop stops the relay
func (s *PubSubService) Stop() error {
	s.cancel()
	if s.pubsub != nil {
		return s.pubsub.Close()
	}
	return nil
}
