package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"leadpulse/internal/models"
)

// Queued messages for an offline identity are kept this long before Redis
// drops the list. Matches the automation job retention window.
const queuedMessageTTL = 7 * 24 * time.Hour

// QueueService stores messages addressed to registered identities with no
// live connection, to be flushed on the identity's next handshake. This
// gives reconnecting registered users at-least-once delivery; anonymous
// identities get no queuing.
type QueueService struct {
	redis *RedisService
}

// NewQueueService creates a queue over the given Redis connection
func NewQueueService(redisService *RedisService) *QueueService {
	return &QueueService{redis: redisService}
}

func queueKey(identityID string) string {
	return "queued:" + identityID
}

// Enqueue appends a message to the identity's offline queue
func (s *QueueService) Enqueue(ctx context.Context, identityID string, msg models.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queued message: %w", err)
	}

	key := queueKey(identityID)
	if err := s.redis.RPush(ctx, key, data); err != nil {
		return fmt.Errorf("failed to enqueue message for %s: %w", identityID, err)
	}
	// Refresh the retention window on every append
	if err := s.redis.Expire(ctx, key, queuedMessageTTL); err != nil {
		log.Printf("⚠️ [QUEUE] Failed to set TTL for %s: %v", identityID, err)
	}
	return nil
}

// Drain returns and clears all queued messages for the identity, in the
// order they were enqueued
func (s *QueueService) Drain(ctx context.Context, identityID string) ([]models.ServerMessage, error) {
	key := queueKey(identityID)

	raw, err := s.redis.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue for %s: %w", identityID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	if err := s.redis.Delete(ctx, key); err != nil {
		// Re-delivery on the next drain is acceptable (at-least-once)
		log.Printf("⚠️ [QUEUE] Failed to clear queue for %s: %v", identityID, err)
	}

	messages := make([]models.ServerMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ServerMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			log.Printf("⚠️ [QUEUE] Dropping undecodable queued message for %s: %v", identityID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
