package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"messenger/internal/domain"
	"messenger/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const ChatQueueKeyPrefix = "chat:%d:queue"

// QueueRepository - ограниченный FIFO последних сообщений чата для
// переподключившихся клиентов. Хранит не более capacity записей на чат.
type QueueRepository interface {
	Enqueue(ctx context.Context, message *domain.Message) error
	Replay(ctx context.Context, chatID int64) ([]*domain.Message, error)
	// Remove убирает удаленное сообщение, чтобы replay его больше не отдавал
	Remove(ctx context.Context, chatID, messageID int64) error
}

type queueRepository struct {
	rdb      *redis.Client
	capacity int
	ttl      time.Duration
	log      logger.Logger
}

func NewQueueRepository(rdb *redis.Client, capacity int, ttl time.Duration, log logger.Logger) QueueRepository {
	return &queueRepository{
		rdb:      rdb,
		capacity: capacity,
		ttl:      ttl,
		log:      log,
	}
}

func queueKey(chatID int64) string {
	return fmt.Sprintf(ChatQueueKeyPrefix, chatID)
}

func (r *queueRepository) Enqueue(ctx context.Context, message *domain.Message) error {
	key := queueKey(message.ChatID)

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// RPUSH + LTRIM в одном MULTI: переполнение отбрасывает самые старые
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-r.capacity), -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to enqueue message", "error", err, "chat_id", message.ChatID)
		return err
	}

	return nil
}

func (r *queueRepository) Replay(ctx context.Context, chatID int64) ([]*domain.Message, error) {
	raw, err := r.rdb.LRange(ctx, queueKey(chatID), 0, -1).Result()
	if err != nil {
		r.log.Error("Failed to read chat queue", "error", err, "chat_id", chatID)
		return nil, err
	}

	messages := make([]*domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			r.log.Warn("Skipping malformed queue entry", "error", err, "chat_id", chatID)
			continue
		}
		msg.IsActive = true
		messages = append(messages, &msg)
	}

	return messages, nil
}

func (r *queueRepository) Remove(ctx context.Context, chatID, messageID int64) error {
	key := queueKey(chatID)

	raw, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		r.log.Error("Failed to read chat queue", "error", err, "chat_id", chatID)
		return err
	}

	var stale []string
	for _, item := range raw {
		var entry struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal([]byte(item), &entry); err != nil || entry.ID != messageID {
			continue
		}
		stale = append(stale, item)
	}
	if len(stale) == 0 {
		return nil
	}

	// LREM по значению: запись, уже вытесненная LTRIM, просто не найдется
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range stale {
			pipe.LRem(ctx, key, 0, item)
		}
		return nil
	})
	if err != nil {
		r.log.Error("Failed to remove message from queue", "error", err, "chat_id", chatID, "message_id", messageID)
		return err
	}

	return nil
}
