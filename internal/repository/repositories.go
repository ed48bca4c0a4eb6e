package repository

import (
	"messenger/internal/config"
	"messenger/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Repositories struct {
	User      UserRepository
	Chat      ChatRepository
	Message   MessageRepository
	Call      CallRepository
	Queue     QueueRepository
	Audit     AuditRepository
	RateLimit RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, queueCfg config.QueueConfig, log logger.Logger) *Repositories {
	repos := &Repositories{
		User:      NewUserRepository(db, log),
		Chat:      NewChatRepository(db, log),
		Message:   NewMessageRepository(db, log),
		Call:      NewCallRepository(db, log),
		Queue:     NewQueueRepository(redis, queueCfg.Capacity, queueCfg.TTL, log),
		Audit:     NewAuditRepository(db, log),
		RateLimit: NewRateLimitRepository(redis, log),
	}

	log.Info("Repositories initialized", "queue_capacity", queueCfg.Capacity)

	return repos
}
