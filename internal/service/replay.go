package service

import (
	"context"

	"messenger/internal/domain"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

// ReplayService отдает последние сообщения чата из очереди для
// переподключившихся клиентов. Источник истины - хранилище сообщений.
type ReplayService interface {
	Replay(ctx context.Context, chatID, userID int64) ([]*domain.Message, error)
}

type replayService struct {
	chats     ChatService
	queueRepo repository.QueueRepository
	log       logger.Logger
}

func NewReplayService(chats ChatService, queueRepo repository.QueueRepository, log logger.Logger) ReplayService {
	return &replayService{
		chats:     chats,
		queueRepo: queueRepo,
		log:       log,
	}
}

func (s *replayService) Replay(ctx context.Context, chatID, userID int64) ([]*domain.Message, error) {
	if err := s.chats.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}

	messages, err := s.queueRepo.Replay(ctx, chatID)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Replaying chat queue", "chat_id", chatID, "user_id", userID, "count", len(messages))
	return messages, nil
}
