package service

import (
	"context"

	"messenger/internal/domain"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// ReadService - история сообщений и отметки о прочтении
type ReadService interface {
	// History отдает страницу сообщений и заодно помечает чат прочитанным
	History(ctx context.Context, chatID, userID int64, limit int, beforeID int64) ([]*domain.Message, error)
	MarkRead(ctx context.Context, chatID, userID int64) (int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

type readService struct {
	chats       ChatService
	messageRepo repository.MessageRepository
	log         logger.Logger
}

func NewReadService(chats ChatService, messageRepo repository.MessageRepository, log logger.Logger) ReadService {
	return &readService{
		chats:       chats,
		messageRepo: messageRepo,
		log:         log,
	}
}

func (s *readService) History(ctx context.Context, chatID, userID int64, limit int, beforeID int64) ([]*domain.Message, error) {
	if err := s.chats.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if beforeID < 0 {
		beforeID = 0
	}

	messages, err := s.messageRepo.History(ctx, chatID, userID, limit, beforeID)
	if err != nil {
		return nil, err
	}

	if _, err := s.messageRepo.MarkRead(ctx, chatID, userID); err != nil {
		s.log.Warn("History fetched but chat not marked read", "error", err, "chat_id", chatID, "user_id", userID)
	}

	return messages, nil
}

func (s *readService) MarkRead(ctx context.Context, chatID, userID int64) (int64, error) {
	if err := s.chats.RequireMember(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return s.messageRepo.MarkRead(ctx, chatID, userID)
}

func (s *readService) CountUnread(ctx context.Context, userID int64) (int64, error) {
	return s.messageRepo.CountUnread(ctx, userID)
}
