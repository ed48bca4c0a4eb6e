package service

import (
	"context"

	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

// ChatService - проверки членства в чатах. Результат не кэшируется:
// участника могут удалить посреди сессии.
type ChatService interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	RequireMember(ctx context.Context, chatID, userID int64) error
	ListChats(ctx context.Context, userID int64) ([]*domain.ChatSummary, error)
	Members(ctx context.Context, chatID, userID int64) ([]int64, error)
}

type chatService struct {
	chatRepo repository.ChatRepository
	log      logger.Logger
}

func NewChatService(chatRepo repository.ChatRepository, log logger.Logger) ChatService {
	return &chatService{
		chatRepo: chatRepo,
		log:      log,
	}
}

func (s *chatService) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	if chatID <= 0 || userID <= 0 {
		return false, nil
	}
	return s.chatRepo.IsActiveMember(ctx, chatID, userID)
}

// RequireMember не различает "чата нет" и "не участник",
// чтобы не раскрывать существование чужих чатов.
func (s *chatService) RequireMember(ctx context.Context, chatID, userID int64) error {
	ok, err := s.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("Membership check failed", "chat_id", chatID, "user_id", userID)
		return apperrors.ErrNotChatMember
	}
	return nil
}

func (s *chatService) ListChats(ctx context.Context, userID int64) ([]*domain.ChatSummary, error) {
	chats, err := s.chatRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []*domain.ChatSummary{}
	}
	return chats, nil
}

func (s *chatService) Members(ctx context.Context, chatID, userID int64) ([]int64, error) {
	if err := s.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.chatRepo.ActiveMemberIDs(ctx, chatID)
}
