package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"unicode/utf8"

	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

const (
	MaxMessageContentLength = 4000
	chatLockStripes         = 64
)

// Publisher - доставка полезной нагрузки подписчикам топика.
// Реализуется брокером realtime-шлюза.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type SendMessageInput struct {
	ChatID    int64              `json:"chatId"`
	SenderID  int64              `json:"-"`
	TypeID    domain.MessageType `json:"typeId"`
	Content   string             `json:"content"`
	MediaURL  *string            `json:"mediaUrl,omitempty"`
	MediaType *string            `json:"mediaType,omitempty"`
}

// MessageRouter принимает сообщение, сохраняет его вместе со статусами
// получателей и раздает в топики чата и получателей.
type MessageRouter interface {
	SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID int64) error
}

type messageRouter struct {
	chats       ChatService
	messageRepo repository.MessageRepository
	queueRepo   repository.QueueRepository
	publisher   Publisher
	audit       AuditService
	log         logger.Logger

	// Запись и публикация в пределах одного чата идут строго по очереди,
	// иначе подписчики могут увидеть сообщения не в порядке сохранения.
	chatLocks [chatLockStripes]sync.Mutex
}

func NewMessageRouter(
	chats ChatService,
	messageRepo repository.MessageRepository,
	queueRepo repository.QueueRepository,
	publisher Publisher,
	audit AuditService,
	log logger.Logger,
) MessageRouter {
	return &messageRouter{
		chats:       chats,
		messageRepo: messageRepo,
		queueRepo:   queueRepo,
		publisher:   publisher,
		audit:       audit,
		log:         log,
	}
}

func (s *messageRouter) lockChat(chatID int64) func() {
	mu := &s.chatLocks[uint64(chatID)%chatLockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *messageRouter) SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	if err := s.chats.RequireMember(ctx, input.ChatID, input.SenderID); err != nil {
		return nil, err
	}

	message, err := buildMessage(input)
	if err != nil {
		return nil, err
	}

	unlock := s.lockChat(input.ChatID)
	defer unlock()

	recipients, err := s.messageRepo.CreateWithStatuses(ctx, message)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, message, recipients)

	if err := s.queueRepo.Enqueue(ctx, message); err != nil {
		s.log.Warn("Message persisted but not queued", "error", err, "message_id", message.ID, "chat_id", message.ChatID)
	}

	s.log.Debug("Message routed", "message_id", message.ID, "chat_id", message.ChatID, "recipients", len(recipients))
	return message, nil
}

// broadcast не возвращает ошибок: сообщение уже сохранено и доступно
// через историю и replay.
func (s *messageRouter) broadcast(ctx context.Context, message *domain.Message, recipients []int64) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.log.Error("Failed to marshal message", "error", err, "message_id", message.ID)
		return
	}

	if err := s.publisher.Publish(ctx, domain.ChatTopic(message.ChatID), payload); err != nil {
		s.log.Warn("Failed to publish to chat topic", "error", err, "message_id", message.ID, "chat_id", message.ChatID)
	}

	for _, userID := range recipients {
		if err := s.publisher.Publish(ctx, domain.UserTopic(userID), payload); err != nil {
			s.log.Warn("Failed to publish to user topic", "error", err, "message_id", message.ID, "user_id", userID)
		}
	}
}

func buildMessage(input SendMessageInput) (*domain.Message, error) {
	if !input.TypeID.Valid() {
		return nil, apperrors.ErrInvalidMessageType
	}

	content := strings.TrimSpace(input.Content)
	if utf8.RuneCountInString(content) > MaxMessageContentLength {
		return nil, apperrors.BadRequest("content exceeds %d characters", MaxMessageContentLength)
	}

	mediaURL := trimmedOrNil(input.MediaURL)
	mediaType := trimmedOrNil(input.MediaType)

	if input.TypeID.IsMedia() {
		if mediaURL == nil {
			return nil, apperrors.BadRequest("mediaUrl is required for %s messages", input.TypeID)
		}
	} else if content == "" {
		return nil, apperrors.BadRequest("content is required")
	}

	return &domain.Message{
		ChatID:    input.ChatID,
		SenderID:  input.SenderID,
		TypeID:    input.TypeID,
		Content:   content,
		MediaURL:  mediaURL,
		MediaType: mediaType,
	}, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// DeleteMessage - мягкое удаление, доступно только отправителю
func (s *messageRouter) DeleteMessage(ctx context.Context, messageID, userID int64) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !message.IsActive {
		return apperrors.ErrMessageNotFound
	}

	if err := s.chats.RequireMember(ctx, message.ChatID, userID); err != nil {
		return err
	}
	if message.SenderID != userID {
		return apperrors.ErrNotMessageSender
	}

	unlock := s.lockChat(message.ChatID)
	defer unlock()

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	if err := s.queueRepo.Remove(ctx, message.ChatID, messageID); err != nil {
		s.log.Warn("Message deleted but still queued", "error", err, "message_id", messageID, "chat_id", message.ChatID)
	}

	event, err := json.Marshal(domain.MessageDeleted{
		Event:     domain.EventMessageDeleted,
		MessageID: message.ID,
		ChatID:    message.ChatID,
	})
	if err == nil {
		if err := s.publisher.Publish(ctx, domain.ChatTopic(message.ChatID), event); err != nil {
			s.log.Warn("Failed to publish message deletion", "error", err, "message_id", messageID)
		}
	}

	s.audit.Record(ctx, domain.MessageDeletedAudit(message, userID))

	return nil
}
