package repository

import (
	"context"
	"errors"
	"fmt"

	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository interface {
	// CreateWithStatuses сохраняет сообщение и по одной unread-строке
	// статуса на каждого активного участника, кроме отправителя.
	// Возвращает id получателей.
	CreateWithStatuses(ctx context.Context, message *domain.Message) ([]int64, error)
	GetByID(ctx context.Context, messageID int64) (*domain.Message, error)
	History(ctx context.Context, chatID, viewerID int64, limit int, beforeID int64) ([]*domain.Message, error)
	SoftDelete(ctx context.Context, messageID int64) error
	MarkRead(ctx context.Context, chatID, userID int64) (int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) CreateWithStatuses(ctx context.Context, message *domain.Message) ([]int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	// created_at всегда серверное
	insertMessage := `
		INSERT INTO messages (chat_id, sender_id, type_id, content, media_url, media_type, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insertMessage,
		message.ChatID, message.SenderID, int(message.TypeID), message.Content,
		message.MediaURL, message.MediaType,
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		r.log.Error("Failed to insert message", "error", err, "chat_id", message.ChatID)
		return nil, err
	}
	message.IsActive = true

	// Участники, добавленные позже, строк статуса для этого сообщения не получают
	insertStatuses := `
		INSERT INTO message_status (message_id, user_id, status, created_at)
		SELECT $1, cm.user_id, 'unread', NOW()
		FROM chat_members cm
		WHERE cm.chat_id = $2 AND cm.is_active = TRUE AND cm.user_id <> $3
		RETURNING user_id
	`
	rows, err := tx.Query(ctx, insertStatuses, message.ID, message.ChatID, message.SenderID)
	if err != nil {
		r.log.Error("Failed to insert message statuses", "error", err, "message_id", message.ID)
		return nil, err
	}

	var recipients []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return nil, err
		}
		recipients = append(recipients, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		r.log.Error("Failed to read inserted statuses", "error", err, "message_id", message.ID)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit message", "error", err, "message_id", message.ID)
		return nil, fmt.Errorf("commit message: %w", err)
	}

	return recipients, nil
}

func (r *messageRepository) GetByID(ctx context.Context, messageID int64) (*domain.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, type_id, content, media_url, media_type, created_at, is_active
		FROM messages
		WHERE id = $1
	`

	msg := &domain.Message{}
	var typeID int
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&msg.ID, &msg.ChatID, &msg.SenderID, &typeID, &msg.Content,
		&msg.MediaURL, &msg.MediaType, &msg.CreatedAt, &msg.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, err
	}
	msg.TypeID = domain.MessageType(typeID)

	return msg, nil
}

// History возвращает страницу активных сообщений от новых к старым.
// beforeID = 0 означает первую страницу. Status заполняется с точки
// зрения viewerID (для собственных сообщений он пустой).
func (r *messageRepository) History(ctx context.Context, chatID, viewerID int64, limit int, beforeID int64) ([]*domain.Message, error) {
	query := `
		SELECT m.id, m.chat_id, m.sender_id, m.type_id, m.content, m.media_url, m.media_type,
		       m.created_at, m.is_active, ms.status
		FROM messages m
		LEFT JOIN message_status ms ON ms.message_id = m.id AND ms.user_id = $2
		WHERE m.chat_id = $1 AND m.is_active = TRUE
		  AND ($3::bigint = 0 OR m.id < $3::bigint)
		ORDER BY m.id DESC
		LIMIT $4
	`

	rows, err := r.db.Query(ctx, query, chatID, viewerID, beforeID, limit)
	if err != nil {
		r.log.Error("Failed to get history", "error", err, "chat_id", chatID)
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		msg := &domain.Message{}
		var (
			typeID int
			status *string
		)
		err := rows.Scan(
			&msg.ID, &msg.ChatID, &msg.SenderID, &typeID, &msg.Content,
			&msg.MediaURL, &msg.MediaType, &msg.CreatedAt, &msg.IsActive, &status,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		msg.TypeID = domain.MessageType(typeID)
		if status != nil {
			s := domain.StatusValue(*status)
			msg.Status = &s
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID int64) error {
	query := `UPDATE messages SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`

	tag, err := r.db.Exec(ctx, query, messageID)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "message_id", messageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

// MarkRead идемпотентен: повторный вызов просто ничего не меняет
func (r *messageRepository) MarkRead(ctx context.Context, chatID, userID int64) (int64, error) {
	query := `
		UPDATE message_status ms
		SET status = 'read'
		FROM messages m
		WHERE ms.message_id = m.id
		  AND m.chat_id = $1 AND ms.user_id = $2 AND ms.status = 'unread'
	`

	tag, err := r.db.Exec(ctx, query, chatID, userID)
	if err != nil {
		r.log.Error("Failed to mark chat read", "error", err, "chat_id", chatID, "user_id", userID)
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (r *messageRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM message_status
		WHERE user_id = $1 AND status = 'unread'
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count unread", "error", err, "user_id", userID)
		return 0, err
	}

	return count, nil
}
