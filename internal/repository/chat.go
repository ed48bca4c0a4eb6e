package repository

import (
	"context"
	"errors"
	"time"

	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatRepository interface {
	GetByID(ctx context.Context, chatID int64) (*domain.Chat, error)
	IsActiveMember(ctx context.Context, chatID, userID int64) (bool, error)
	ActiveMemberIDs(ctx context.Context, chatID int64) ([]int64, error)
	ListForUser(ctx context.Context, userID int64) ([]*domain.ChatSummary, error)
}

type chatRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewChatRepository(db *pgxpool.Pool, log logger.Logger) ChatRepository {
	return &chatRepository{db: db, log: log}
}

func (r *chatRepository) GetByID(ctx context.Context, chatID int64) (*domain.Chat, error) {
	query := `
		SELECT id, is_group, name, created_at, is_active
		FROM chats
		WHERE id = $1
	`

	chat := &domain.Chat{}
	err := r.db.QueryRow(ctx, query, chatID).Scan(
		&chat.ID, &chat.IsGroup, &chat.Name, &chat.CreatedAt, &chat.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrChatNotFound
		}
		r.log.Error("Failed to get chat", "error", err, "chat_id", chatID)
		return nil, err
	}

	return chat, nil
}

// IsActiveMember - членство действует, только если активны и участник, и сам чат
func (r *chatRepository) IsActiveMember(ctx context.Context, chatID, userID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM chat_members cm
			JOIN chats c ON c.id = cm.chat_id
			WHERE cm.chat_id = $1 AND cm.user_id = $2
			  AND cm.is_active = TRUE AND c.is_active = TRUE
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, chatID, userID).Scan(&exists); err != nil {
		r.log.Error("Failed to check chat membership", "error", err, "chat_id", chatID, "user_id", userID)
		return false, err
	}

	return exists, nil
}

func (r *chatRepository) ActiveMemberIDs(ctx context.Context, chatID int64) ([]int64, error) {
	query := `
		SELECT user_id
		FROM chat_members
		WHERE chat_id = $1 AND is_active = TRUE
		ORDER BY user_id
	`

	rows, err := r.db.Query(ctx, query, chatID)
	if err != nil {
		r.log.Error("Failed to list chat members", "error", err, "chat_id", chatID)
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (r *chatRepository) ListForUser(ctx context.Context, userID int64) ([]*domain.ChatSummary, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.created_at, c.is_active,
		       (SELECT COUNT(*)
		          FROM message_status ms
		          JOIN messages m ON m.id = ms.message_id
		         WHERE m.chat_id = c.id AND ms.user_id = $1
		           AND ms.status = 'unread') AS unread_count,
		       lm.id, lm.sender_id, lm.type_id, lm.content, lm.media_url, lm.media_type, lm.created_at
		FROM chat_members cm
		JOIN chats c ON c.id = cm.chat_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, type_id, content, media_url, media_type, created_at
			FROM messages
			WHERE chat_id = c.id AND is_active = TRUE
			ORDER BY id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE cm.user_id = $1 AND cm.is_active = TRUE AND c.is_active = TRUE
		ORDER BY COALESCE(lm.created_at, c.created_at) DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list chats", "error", err, "user_id", userID)
		return nil, err
	}
	defer rows.Close()

	var summaries []*domain.ChatSummary
	for rows.Next() {
		s := &domain.ChatSummary{}
		var (
			lastID        *int64
			lastSender    *int64
			lastType      *int
			lastContent   *string
			lastMediaURL  *string
			lastMediaType *string
			lastCreatedAt *time.Time
		)

		err := rows.Scan(
			&s.ID, &s.IsGroup, &s.Name, &s.CreatedAt, &s.IsActive,
			&s.UnreadCount,
			&lastID, &lastSender, &lastType, &lastContent, &lastMediaURL, &lastMediaType, &lastCreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan chat summary", "error", err)
			return nil, err
		}

		if lastID != nil {
			s.LastMessage = &domain.Message{
				ID:        *lastID,
				ChatID:    s.ID,
				SenderID:  *lastSender,
				TypeID:    domain.MessageType(*lastType),
				Content:   *lastContent,
				MediaURL:  lastMediaURL,
				MediaType: lastMediaType,
				CreatedAt: *lastCreatedAt,
				IsActive:  true,
			}
		}

		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}
