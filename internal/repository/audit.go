package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"messenger/internal/domain"
	"messenger/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository - журнал событий чатов, только добавление
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (actor_user_id, actor_role, chat_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING id, event_time
	`

	err = r.db.QueryRow(ctx, query,
		entry.ActorUserID, entry.ActorRole, entry.ChatID, entry.EventType, string(details),
	).Scan(&entry.ID, &entry.EventTime)
	if err != nil {
		r.log.Error("Failed to append audit entry", "error", err, "event_type", entry.EventType, "chat_id", entry.ChatID)
		return err
	}

	return nil
}
