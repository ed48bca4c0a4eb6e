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

type CallRepository interface {
	// StartIfIdle создает звонок, если в чате нет активного.
	// Иначе возвращает текущий активный звонок и ErrCallAlreadyActive.
	StartIfIdle(ctx context.Context, chatID, hostUserID int64) (*domain.CallSession, error)
	GetByID(ctx context.Context, callID int64) (*domain.CallSession, error)
	GetActiveByChat(ctx context.Context, chatID int64) (*domain.CallSession, error)
	End(ctx context.Context, callID int64, reason string) (*domain.CallSession, error)
	Touch(ctx context.Context, callID int64) error
	ListStale(ctx context.Context, heartbeatBefore time.Time) ([]*domain.CallSession, error)
}

type callRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewCallRepository(db *pgxpool.Pool, log logger.Logger) CallRepository {
	return &callRepository{db: db, log: log}
}

const callColumns = `id, chat_id, host_user_id, started_at, ended_at, last_heartbeat_at, is_active, end_reason`

func scanCall(row pgx.Row) (*domain.CallSession, error) {
	call := &domain.CallSession{}
	err := row.Scan(
		&call.ID, &call.ChatID, &call.HostUserID, &call.StartedAt, &call.EndedAt,
		&call.LastHeartbeatAt, &call.IsActive, &call.EndReason,
	)
	if err != nil {
		return nil, err
	}
	return call, nil
}

func (r *callRepository) StartIfIdle(ctx context.Context, chatID, hostUserID int64) (*domain.CallSession, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Блокировка строки чата сериализует конкурентные попытки начать звонок:
	// побеждает первая закоммиченная.
	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM chats WHERE id = $1 AND is_active = TRUE FOR UPDATE`, chatID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrChatNotFound
		}
		r.log.Error("Failed to lock chat", "error", err, "chat_id", chatID)
		return nil, err
	}

	existing, err := scanCall(tx.QueryRow(ctx,
		`SELECT `+callColumns+` FROM call_sessions WHERE chat_id = $1 AND is_active = TRUE`, chatID))
	if err == nil {
		return existing, apperrors.ErrCallAlreadyActive
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("Failed to check active call", "error", err, "chat_id", chatID)
		return nil, err
	}

	call, err := scanCall(tx.QueryRow(ctx, `
		INSERT INTO call_sessions (chat_id, host_user_id, started_at, last_heartbeat_at, is_active)
		VALUES ($1, $2, NOW(), NOW(), TRUE)
		RETURNING `+callColumns,
		chatID, hostUserID,
	))
	if err != nil {
		r.log.Error("Failed to create call session", "error", err, "chat_id", chatID)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit call session", "error", err, "chat_id", chatID)
		return nil, err
	}

	return call, nil
}

func (r *callRepository) GetByID(ctx context.Context, callID int64) (*domain.CallSession, error) {
	call, err := scanCall(r.db.QueryRow(ctx,
		`SELECT `+callColumns+` FROM call_sessions WHERE id = $1`, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCallNotFound
		}
		r.log.Error("Failed to get call session", "error", err, "call_id", callID)
		return nil, err
	}
	return call, nil
}

func (r *callRepository) GetActiveByChat(ctx context.Context, chatID int64) (*domain.CallSession, error) {
	call, err := scanCall(r.db.QueryRow(ctx,
		`SELECT `+callColumns+` FROM call_sessions WHERE chat_id = $1 AND is_active = TRUE`, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCallNotFound
		}
		r.log.Error("Failed to get active call", "error", err, "chat_id", chatID)
		return nil, err
	}
	return call, nil
}

// End закрывает активный звонок. Для уже завершенного возвращает ErrCallNotActive.
func (r *callRepository) End(ctx context.Context, callID int64, reason string) (*domain.CallSession, error) {
	call, err := scanCall(r.db.QueryRow(ctx, `
		UPDATE call_sessions
		SET is_active = FALSE, ended_at = NOW(), end_reason = $2
		WHERE id = $1 AND is_active = TRUE
		RETURNING `+callColumns,
		callID, reason,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrCallNotActive
		}
		r.log.Error("Failed to end call session", "error", err, "call_id", callID)
		return nil, err
	}
	return call, nil
}

func (r *callRepository) Touch(ctx context.Context, callID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE call_sessions SET last_heartbeat_at = NOW() WHERE id = $1 AND is_active = TRUE`, callID)
	if err != nil {
		r.log.Error("Failed to update call heartbeat", "error", err, "call_id", callID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrCallNotActive
	}
	return nil
}

func (r *callRepository) ListStale(ctx context.Context, heartbeatBefore time.Time) ([]*domain.CallSession, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+callColumns+`
		FROM call_sessions
		WHERE is_active = TRUE AND last_heartbeat_at < $1
		ORDER BY id
	`, heartbeatBefore)
	if err != nil {
		r.log.Error("Failed to list stale calls", "error", err)
		return nil, err
	}
	defer rows.Close()

	var calls []*domain.CallSession
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	return calls, rows.Err()
}
