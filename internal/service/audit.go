package service

import (
	"context"

	"messenger/internal/domain"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

type AuditService interface {
	Record(ctx context.Context, entry *domain.AuditEntry)
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

// Record не возвращает ошибку: операция уже выполнена, запись в журнал
// только логируется при сбое.
func (s *auditService) Record(ctx context.Context, entry *domain.AuditEntry) {
	if err := s.auditRepo.Append(ctx, entry); err != nil {
		s.log.Warn("Failed to write audit entry", "error", err, "event_type", entry.EventType, "chat_id", entry.ChatID)
	}
}
