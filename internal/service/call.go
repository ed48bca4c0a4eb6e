package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"messenger/internal/config"
	"messenger/internal/domain"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/pion/webrtc/v4"
)

type SignalInput struct {
	ChatID   int64             `json:"chatId"`
	SenderID int64             `json:"-"`
	Kind     domain.SignalKind `json:"kind"`
	Payload  json.RawMessage   `json:"payload"`
}

type CallService interface {
	StartCall(ctx context.Context, chatID, userID int64) (*domain.CallSession, error)
	EndCall(ctx context.Context, callID, userID int64) (*domain.CallSession, error)
	ActiveCall(ctx context.Context, chatID, userID int64) (*domain.CallSession, error)
	Heartbeat(ctx context.Context, callID, userID int64) error
	// Relay пересылает offer/answer/ICE в call/{chatId} без изменений
	Relay(ctx context.Context, input SignalInput) error
	// ExpireStale завершает звонки без heartbeat дольше таймаута
	ExpireStale(ctx context.Context, now time.Time) (int, error)
	ICEServers() []webrtc.ICEServer
}

type callService struct {
	chats     ChatService
	callRepo  repository.CallRepository
	publisher Publisher
	audit     AuditService
	cfg       config.CallConfig
	log       logger.Logger
}

func NewCallService(
	chats ChatService,
	callRepo repository.CallRepository,
	publisher Publisher,
	audit AuditService,
	cfg config.CallConfig,
	log logger.Logger,
) CallService {
	return &callService{
		chats:     chats,
		callRepo:  callRepo,
		publisher: publisher,
		audit:     audit,
		cfg:       cfg,
		log:       log,
	}
}

func (s *callService) StartCall(ctx context.Context, chatID, userID int64) (*domain.CallSession, error) {
	if err := s.chats.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}

	call, err := s.callRepo.StartIfIdle(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrCallAlreadyActive) {
			s.log.Info("Call already active", "chat_id", chatID, "user_id", userID)
		}
		return nil, err
	}

	s.publishEvent(ctx, domain.EventCallStarted, call)
	s.audit.Record(ctx, domain.CallAudit(domain.EventTypeCallStarted, call, &userID))

	s.log.Info("Call started", "call_id", call.ID, "chat_id", chatID, "host", userID)
	return call, nil
}

func (s *callService) EndCall(ctx context.Context, callID, userID int64) (*domain.CallSession, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	// хост, покинувший чат, теряет управление звонком
	if err := s.chats.RequireMember(ctx, call.ChatID, userID); err != nil {
		return nil, err
	}
	if call.HostUserID != userID {
		return nil, apperrors.ErrNotCallHost
	}
	if !call.IsActive {
		return nil, apperrors.ErrCallNotActive
	}

	ended, err := s.callRepo.End(ctx, callID, domain.CallEndReasonHangup)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, domain.EventCallEnded, ended)
	s.audit.Record(ctx, domain.CallAudit(domain.EventTypeCallEnded, ended, &userID))

	s.log.Info("Call ended", "call_id", callID, "chat_id", ended.ChatID)
	return ended, nil
}

func (s *callService) ActiveCall(ctx context.Context, chatID, userID int64) (*domain.CallSession, error) {
	if err := s.chats.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.callRepo.GetActiveByChat(ctx, chatID)
}

func (s *callService) Heartbeat(ctx context.Context, callID, userID int64) error {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if err := s.chats.RequireMember(ctx, call.ChatID, userID); err != nil {
		return err
	}
	if call.HostUserID != userID {
		return apperrors.ErrNotCallHost
	}
	return s.callRepo.Touch(ctx, callID)
}

func (s *callService) Relay(ctx context.Context, input SignalInput) error {
	if err := s.chats.RequireMember(ctx, input.ChatID, input.SenderID); err != nil {
		return err
	}
	if err := validateSignal(input.Kind, input.Payload); err != nil {
		return err
	}

	envelope, err := json.Marshal(domain.Signal{
		ChatID:   input.ChatID,
		SenderID: input.SenderID,
		Kind:     input.Kind,
		Payload:  input.Payload,
	})
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, domain.CallTopic(input.ChatID), envelope); err != nil {
		s.log.Warn("Failed to relay signal", "error", err, "chat_id", input.ChatID, "kind", input.Kind)
	}
	return nil
}

// validateSignal проверяет только форму payload, содержимое SDP/ICE не разбирается
func validateSignal(kind domain.SignalKind, payload json.RawMessage) error {
	if len(payload) == 0 {
		return apperrors.ErrInvalidPayload
	}

	switch kind {
	case domain.SignalOffer, domain.SignalAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(payload, &desc); err != nil || desc.SDP == "" {
			return apperrors.ErrInvalidPayload
		}
		if kind == domain.SignalOffer && desc.Type != webrtc.SDPTypeOffer {
			return apperrors.BadRequest("offer payload has type %s", desc.Type)
		}
		if kind == domain.SignalAnswer && desc.Type != webrtc.SDPTypeAnswer && desc.Type != webrtc.SDPTypePranswer {
			return apperrors.BadRequest("answer payload has type %s", desc.Type)
		}
	case domain.SignalICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &candidate); err != nil {
			return apperrors.ErrInvalidPayload
		}
	default:
		return apperrors.BadRequest("unknown signal kind %q", kind)
	}

	return nil
}

func (s *callService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.callRepo.ListStale(ctx, now.Add(-s.cfg.HeartbeatTimeout))
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, call := range stale {
		ended, err := s.callRepo.End(ctx, call.ID, domain.CallEndReasonExpired)
		if err != nil {
			// Хост мог завершить звонок между выборкой и обновлением
			if errors.Is(err, apperrors.ErrCallNotActive) {
				continue
			}
			s.log.Error("Failed to expire call", "error", err, "call_id", call.ID)
			continue
		}

		expired++
		s.publishEvent(ctx, domain.EventCallEnded, ended)
		s.audit.Record(ctx, domain.CallAudit(domain.EventTypeCallExpired, ended, nil))
		s.log.Info("Call expired", "call_id", ended.ID, "chat_id", ended.ChatID)
	}

	return expired, nil
}

func (s *callService) ICEServers() []webrtc.ICEServer {
	if len(s.cfg.ICEServerURLs) == 0 {
		return []webrtc.ICEServer{}
	}
	return []webrtc.ICEServer{{URLs: s.cfg.ICEServerURLs}}
}

func (s *callService) publishEvent(ctx context.Context, event string, call *domain.CallSession) {
	payload, err := json.Marshal(domain.CallEvent{Event: event, Call: call})
	if err != nil {
		s.log.Error("Failed to marshal call event", "error", err, "call_id", call.ID)
		return
	}
	if err := s.publisher.Publish(ctx, domain.CallTopic(call.ChatID), payload); err != nil {
		s.log.Warn("Failed to publish call event", "error", err, "call_id", call.ID, "event", event)
	}
}
