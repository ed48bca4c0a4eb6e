package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"messenger/internal/domain"
	"messenger/internal/service"
	"messenger/internal/session"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/google/uuid"
)

const deliveryCheckTimeout = 5 * time.Second

type Options struct {
	SendBuffer      int
	FramesPerSecond int
}

// Server - общая для всех транспортов логика соединения:
// открытие сессии, обработка фреймов и обязательная очистка.
type Server struct {
	registry   *session.Registry
	hub        *Hub
	gatekeeper service.Gatekeeper
	chats      service.ChatService
	replay     service.ReplayService
	dispatcher *Dispatcher
	pipeline   *Pipeline
	opts       Options
	log        logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewServer(
	registry *session.Registry,
	hub *Hub,
	services *service.Services,
	opts Options,
	log logger.Logger,
) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}

	srv := &Server{
		registry:   registry,
		hub:        hub,
		gatekeeper: services.Gatekeeper,
		chats:      services.Chat,
		replay:     services.Replay,
		dispatcher: NewDispatcher(services.Router, services.Call, log),
		pipeline: NewPipeline(
			PaceFrames(),
			RequireIdentity(registry),
			ValidateDestination(),
			AuthorizeSubscription(registry, services.Chat),
		),
		opts:     opts,
		log:      log,
		sessions: make(map[string]*Session),
	}
	hub.SetDeliveryCheck(srv.checkDelivery)
	return srv
}

// checkDelivery: членство в чате может смениться посреди сессии,
// поэтому chat/{id} и call/{id} проверяются на каждой доставке.
func (srv *Server) checkDelivery(topic string, s *Session) error {
	kind, chatID, _ := domain.ParseTopic(topic)
	if kind != domain.TopicChat && kind != domain.TopicCall {
		return nil
	}

	cred, ok := srv.registry.Resolve(s.ID)
	if !ok {
		return apperrors.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryCheckTimeout)
	defer cancel()
	return srv.chats.RequireMember(ctx, chatID, cred.UserID)
}

// Open создает сессию. identity != nil, если токен был проверен при апгрейде.
func (srv *Server) Open(identity *service.Identity, remoteAddr, transport string) *Session {
	s := newSession(uuid.NewString(), remoteAddr, transport, srv.opts.SendBuffer, srv.opts.FramesPerSecond)

	if identity != nil {
		srv.registerIdentity(s, identity)
	}

	srv.mu.Lock()
	srv.sessions[s.ID] = s
	srv.mu.Unlock()

	srv.log.Debug("Session opened", "session_id", s.ID, "transport", transport, "remote", remoteAddr, "authenticated", identity != nil)
	return s
}

func (srv *Server) registerIdentity(s *Session, identity *service.Identity) {
	srv.registry.Register(s.ID, session.Credential{
		Token:    identity.Token,
		Username: identity.Username,
		UserID:   identity.UserID,
	})
}

// Close снимает все подписки, удаляет запись из реестра и закрывает
// очередь. Вызывается на любом пути завершения соединения.
func (srv *Server) Close(s *Session) {
	// сначала закрываем сессию: Hub.Subscribe после этого ее не примет
	s.Close()
	srv.hub.UnsubscribeAll(s)
	srv.registry.Evict(s.ID)

	srv.mu.Lock()
	_, existed := srv.sessions[s.ID]
	delete(srv.sessions, s.ID)
	srv.mu.Unlock()

	if existed {
		srv.log.Debug("Session closed", "session_id", s.ID, "transport", s.Transport)
	}
}

func (srv *Server) Lookup(sessionID string) (*Session, bool) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	s, ok := srv.sessions[sessionID]
	return s, ok
}

func (srv *Server) ActiveSessions() int {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return len(srv.sessions)
}

// Shutdown закрывает все сессии. Транспорты завершают соединения,
// увидев закрытую очередь.
func (srv *Server) Shutdown() {
	srv.mu.RLock()
	sessions := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.RUnlock()

	for _, s := range sessions {
		srv.Close(s)
	}
}

// HandleFrame обрабатывает один входящий фрейм. Возвращает true,
// если соединение нужно закрыть.
func (srv *Server) HandleFrame(ctx context.Context, s *Session, f *Frame) bool {
	receipt := f.Header(HeaderReceipt)

	if err := srv.pipeline.Run(ctx, s, f); err != nil {
		srv.reject(s, f, err, receipt)
		return false
	}

	switch f.Command {
	case CommandConnect:
		srv.handleConnect(ctx, s, f)
		return false

	case CommandSubscribe:
		srv.handleSubscribe(ctx, s, f)

	case CommandUnsubscribe:
		target := f.Destination
		if target == "" {
			target = f.Header(HeaderID)
		}
		if topic, ok := s.unsubscribe(target); ok {
			srv.hub.Unsubscribe(topic, s)
		}

	case CommandSend:
		cred, _ := srv.registry.Resolve(s.ID)
		if err := srv.dispatcher.Dispatch(ctx, cred.UserID, f); err != nil {
			srv.reject(s, f, err, receipt)
			return false
		}

	case CommandDisconnect:
		if receipt != "" {
			s.Enqueue(receiptFrame(receipt))
		}
		return true
	}

	if receipt != "" {
		s.Enqueue(receiptFrame(receipt))
	}
	return false
}

func (srv *Server) reject(s *Session, f *Frame, err error, receipt string) {
	if apperrors.HTTPStatusFromError(err) >= 500 {
		srv.log.Error("Frame failed", "error", err, "session_id", s.ID, "command", f.Command, "destination", f.Destination)
	} else {
		srv.log.Debug("Frame rejected", "error", err, "session_id", s.ID, "command", f.Command, "destination", f.Destination)
	}
	s.Enqueue(errorFrame(err, receipt))
}

// handleConnect: токен из заголовка Authorization фрейма имеет приоритет.
// Без токена CONNECT проходит, только если сессия уже аутентифицирована
// при апгрейде. Неудачный CONNECT оставляет сессию без личности.
func (srv *Server) handleConnect(ctx context.Context, s *Session, f *Frame) {
	receipt := f.Header(HeaderReceipt)
	token := service.BearerFromHeader(f.Header(HeaderAuthorization))

	if token == "" {
		cred, ok := srv.registry.Resolve(s.ID)
		if !ok {
			srv.reject(s, f, apperrors.ErrUnauthorized, receipt)
			return
		}
		s.Enqueue(connectedFrame(s.ID, cred.Username))
		return
	}

	identity, err := srv.gatekeeper.Authenticate(ctx, token)
	if err != nil {
		srv.registry.Evict(s.ID)
		srv.reject(s, f, err, receipt)
		return
	}

	srv.registerIdentity(s, identity)
	s.Enqueue(connectedFrame(s.ID, identity.Username))
	srv.log.Debug("Session authenticated", "session_id", s.ID, "user_id", identity.UserID)
}

func (srv *Server) handleSubscribe(ctx context.Context, s *Session, f *Frame) {
	topic := f.Destination
	subID := f.Header(HeaderID)
	if subID == "" {
		subID = topic
	}

	s.subscribe(topic, subID)
	if !srv.hub.Subscribe(topic, s) {
		s.unsubscribe(topic)
		return
	}

	if !strings.EqualFold(f.Header(HeaderReplay), "true") {
		return
	}
	kind, chatID, _ := domain.ParseTopic(topic)
	if kind != domain.TopicChat {
		return
	}

	cred, _ := srv.registry.Resolve(s.ID)
	messages, err := srv.replay.Replay(ctx, chatID, cred.UserID)
	if err != nil {
		srv.log.Warn("Replay failed", "error", err, "session_id", s.ID, "chat_id", chatID)
		return
	}
	for _, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		frame := messageFrame(topic, subID, payload)
		frame.Headers[HeaderReplay] = "true"
		if !s.Enqueue(frame) {
			return
		}
	}
}
