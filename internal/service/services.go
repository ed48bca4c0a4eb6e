package service

import (
	"messenger/internal/config"
	"messenger/internal/repository"
	"messenger/pkg/logger"
)

type Services struct {
	Gatekeeper Gatekeeper
	Chat       ChatService
	Router     MessageRouter
	Read       ReadService
	Replay     ReplayService
	Call       CallService
	Media      MediaService
	RateLimit  RateLimitService
	Audit      AuditService
}

func NewServices(repos *repository.Repositories, publisher Publisher, cfg *config.Config, log logger.Logger) *Services {
	audit := NewAuditService(repos.Audit, log)
	chats := NewChatService(repos.Chat, log)

	return &Services{
		Gatekeeper: NewGatekeeper(repos.User, cfg.JWT, log),
		Chat:       chats,
		Router:     NewMessageRouter(chats, repos.Message, repos.Queue, publisher, audit, log),
		Read:       NewReadService(chats, repos.Message, log),
		Replay:     NewReplayService(chats, repos.Queue, log),
		Call:       NewCallService(chats, repos.Call, publisher, audit, cfg.Call, log),
		Media:      NewMediaService(chats, repos.Call, cfg.LiveKit, log),
		RateLimit:  NewRateLimitService(repos.RateLimit, log),
		Audit:      audit,
	}
}
