package service

import (
	"context"
	"fmt"
	"strconv"

	"messenger/internal/config"
	"messenger/internal/repository"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/livekit/protocol/auth"
)

// MediaToken - доступ к SFU-комнате группового звонка
type MediaToken struct {
	Token string `json:"token"`
	URL   string `json:"url"`
	Room  string `json:"room"`
}

type MediaService interface {
	IssueToken(ctx context.Context, callID, userID int64, displayName string) (*MediaToken, error)
}

type mediaService struct {
	chats    ChatService
	callRepo repository.CallRepository
	cfg      config.LiveKitConfig
	log      logger.Logger
}

func NewMediaService(chats ChatService, callRepo repository.CallRepository, cfg config.LiveKitConfig, log logger.Logger) MediaService {
	return &mediaService{
		chats:    chats,
		callRepo: callRepo,
		cfg:      cfg,
		log:      log,
	}
}

func CallRoomName(callID int64) string {
	return fmt.Sprintf("call-%d", callID)
}

func (s *mediaService) IssueToken(ctx context.Context, callID, userID int64, displayName string) (*MediaToken, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if err := s.chats.RequireMember(ctx, call.ChatID, userID); err != nil {
		return nil, err
	}
	if !call.IsActive {
		return nil, apperrors.ErrCallNotActive
	}

	room := CallRoomName(call.ID)
	canPublish := true
	canSubscribe := true
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         room,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}

	identity := strconv.FormatInt(userID, 10)
	if displayName == "" {
		displayName = identity
	}

	at := auth.NewAccessToken(s.cfg.APIKey, s.cfg.APISecret)
	at.AddGrant(grant).
		SetIdentity(identity).
		SetName(displayName).
		SetValidFor(s.cfg.TokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		s.log.Error("Failed to generate LiveKit token", "error", err, "call_id", callID)
		return nil, fmt.Errorf("generate media token: %w", err)
	}

	return &MediaToken{Token: token, URL: s.cfg.URL, Room: room}, nil
}
