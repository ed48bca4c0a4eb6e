package handler

import (
	"net/http"
	"strconv"

	"messenger/internal/gateway"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health    *HealthHandler
	Chat      *ChatHandler
	Message   *MessageHandler
	Call      *CallHandler
	Media     *MediaHandler
	WebSocket *gateway.WebSocketTransport
	Stream    *gateway.StreamTransport
}

func NewHandlers(
	services *service.Services,
	ws *gateway.WebSocketTransport,
	stream *gateway.StreamTransport,
	sessions SessionCounter,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(sessions),
		Chat:      NewChatHandler(services.Chat, services.Read, services.Router, services.Replay, log),
		Message:   NewMessageHandler(services.Router, services.Read, log),
		Call:      NewCallHandler(services.Call, log),
		Media:     NewMediaHandler(services.Media, log),
		WebSocket: ws,
		Stream:    stream,
	}
}

// currentUserID достает пользователя, выставленного AuthMiddleware
func currentUserID(c *gin.Context) (int64, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	userID, ok := value.(int64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	return userID, true
}

func parseIDParam(c *gin.Context, name, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " ID"})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, log logger.Logger, err error) {
	status := apperrors.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err, "path", c.FullPath())
	}
	c.JSON(status, gin.H{"error": apperrors.PublicMessage(err)})
}
