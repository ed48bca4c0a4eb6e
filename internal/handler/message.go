package handler

import (
	"net/http"

	"messenger/internal/service"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	router      service.MessageRouter
	readService service.ReadService
	log         logger.Logger
}

func NewMessageHandler(router service.MessageRouter, readService service.ReadService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		router:      router,
		readService: readService,
		log:         log,
	}
}

func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := parseIDParam(c, "id", "message")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.router.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	count, err := h.readService.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}
