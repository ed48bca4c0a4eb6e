package handler

import (
	"net/http"

	"messenger/internal/service"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callService service.CallService
	log         logger.Logger
}

func NewCallHandler(callService service.CallService, log logger.Logger) *CallHandler {
	return &CallHandler{
		callService: callService,
		log:         log,
	}
}

func (h *CallHandler) Start(c *gin.Context) {
	chatID, ok := parseIDParam(c, "id", "chat")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	call, err := h.callService.StartCall(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, call)
}

func (h *CallHandler) Active(c *gin.Context) {
	chatID, ok := parseIDParam(c, "id", "chat")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	call, err := h.callService.ActiveCall(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, call)
}

func (h *CallHandler) End(c *gin.Context) {
	callID, ok := parseIDParam(c, "id", "call")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	call, err := h.callService.EndCall(c.Request.Context(), callID, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, call)
}

func (h *CallHandler) Heartbeat(c *gin.Context) {
	callID, ok := parseIDParam(c, "id", "call")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.callService.Heartbeat(c.Request.Context(), callID, userID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CallHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.callService.ICEServers()})
}
