package handler

import (
	"net/http"
	"strings"

	"messenger/internal/service"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
)

type MediaHandler struct {
	mediaService service.MediaService
	log          logger.Logger
}

func NewMediaHandler(mediaService service.MediaService, log logger.Logger) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		log:          log,
	}
}

type GetTokenRequest struct {
	DisplayName string `json:"displayName"`
}

// GetToken выдает токен SFU для медиа звонка; по умолчанию имя - username
func (h *MediaHandler) GetToken(c *gin.Context) {
	callID, ok := parseIDParam(c, "id", "call")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req GetTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = c.GetString("username")
	}

	token, err := h.mediaService.IssueToken(c.Request.Context(), callID, userID, displayName)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, token)
}
