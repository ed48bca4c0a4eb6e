package handler

import (
	"net/http"
	"strconv"

	"messenger/internal/service"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService   service.ChatService
	readService   service.ReadService
	router        service.MessageRouter
	replayService service.ReplayService
	log           logger.Logger
}

func NewChatHandler(
	chatService service.ChatService,
	readService service.ReadService,
	router service.MessageRouter,
	replayService service.ReplayService,
	log logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		readService:   readService,
		router:        router,
		replayService: replayService,
		log:           log,
	}
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, chats)
}

func (h *ChatHandler) Members(c *gin.Context) {
	chatID, ok := parseIDParam(c, "id", "chat")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	members, err := h.chatService.Members(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "members": members})
}

// GetMessages отдает историю от новых к старым; ?before=<id> - следующая страница
func (h *ChatHandler) GetMessages(c *gin.Context) {
	chatID, ok := parseIDParam(c, "id", "chat")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	before, err := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)
	if err != nil || before < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
		return
	}

	messages, err := h.readService.History(c.Request.Context(), chatID, userID, limit, before)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	chatID, ok := parseIDParam(c, "id", "chat")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req service.SendMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ChatID = chatID
	req.SenderID = userID

	message, err := h.router.SendMessage(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, ok := parseIDParam(c, "id", "chat")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	updated, err := h.readService.MarkRead(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Replay отдает недавние сообщения из очереди чата
func (h *ChatHandler) Replay(c *gin.Context) {
	chatID, ok := parseIDParam(c, "id", "chat")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	messages, err := h.replayService.Replay(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}
