package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type SessionCounter interface {
	ActiveSessions() int
}

type HealthHandler struct {
	sessions SessionCounter
}

func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"service":  "messenger",
		"sessions": h.sessions.ActiveSessions(),
	})
}
