package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"messenger/internal/service"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	sseEventSession = "session"
	sseEventFrame   = "frame"
	sseKeepAlive    = 25 * time.Second
)

// StreamTransport - запасной транспорт для сред, где сокет не держится:
// вниз Server-Sent Events (GET /ws/stream), вверх POST /ws/stream/:sid.
type StreamTransport struct {
	server     *Server
	gatekeeper service.Gatekeeper
	log        logger.Logger
}

func NewStreamTransport(server *Server, gatekeeper service.Gatekeeper, log logger.Logger) *StreamTransport {
	return &StreamTransport{
		server:     server,
		gatekeeper: gatekeeper,
		log:        log,
	}
}

func (t *StreamTransport) Open(c *gin.Context) {
	identity, ok := authenticateUpgrade(c, t.gatekeeper)
	if !ok {
		return
	}

	s := t.server.Open(identity, c.ClientIP(), "sse")
	defer t.server.Close(s)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// id сессии нужен клиенту для POST-запросов
	c.SSEvent(sseEventSession, gin.H{"session": s.ID})
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case frame, ok := <-s.Outbound():
			if !ok {
				return false
			}
			c.SSEvent(sseEventFrame, frame)
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}

func (t *StreamTransport) Send(c *gin.Context) {
	s, ok := t.server.Lookup(c.Param("sid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFrameSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read frame"})
		return
	}

	frame, err := ParseFrame(data)
	if err != nil {
		s.Enqueue(errorFrame(err, ""))
		c.Status(http.StatusAccepted)
		return
	}

	// Обработка не должна обрываться вместе с коротким POST-запросом
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 30*time.Second)
	defer cancel()

	if t.server.HandleFrame(ctx, s, frame) {
		t.server.Close(s)
	}
	c.Status(http.StatusAccepted)
}
