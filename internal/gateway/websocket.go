package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"messenger/internal/config"
	"messenger/internal/service"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketTransport - основной транспорт realtime-канала (GET /ws)
type WebSocketTransport struct {
	server     *Server
	gatekeeper service.Gatekeeper
	upgrader   websocket.Upgrader
	log        logger.Logger
}

func NewWebSocketTransport(server *Server, gatekeeper service.Gatekeeper, serverCfg config.ServerConfig, log logger.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		server:     server,
		gatekeeper: gatekeeper,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return serverCfg.OriginAllowed(r.Header.Get("Origin"))
			},
		},
		log: log,
	}
}

// authenticateUpgrade: неверный токен - 401 без апгрейда,
// отсутствующий токен допустим, личность придет в CONNECT.
func authenticateUpgrade(c *gin.Context, gatekeeper service.Gatekeeper) (*service.Identity, bool) {
	token := service.ExtractBearer(c.Request)
	if token == "" {
		return nil, true
	}

	identity, err := gatekeeper.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(apperrors.HTTPStatusFromError(err), gin.H{"error": apperrors.PublicMessage(err)})
		return nil, false
	}
	return identity, true
}

func (t *WebSocketTransport) Handle(c *gin.Context) {
	identity, ok := authenticateUpgrade(c, t.gatekeeper)
	if !ok {
		return
	}

	conn, err := t.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.log.Warn("Failed to upgrade connection", "error", err, "remote", c.ClientIP())
		return
	}

	s := t.server.Open(identity, c.ClientIP(), "websocket")
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go t.writePump(conn, s)
	t.readPump(ctx, conn, s)
}

func (t *WebSocketTransport) readPump(ctx context.Context, conn *websocket.Conn, s *Session) {
	defer t.server.Close(s)

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debug("WebSocket closed unexpectedly", "error", err, "session_id", s.ID)
			}
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			s.Enqueue(errorFrame(err, ""))
			continue
		}

		if t.server.HandleFrame(ctx, s, frame) {
			return
		}
	}
}

// writePump - единственный писатель в соединение
func (t *WebSocketTransport) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					t.log.Debug("WebSocket write failed", "error", err, "session_id", s.ID)
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
