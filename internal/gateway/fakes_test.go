package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"messenger/internal/domain"
	"messenger/internal/service"
	"messenger/internal/session"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"

	"github.com/stretchr/testify/require"
)

const (
	userAlice int64 = 1
	userBob   int64 = 2
	userEve   int64 = 3
	chat42    int64 = 42
)

type fakeGatekeeper struct {
	identities map[string]*service.Identity
}

func (g *fakeGatekeeper) Authenticate(_ context.Context, token string) (*service.Identity, error) {
	return g.Reverify(token)
}

func (g *fakeGatekeeper) Reverify(token string) (*service.Identity, error) {
	if token == "" {
		return nil, apperrors.ErrUnauthorized
	}
	identity, ok := g.identities[token]
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	dup := *identity
	dup.Token = token
	return &dup, nil
}

type fakeChats struct {
	mu      sync.RWMutex
	members map[int64][]int64
}

func (c *fakeChats) IsMember(_ context.Context, chatID, userID int64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.members[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeChats) RequireMember(ctx context.Context, chatID, userID int64) error {
	ok, _ := c.IsMember(ctx, chatID, userID)
	if !ok {
		return apperrors.ErrNotChatMember
	}
	return nil
}

func (c *fakeChats) remove(chatID, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kept []int64
	for _, id := range c.members[chatID] {
		if id != userID {
			kept = append(kept, id)
		}
	}
	c.members[chatID] = kept
}

func (c *fakeChats) ListChats(context.Context, int64) ([]*domain.ChatSummary, error) {
	return []*domain.ChatSummary{}, nil
}

func (c *fakeChats) Members(ctx context.Context, chatID, userID int64) ([]int64, error) {
	if err := c.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.members[chatID], nil
}

type fakeReplay struct {
	messages map[int64][]*domain.Message
}

func (r *fakeReplay) Replay(_ context.Context, chatID, _ int64) ([]*domain.Message, error) {
	return r.messages[chatID], nil
}

// fakeRouter записывает входы и публикует сообщение через брокер
type fakeRouter struct {
	mu     sync.Mutex
	inputs []service.SendMessageInput
	err    error
}

func (r *fakeRouter) SendMessage(_ context.Context, input service.SendMessageInput) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.inputs = append(r.inputs, input)
	return &domain.Message{ID: int64(len(r.inputs)), ChatID: input.ChatID, SenderID: input.SenderID, Content: input.Content}, nil
}

func (r *fakeRouter) DeleteMessage(context.Context, int64, int64) error {
	return nil
}

func (r *fakeRouter) sent() []service.SendMessageInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]service.SendMessageInput(nil), r.inputs...)
}

// fakeCalls реализует только методы, которые вызывает Dispatcher
type fakeCalls struct {
	service.CallService

	mu         sync.Mutex
	signals    []service.SignalInput
	heartbeats []int64
}

func (c *fakeCalls) Relay(_ context.Context, input service.SignalInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, input)
	return nil
}

func (c *fakeCalls) Heartbeat(_ context.Context, callID, _ int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats = append(c.heartbeats, callID)
	return nil
}

type testServer struct {
	registry *session.Registry
	hub      *Hub
	router   *fakeRouter
	calls    *fakeCalls
	replay   *fakeReplay
	chats    *fakeChats
	services *service.Services
	server   *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Nop()

	registry := session.NewRegistry()
	hub := NewHub(log)
	router := &fakeRouter{}
	calls := &fakeCalls{}
	replay := &fakeReplay{messages: map[int64][]*domain.Message{}}
	chats := &fakeChats{members: map[int64][]int64{chat42: {userAlice, userBob}}}

	services := &service.Services{
		Gatekeeper: &fakeGatekeeper{identities: map[string]*service.Identity{
			"alice-token": {UserID: userAlice, Username: "alice"},
			"bob-token":   {UserID: userBob, Username: "bob"},
			"eve-token":   {UserID: userEve, Username: "eve"},
		}},
		Chat:   chats,
		Router: router,
		Replay: replay,
		Call:   calls,
	}

	return &testServer{
		registry: registry,
		hub:      hub,
		router:   router,
		calls:    calls,
		replay:   replay,
		chats:    chats,
		services: services,
		server:   NewServer(registry, hub, services, Options{SendBuffer: 16}, log),
	}
}

// connect открывает сессию и проходит CONNECT с токеном
func (ts *testServer) connect(t *testing.T, token string) *Session {
	t.Helper()
	s := ts.server.Open(nil, "127.0.0.1", "test")
	ts.server.HandleFrame(context.Background(), s, &Frame{
		Command: CommandConnect,
		Headers: map[string]string{HeaderAuthorization: "Bearer " + token},
	})
	frames := drain(s)
	require.Len(t, frames, 1)
	require.Equal(t, CommandConnected, frames[0].Command)
	return s
}

// drain забирает все уже поставленные в очередь фреймы
func drain(s *Session) []*Frame {
	var frames []*Frame
	for {
		select {
		case f, ok := <-s.Outbound():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func waitFrame(t *testing.T, s *Session) *Frame {
	t.Helper()
	select {
	case f, ok := <-s.Outbound():
		require.True(t, ok, "session closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}
