package gateway

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/ratelimit"
)

// Session - одно клиентское соединение независимо от транспорта.
// Исходящие фреймы идут через ограниченную очередь send.
type Session struct {
	ID         string
	RemoteAddr string
	Transport  string
	OpenedAt   time.Time

	limiter ratelimit.Limiter

	mu            sync.Mutex
	send          chan *Frame
	closed        bool
	subscriptions map[string]string // topic -> subscription id
}

func newSession(id, remoteAddr, transport string, buffer, framesPerSecond int) *Session {
	limiter := ratelimit.NewUnlimited()
	if framesPerSecond > 0 {
		limiter = ratelimit.New(framesPerSecond, ratelimit.WithoutSlack)
	}

	return &Session{
		ID:            id,
		RemoteAddr:    remoteAddr,
		Transport:     transport,
		OpenedAt:      time.Now(),
		limiter:       limiter,
		send:          make(chan *Frame, buffer),
		subscriptions: make(map[string]string),
	}
}

// Enqueue не блокируется. false означает, что сессия закрыта
// или клиент не успевает читать.
func (s *Session) Enqueue(frame *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Outbound закрывается вместе с сессией
func (s *Session) Outbound() <-chan *Frame {
	return s.send
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) pace() {
	s.limiter.Take()
}

func (s *Session) subscribe(topic, subscriptionID string) {
	s.mu.Lock()
	s.subscriptions[topic] = subscriptionID
	s.mu.Unlock()
}

// unsubscribe принимает топик или id подписки и возвращает топик
func (s *Session) unsubscribe(topicOrID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[topicOrID]; ok {
		delete(s.subscriptions, topicOrID)
		return topicOrID, true
	}
	for topic, id := range s.subscriptions {
		if id == topicOrID {
			delete(s.subscriptions, topic)
			return topic, true
		}
	}
	return "", false
}

func (s *Session) subscriptionID(topic string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.subscriptions[topic]
	return id, ok
}

// Topics возвращает отсортированный список подписок
func (s *Session) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]string, 0, len(s.subscriptions))
	for topic := range s.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
