package gateway

import (
	"errors"
	"sync"

	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

// DeliveryCheck повторно проверяет право сессии на топик перед
// каждой доставкой. Ошибка классов forbidden и unauthorized снимает
// подписку, любая другая пропускает только текущую доставку.
type DeliveryCheck func(topic string, s *Session) error

// Hub - локальная таблица подписок topic -> сессии этого процесса
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Session]struct{}
	check  DeliveryCheck
	log    logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Session]struct{}),
		log:    log,
	}
}

func (h *Hub) SetDeliveryCheck(check DeliveryCheck) {
	h.mu.Lock()
	h.check = check
	h.mu.Unlock()
}

// Subscribe не добавляет закрытую сессию: иначе подписка, пришедшая
// параллельно с Close, осталась бы в таблице навсегда.
func (h *Hub) Subscribe(topic string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.Closed() {
		return false
	}

	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Session]struct{})
		h.topics[topic] = set
	}
	set[s] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(topic string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(topic, s)
}

func (h *Hub) UnsubscribeAll(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range s.Topics() {
		h.removeLocked(topic, s)
	}
}

func (h *Hub) removeLocked(topic string, s *Session) {
	set, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.topics, topic)
	}
}

// Deliver раздает payload подписчикам топика без блокировки.
// Сессия с переполненной очередью закрывается: медленный клиент
// не должен тормозить остальных. Возвращает число доставок.
func (h *Hub) Deliver(topic string, payload []byte) int {
	h.mu.RLock()
	subscribers := make([]*Session, 0, len(h.topics[topic]))
	for s := range h.topics[topic] {
		subscribers = append(subscribers, s)
	}
	check := h.check
	h.mu.RUnlock()

	delivered := 0
	for _, s := range subscribers {
		subID, ok := s.subscriptionID(topic)
		if !ok {
			continue
		}
		if check != nil {
			if err := check(topic, s); err != nil {
				h.reject(topic, subID, s, err)
				continue
			}
		}
		if s.Enqueue(messageFrame(topic, subID, payload)) {
			delivered++
			continue
		}
		if !s.Closed() {
			h.log.Warn("Dropping slow consumer", "session_id", s.ID, "topic", topic)
			s.Close()
		}
	}

	return delivered
}

func (h *Hub) reject(topic, subID string, s *Session, err error) {
	if !errors.Is(err, apperrors.ErrForbidden) && !errors.Is(err, apperrors.ErrUnauthorized) {
		h.log.Warn("Delivery check failed", "error", err, "session_id", s.ID, "topic", topic)
		return
	}

	s.unsubscribe(topic)
	h.Unsubscribe(topic, s)

	f := errorFrame(err, "")
	f.Headers[HeaderSubscription] = subID
	s.Enqueue(f)
	h.log.Debug("Subscription revoked", "session_id", s.ID, "topic", topic)
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
