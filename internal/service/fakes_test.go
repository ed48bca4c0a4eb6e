package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
)

// memDB - хранилище в памяти с теми же контрактами, что и pgx-репозитории
type memDB struct {
	mu       sync.Mutex
	users    map[int64]*domain.User
	chats    map[int64]*domain.Chat
	members  map[int64]map[int64]bool // chat -> user -> active
	messages []*domain.Message
	statuses map[int64]map[int64]domain.StatusValue // message -> user -> status
	calls    []*domain.CallSession
	audit    []*domain.AuditEntry
	queue    map[int64][]*domain.Message

	failCreate error
	nextID     int64
	now        time.Time
}

func newMemDB() *memDB {
	return &memDB{
		users:    make(map[int64]*domain.User),
		chats:    make(map[int64]*domain.Chat),
		members:  make(map[int64]map[int64]bool),
		statuses: make(map[int64]map[int64]domain.StatusValue),
		queue:    make(map[int64][]*domain.Message),
		now:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (db *memDB) addUser(id int64, username string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[id] = &domain.User{ID: id, Username: username, IsActive: true}
}

func (db *memDB) addChat(id int64, memberIDs ...int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.chats[id] = &domain.Chat{ID: id, IsGroup: len(memberIDs) > 2, IsActive: true, CreatedAt: db.now}
	db.members[id] = make(map[int64]bool)
	for _, uid := range memberIDs {
		db.members[id][uid] = true
	}
}

func (db *memDB) setMember(chatID, userID int64, active bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.members[chatID][userID] = active
}

func (db *memDB) statusRows(messageID int64) map[int64]domain.StatusValue {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[int64]domain.StatusValue)
	for uid, st := range db.statuses[messageID] {
		out[uid] = st
	}
	return out
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

type memUsers struct{ db *memDB }

func (r memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if u, ok := r.db.users[id]; ok {
		dup := *u
		return &dup, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Username == username {
			dup := *u
			return &dup, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

type memChats struct{ db *memDB }

func (r memChats) GetByID(_ context.Context, chatID int64) (*domain.Chat, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if c, ok := r.db.chats[chatID]; ok {
		dup := *c
		return &dup, nil
	}
	return nil, apperrors.ErrChatNotFound
}

func (r memChats) IsActiveMember(_ context.Context, chatID, userID int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	chat, ok := r.db.chats[chatID]
	if !ok || !chat.IsActive {
		return false, nil
	}
	return r.db.members[chatID][userID], nil
}

func (r memChats) ActiveMemberIDs(_ context.Context, chatID int64) ([]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []int64
	for uid, active := range r.db.members[chatID] {
		if active {
			ids = append(ids, uid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r memChats) ListForUser(_ context.Context, userID int64) ([]*domain.ChatSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.ChatSummary
	for chatID, members := range r.db.members {
		if !members[userID] || !r.db.chats[chatID].IsActive {
			continue
		}
		s := &domain.ChatSummary{Chat: *r.db.chats[chatID]}
		for _, m := range r.db.messages {
			if m.ChatID != chatID {
				continue
			}
			if r.db.statuses[m.ID][userID] == domain.StatusUnread {
				s.UnreadCount++
			}
			if m.IsActive {
				dup := *m
				s.LastMessage = &dup
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memMessages struct{ db *memDB }

func (r memMessages) CreateWithStatuses(_ context.Context, message *domain.Message) ([]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failCreate != nil {
		return nil, r.db.failCreate
	}

	message.ID = r.db.id()
	message.CreatedAt = r.db.now
	message.IsActive = true
	stored := *message
	r.db.messages = append(r.db.messages, &stored)

	var recipients []int64
	r.db.statuses[message.ID] = make(map[int64]domain.StatusValue)
	for uid, active := range r.db.members[message.ChatID] {
		if active && uid != message.SenderID {
			r.db.statuses[message.ID][uid] = domain.StatusUnread
			recipients = append(recipients, uid)
		}
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
	return recipients, nil
}

func (r memMessages) GetByID(_ context.Context, messageID int64) (*domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.messages {
		if m.ID == messageID {
			dup := *m
			return &dup, nil
		}
	}
	return nil, apperrors.ErrMessageNotFound
}

func (r memMessages) History(_ context.Context, chatID, viewerID int64, limit int, beforeID int64) ([]*domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.Message
	for i := len(r.db.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.db.messages[i]
		if m.ChatID != chatID || !m.IsActive || (beforeID > 0 && m.ID >= beforeID) {
			continue
		}
		dup := *m
		if st, ok := r.db.statuses[m.ID][viewerID]; ok {
			dup.Status = &st
		}
		out = append(out, &dup)
	}
	return out, nil
}

func (r memMessages) SoftDelete(_ context.Context, messageID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.messages {
		if m.ID == messageID && m.IsActive {
			m.IsActive = false
			return nil
		}
	}
	return apperrors.ErrMessageNotFound
}

func (r memMessages) MarkRead(_ context.Context, chatID, userID int64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var changed int64
	for _, m := range r.db.messages {
		if m.ChatID != chatID {
			continue
		}
		if r.db.statuses[m.ID][userID] == domain.StatusUnread {
			r.db.statuses[m.ID][userID] = domain.StatusRead
			changed++
		}
	}
	return changed, nil
}

func (r memMessages) CountUnread(_ context.Context, userID int64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var count int64
	for _, byUser := range r.db.statuses {
		if byUser[userID] == domain.StatusUnread {
			count++
		}
	}
	return count, nil
}

type memCalls struct{ db *memDB }

func (r memCalls) StartIfIdle(_ context.Context, chatID, hostUserID int64) (*domain.CallSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.chats[chatID]; !ok {
		return nil, apperrors.ErrChatNotFound
	}
	for _, c := range r.db.calls {
		if c.ChatID == chatID && c.IsActive {
			dup := *c
			return &dup, apperrors.ErrCallAlreadyActive
		}
	}
	call := &domain.CallSession{
		ID:              r.db.id(),
		ChatID:          chatID,
		HostUserID:      hostUserID,
		StartedAt:       r.db.now,
		LastHeartbeatAt: r.db.now,
		IsActive:        true,
	}
	r.db.calls = append(r.db.calls, call)
	dup := *call
	return &dup, nil
}

func (r memCalls) find(callID int64) *domain.CallSession {
	for _, c := range r.db.calls {
		if c.ID == callID {
			return c
		}
	}
	return nil
}

func (r memCalls) GetByID(_ context.Context, callID int64) (*domain.CallSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if c := r.find(callID); c != nil {
		dup := *c
		return &dup, nil
	}
	return nil, apperrors.ErrCallNotFound
}

func (r memCalls) GetActiveByChat(_ context.Context, chatID int64) (*domain.CallSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.calls {
		if c.ChatID == chatID && c.IsActive {
			dup := *c
			return &dup, nil
		}
	}
	return nil, apperrors.ErrCallNotFound
}

func (r memCalls) End(_ context.Context, callID int64, reason string) (*domain.CallSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := r.find(callID)
	if c == nil || !c.IsActive {
		return nil, apperrors.ErrCallNotActive
	}
	ended := r.db.now
	c.IsActive = false
	c.EndedAt = &ended
	c.EndReason = &reason
	dup := *c
	return &dup, nil
}

func (r memCalls) Touch(_ context.Context, callID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := r.find(callID)
	if c == nil || !c.IsActive {
		return apperrors.ErrCallNotActive
	}
	c.LastHeartbeatAt = r.db.now
	return nil
}

func (r memCalls) ListStale(_ context.Context, heartbeatBefore time.Time) ([]*domain.CallSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*domain.CallSession
	for _, c := range r.db.calls {
		if c.IsActive && c.LastHeartbeatAt.Before(heartbeatBefore) {
			dup := *c
			out = append(out, &dup)
		}
	}
	return out, nil
}

type memQueue struct {
	db       *memDB
	capacity int
	fail     error
}

func (r *memQueue) Enqueue(_ context.Context, message *domain.Message) error {
	if r.fail != nil {
		return r.fail
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	dup := *message
	q := append(r.db.queue[message.ChatID], &dup)
	if len(q) > r.capacity {
		q = q[len(q)-r.capacity:]
	}
	r.db.queue[message.ChatID] = q
	return nil
}

func (r *memQueue) Replay(_ context.Context, chatID int64) ([]*domain.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*domain.Message, 0, len(r.db.queue[chatID]))
	out = append(out, r.db.queue[chatID]...)
	return out, nil
}

func (r *memQueue) Remove(_ context.Context, chatID, messageID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.queue[chatID][:0]
	for _, m := range r.db.queue[chatID] {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	r.db.queue[chatID] = kept
	return nil
}

type memAudit struct{ db *memDB }

func (r memAudit) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entry.ID = r.db.id()
	entry.EventTime = r.db.now
	r.db.audit = append(r.db.audit, entry)
	return nil
}

func (db *memDB) auditEntry(eventType string) *domain.AuditEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, a := range db.audit {
		if a.EventType == eventType {
			return a
		}
	}
	return nil
}

func (db *memDB) auditEvents() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	for _, a := range db.audit {
		out = append(out, a.EventType)
	}
	return out
}

type published struct {
	topic   string
	payload []byte
}

// recordingPublisher запоминает все публикации по порядку
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, published{topic: topic, payload: payload})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

func (p *recordingPublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

var errStorage = errors.New("storage unavailable")
