package session

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// Credential - проверенная личность, привязанная к одному соединению.
// Живет ровно столько, сколько соединение.
type Credential struct {
	Token        string
	Username     string
	UserID       int64
	RegisteredAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Credential
}

// Registry хранит соответствие id соединения -> Credential.
// Ключи распределены по шардам, общий замок на весь реестр не берется.
type Registry struct {
	shards [shardCount]*shard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]Credential)}
	}
	return r
}

func (r *Registry) shardFor(sessionID string) *shard {
	return r.shards[xxhash.Sum64String(sessionID)%shardCount]
}

// Register перезаписывает предыдущую запись для того же соединения
func (r *Registry) Register(sessionID string, cred Credential) {
	if cred.RegisteredAt.IsZero() {
		cred.RegisteredAt = time.Now()
	}
	s := r.shardFor(sessionID)
	s.mu.Lock()
	s.entries[sessionID] = cred
	s.mu.Unlock()
}

func (r *Registry) Resolve(sessionID string) (Credential, bool) {
	s := r.shardFor(sessionID)
	s.mu.RLock()
	cred, ok := s.entries[sessionID]
	s.mu.RUnlock()
	return cred, ok
}

func (r *Registry) Evict(sessionID string) {
	s := r.shardFor(sessionID)
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
}

func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
