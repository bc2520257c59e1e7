package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
	"github.com/redis/go-redis/v9"
)

type Session struct {
	Token    string    `json:"token"`
	UserID   int64     `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

// SessionStore keeps token -> session mappings. Get returns ok=false for
// unknown or expired tokens.
type SessionStore interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (Session, bool, error)
	Delete(ctx context.Context, token string) error
}

type MemorySessions struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	s       Session
	expires time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{m: map[string]memEntry{}, now: time.Now}
}

func (m *MemorySessions) Put(ctx context.Context, s Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[s.Token] = memEntry{s: s, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessions) Get(ctx context.Context, token string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.m[token]
	if !ok {
		return Session{}, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.m, token)
		return Session{}, false, nil
	}
	return e.s, true, nil
}

func (m *MemorySessions) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, token)
	return nil
}

// RedisSessions shares sessions between API replicas; expiry is the key TTL.
type RedisSessions struct {
	RDB redis.Cmdable
}

func (r *RedisSessions) Put(ctx context.Context, s Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.RDB.Set(ctx, fmt.Sprintf(redisx.KeySession, s.Token), b, ttl).Err()
}

func (r *RedisSessions) Get(ctx context.Context, token string) (Session, bool, error) {
	v, ok, err := redisx.GetString(ctx, r.RDB, fmt.Sprintf(redisx.KeySession, token))
	if err != nil || !ok {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal([]byte(v), &s); err != nil {
		return Session{}, false, errors.Join(errors.New("corrupt session"), err)
	}
	return s, true, nil
}

func (r *RedisSessions) Delete(ctx context.Context, token string) error {
	return r.RDB.Del(ctx, fmt.Sprintf(redisx.KeySession, token)).Err()
}
