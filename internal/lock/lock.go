package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL caps how long a crashed holder can block creation for an order.
const DefaultTTL = 300 * time.Second

// Locker is a set-if-absent lock with owner-checked release.
type Locker interface {
	// Acquire returns the owner token, or ok=false when someone else holds key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release deletes key only if it still holds token.
	Release(ctx context.Context, key, token string) (bool, error)
}

// Key namespaces an order's creation lock.
func Key(orderID string) string {
	return "awb:lock:" + orderID
}

func NewToken() string {
	return uuid.NewString()
}

// Memory is a single-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]held
	now  func() time.Time
}

type held struct {
	token     string
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]held), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if h, ok := m.held[key]; ok && now.Before(h.expiresAt) {
		return "", false, nil
	}
	token := NewToken()
	m.held[key] = held{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (m *Memory) Release(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.held[key]
	if !ok || h.token != token {
		return false, nil
	}
	delete(m.held, key)
	return true, nil
}
