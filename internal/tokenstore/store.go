// Package tokenstore persists the backend session token between runs.
package tokenstore

import (
	"context"
	"sync"
	"time"
)

// Token is an authenticated backend session.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the token has a known expiry that has passed.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Store keeps at most one current session token.
// Load returns (nil, nil) when no token is stored.
type Store interface {
	Load(ctx context.Context) (*Token, error)
	Save(ctx context.Context, t Token) error
	Delete(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return nil, nil
	}
	t := *m.token
	return &t, nil
}

func (m *MemoryStore) Save(ctx context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = &t
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	return nil
}
