package session

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	identity  Identity
	expiresAt time.Time
}

// MemoryStore is an in-process session store used when no Redis URL is
// configured. Sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	revoked  map[string]time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memorySession),
		revoked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash string, identity Identity, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenHash] = memorySession{identity: identity, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return Identity{}, ErrNotFound
	}
	if s.now().After(sess.expiresAt) {
		delete(s.sessions, tokenHash)
		return Identity{}, ErrNotFound
	}
	return sess.identity, nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.now().After(expiresAt) {
		return nil
	}
	s.revoked[jti] = expiresAt
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if s.now().After(expiresAt) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
