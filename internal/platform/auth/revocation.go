package auth

import (
	"sync"
	"time"
)

// revocationEntry stores metadata about a revoked JWT token.
type revocationEntry struct {
	ExpiresAt time.Time
	UserID    string
}

// TokenRevocationStore manages revoked refresh tokens in memory.
// Revoked JTIs are kept until the token's natural expiry, after which the
// background cleanup drops them. Safe for concurrent use.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]revocationEntry // JTI -> entry
	done    chan struct{}
}

// NewTokenRevocationStore creates a new store and starts a background
// goroutine that cleans up expired entries every 5 minutes.
func NewTokenRevocationStore() *TokenRevocationStore {
	s := &TokenRevocationStore{
		entries: make(map[string]revocationEntry),
		done:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Revoke adds a token's JTI to the revocation list. expiresAt is when the
// token would have expired anyway.
func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	s.RevokeForUser(jti, "", expiresAt)
}

// RevokeForUser is Revoke with the owning user recorded for logging.
func (s *TokenRevocationStore) RevokeForUser(jti, userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[jti] = revocationEntry{
		ExpiresAt: expiresAt,
		UserID:    userID,
	}
}

// IsRevoked checks if a token JTI has been revoked.
func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[jti]
	return ok
}

// Count returns the number of currently revoked tokens.
func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Close stops the background cleanup goroutine. It is safe to call
// multiple times.
func (s *TokenRevocationStore) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *TokenRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup(time.Now())
		}
	}
}

// cleanup removes entries whose tokens expired before now.
func (s *TokenRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, jti)
		}
	}
}
