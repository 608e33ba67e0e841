package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/eizes/gis-gateway/internal/errors"
)

// sessionIDBytes is the entropy of a session identifier or state token.
const sessionIDBytes = 32

// MemoryStore is a process-local Store backed by mutex-guarded maps.
// Suitable for single-instance deployments only; multi-instance deployments
// use RedisStore so sessions survive across nodes.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	states   map[string]time.Time // state token -> registration time

	nowTime func() time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithNowTime sets the clock function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.nowTime = nowFunc
	}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(options ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		states:   make(map[string]time.Time),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, user User, tokens Tokens, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := GenerateToken()
	now := s.nowTime()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &Session{
		ID:        id,
		User:      user,
		Tokens:    tokens,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	// Lazy expiry: an expired session is purged on first access.
	if !session.ExpiresAt.After(s.nowTime()) {
		delete(s.sessions, sessionID)
		return nil, errors.ErrSessionNotFound
	}

	copied := *session
	return &copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) RegisterPendingState(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = s.nowTime()
	return nil
}

func (s *MemoryStore) ConsumePendingState(_ context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, ok := s.states[state]
	if !ok {
		return false, nil
	}
	delete(s.states, state)
	if s.nowTime().Sub(created) > PendingStateTTL {
		return false, nil
	}
	return true, nil
}

// Sweep removes expired sessions and stale pending states, bounding memory in
// long-running processes. Get already treats expired entries as absent; this
// only reclaims space.
func (s *MemoryStore) Sweep() {
	now := s.nowTime()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, id)
		}
	}
	for state, created := range s.states {
		if now.Sub(created) > PendingStateTTL {
			delete(s.states, state)
		}
	}
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// GenerateToken creates a random base64url token with 32 bytes of entropy,
// used for session identifiers and OAuth2 state values.
func GenerateToken() string {
	b := make([]byte, sessionIDBytes)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
