package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists sessions keyed by token hash
type Store interface {
	// Save stores sess under sess.TokenHash for ttl
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	// Get returns ErrSessionNotFound for unknown or expired hashes
	Get(ctx context.Context, tokenHash string) (*Session, error)
	// Update rewrites an existing session and keeps its remaining TTL
	Update(ctx context.Context, sess *Session) error
	// Delete is a no-op for unknown hashes
	Delete(ctx context.Context, tokenHash string) error
	// ListByUser returns the user's live sessions, newest first
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	// DeleteByUser removes every session of the user and returns the count
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// SetClock overrides the expiry clock
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// live returns the entry when present and unexpired. Caller holds the lock.
func (s *MemoryStore) live(tokenHash string) (memoryEntry, bool) {
	e, ok := s.sessions[tokenHash]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.sessions, tokenHash)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Save(_ context.Context, sess *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TokenHash] = memoryEntry{session: *sess, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tokenHash string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(tokenHash)
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess := e.session
	return &sess, nil
}

func (s *MemoryStore) Update(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(sess.TokenHash)
	if !ok {
		return ErrSessionNotFound
	}
	e.session = *sess
	s.sessions[sess.TokenHash] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for hash, e := range s.sessions {
		if e.session.UserID != userID {
			continue
		}
		if _, ok := s.live(hash); ok {
			out = append(out, e.session)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for hash, e := range s.sessions {
		if e.session.UserID == userID {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

func sortNewestFirst(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}
