package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/hirestream/backend/internal/model/chat"
)

var (
	ErrEmptyPayload = errors.New("payload is empty")
	ErrNotFound     = errors.New("session not found")
	ErrConsumed     = errors.New("session already consumed")
)

// Store keeps submitted payloads until they are streamed exactly once.
type Store interface {
	Put(ctx context.Context, payload chat.Payload) (chat.Session, error)
	Get(ctx context.Context, id string) (chat.Session, error)
	Take(ctx context.Context, id string) (chat.Session, error)
	Release(ctx context.Context, id string) error
	Reset(ctx context.Context) int
}

// Options tunes expiry of a MemoryStore. A zero TTL keeps sessions until Reset.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// MemoryStore is a process-local Store. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	ttl      time.Duration
	now      func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates the store and, when a TTL is set, starts a janitor
// that drops expired sessions every SweepInterval.
func NewMemoryStore(opts Options) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]chat.Session),
		ttl:      opts.TTL,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
	}

	if s.ttl > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = s.ttl / 2
		}
		go s.janitor(interval)
	}
	return s
}

// Put stores a payload under a fresh random identifier.
func (s *MemoryStore) Put(_ context.Context, payload chat.Payload) (chat.Session, error) {
	if payload.Empty() {
		return chat.Session{}, ErrEmptyPayload
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		Payload:   payload.Clone(),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// Get returns an unconsumed session without consuming it.
func (s *MemoryStore) Get(_ context.Context, id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || s.expired(session) {
		return chat.Session{}, ErrNotFound
	}
	if session.Consumed() {
		return chat.Session{}, ErrConsumed
	}
	return session, nil
}

// Take marks the session consumed and returns it. Only the first caller for a
// given id succeeds.
func (s *MemoryStore) Take(_ context.Context, id string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || s.expired(session) {
		return chat.Session{}, ErrNotFound
	}
	if session.Consumed() {
		return chat.Session{}, ErrConsumed
	}

	session.ConsumedAt = s.now()
	s.sessions[id] = session
	return session, nil
}

// Release makes a consumed session streamable again, so a caller can retry
// after the backend failed before relaying anything.
func (s *MemoryStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.ConsumedAt = time.Time{}
	s.sessions[id] = session
	return nil
}

// Reset drops every session and returns how many were removed.
func (s *MemoryStore) Reset(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sessions)
	s.sessions = make(map[string]chat.Session)
	return n
}

// Len returns the number of stored sessions, consumed ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes expired sessions.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Close stops the janitor goroutine. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// expired must be called with s.mu held.
func (s *MemoryStore) expired(session chat.Session) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(session.CreatedAt) >= s.ttl
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
