// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package codestore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// DefaultSweepInterval is the cadence of the background expiry sweep.
const DefaultSweepInterval = 5 * time.Second

// MemoryStore implements Store with a mutex-protected map and a
// periodic sweep removing expired entries. Get also checks the TTL
// inline and removes lazily, so expired sessions are unreachable even
// between sweeps.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*AuthSession
	logins   map[uuid.UUID]*LoginSession

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}

	// now is injectable for tests.
	now func() time.Time
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval sets a custom sweep cadence.
func WithSweepInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.sweepInterval = interval
	}
}

// WithClock injects the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an in-memory store and starts its sweep task.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions:      make(map[string]*AuthSession),
		logins:        make(map[uuid.UUID]*LoginSession),
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.sweepDone)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

// sweep removes every expired entry. It owns the same mutex as the
// request path, so a sweep never races a get.
func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	for id, login := range s.logins {
		if login.Expired(now) {
			delete(s.logins, id)
			removed++
		}
	}
	if removed > 0 {
		logger.Debugw("swept expired sessions", "removed", removed)
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, session *AuthSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}

	key := storageKey(session.Kind, session.Code)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[key]; ok && !existing.Expired(s.now()) {
		return ErrCodeTaken
	}
	s.sessions[key] = session
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, kind Kind, value string, remove bool) (*AuthSession, error) {
	key := storageKey(kind, value)
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	if session.Expired(s.now()) {
		delete(s.sessions, key)
		return nil, nil
	}
	if remove {
		delete(s.sessions, key)
	}
	return session, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, session := range s.sessions {
		if !session.Expired(now) {
			count++
		}
	}
	return count, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, kind Kind, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, storageKey(kind, value))
	return nil
}

// Wipe implements Store: it removes every session whose payload
// matches the tenant and subject.
func (s *MemoryStore) Wipe(_ context.Context, tenant, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, session := range s.sessions {
		if session.Payload.Tenant == tenant && session.Payload.Subject == subject {
			delete(s.sessions, key)
		}
	}
	return nil
}

// Push implements Store.
func (s *MemoryStore) Push(_ context.Context, login *LoginSession) error {
	if login.CreatedAt.IsZero() {
		login.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins[login.LoginID] = login
	return nil
}

// Pull implements Store. Exactly-once: the login id is removed before
// the result is reported.
func (s *MemoryStore) Pull(_ context.Context, loginID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	login, ok := s.logins[loginID]
	if !ok {
		return false
	}
	delete(s.logins, loginID)
	return !login.Expired(s.now())
}

// Healthy implements Store. The in-memory backend is always reachable.
func (s *MemoryStore) Healthy(_ context.Context) bool {
	return true
}

// Close stops the sweep task and waits for it to finish.
func (s *MemoryStore) Close() error {
	close(s.stopSweep)
	<-s.sweepDone
	return nil
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
