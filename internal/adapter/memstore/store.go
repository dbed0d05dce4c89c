// Package memstore provides an in-memory SessionStore with the same
// version-token semantics as the Redis adapter. Used in tests and for
// single-instance deployments without Redis.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/studysync/internal/domain"
)

type record struct {
	session *domain.Session
	version uint64
}

type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*record
}

func New() *Store {
	return &Store{sessions: make(map[uuid.UUID]*record)}
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (*domain.Session, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, 0, domain.ErrSessionNotFound
	}
	return rec.session.Clone(), rec.version, nil
}

func (s *Store) CreateIfAbsent(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return domain.ErrVersionConflict
	}
	s.sessions[session.ID] = &record{session: session.Clone(), version: 1}
	return nil
}

func (s *Store) CompareAndSwap(_ context.Context, session *domain.Session, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if rec.version != version {
		return domain.ErrVersionConflict
	}
	s.sessions[session.ID] = &record{session: session.Clone(), version: version + 1}
	return nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *Store) Scan(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec.session.Clone())
	}
	return out, nil
}
