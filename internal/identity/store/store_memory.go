package store

import (
	"context"
	"sync"

	"skillpass/internal/identity"
	"skillpass/pkg/domain"
	"skillpass/pkg/platform/sentinel"
)

// InMemoryStore keeps one verification record per subject. Save replaces,
// matching the re-verification semantics of the Postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.SubjectID]identity.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.SubjectID]identity.Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SubjectID] = record
	return nil
}

func (s *InMemoryStore) FindBySubject(_ context.Context, subjectID domain.SubjectID) (identity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[subjectID]
	if !ok {
		return identity.Record{}, sentinel.ErrNotFound
	}
	return record, nil
}
