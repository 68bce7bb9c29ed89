package store

import (
	"context"
	"sync"
	"time"

	"skillpass/internal/credential"
	"skillpass/pkg/domain"
	"skillpass/pkg/platform/sentinel"
)

// InMemoryStore enforces the same invariants as the Postgres store under a
// single mutex: at most one active credential per (subject, achievement), and
// unique serials. Dev and unit tests only.
type InMemoryStore struct {
	mu        sync.RWMutex
	byID      map[domain.CredentialUUID]credential.Credential
	bySerial  map[string]domain.CredentialUUID
	bySubject map[domain.SubjectID][]domain.CredentialUUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[domain.CredentialUUID]credential.Credential),
		bySerial:  make(map[string]domain.CredentialUUID),
		bySubject: make(map[domain.SubjectID][]domain.CredentialUUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, cred credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[cred.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.bySerial[cred.SerialNumber]; exists {
		return sentinel.ErrConflict
	}
	if cred.Status == credential.StatusActive {
		for _, id := range s.bySubject[cred.SubjectID] {
			existing := s.byID[id]
			if existing.AchievementID == cred.AchievementID && existing.Status == credential.StatusActive {
				return sentinel.ErrConflict
			}
		}
	}

	s.byID[cred.ID] = cred
	s.bySerial[cred.SerialNumber] = cred.ID
	s.bySubject[cred.SubjectID] = append(s.bySubject[cred.SubjectID], cred.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.CredentialUUID) (credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.byID[id]
	if !ok {
		return credential.Credential{}, sentinel.ErrNotFound
	}
	return cred, nil
}

func (s *InMemoryStore) FindBySerial(_ context.Context, serial string) (credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySerial[serial]
	if !ok {
		return credential.Credential{}, sentinel.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *InMemoryStore) Revoke(_ context.Context, id domain.CredentialUUID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cred.Status != credential.StatusActive {
		return sentinel.ErrInvalidState
	}

	cred.Status = credential.StatusRevoked
	cred.RevocationReason = reason
	cred.RevokedAt = &at
	s.byID[id] = cred
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID domain.SubjectID) ([]credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySubject[subjectID]
	creds := make([]credential.Credential, 0, len(ids))
	for _, id := range ids {
		creds = append(creds, s.byID[id])
	}
	return creds, nil
}

// InMemoryLevelStore tracks max qualification levels. RaiseTo compares under
// the lock, so concurrent writers cannot lose the larger value.
type InMemoryLevelStore struct {
	mu     sync.RWMutex
	levels map[domain.SubjectID]int
}

func NewInMemoryLevelStore() *InMemoryLevelStore {
	return &InMemoryLevelStore{levels: make(map[domain.SubjectID]int)}
}

func (s *InMemoryLevelStore) RaiseTo(_ context.Context, subjectID domain.SubjectID, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.levels[subjectID] {
		s.levels[subjectID] = level
	}
	return nil
}

func (s *InMemoryLevelStore) MaxLevel(_ context.Context, subjectID domain.SubjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.levels[subjectID], nil
}
