package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"skillpass/pkg/domain"
)

// PostgresIssuerRegistry answers ownership from the issuer_achievements
// table, which the (out of scope) course CRUD maintains.
type PostgresIssuerRegistry struct {
	db *sql.DB
}

func NewPostgresIssuers(db *sql.DB) *PostgresIssuerRegistry {
	return &PostgresIssuerRegistry{db: db}
}

func (s *PostgresIssuerRegistry) OwnsAchievement(ctx context.Context, issuerID domain.IssuerID, achievementID domain.AchievementID) (bool, error) {
	var owns bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM issuer_achievements
			WHERE issuer_id = $1 AND achievement_id = $2
		)`,
		uuid.UUID(issuerID), uuid.UUID(achievementID),
	).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("check achievement ownership: %w", err)
	}
	return owns, nil
}

// InMemoryIssuerRegistry is a seedable ownership map for dev and tests.
type InMemoryIssuerRegistry struct {
	mu    sync.RWMutex
	owned map[domain.IssuerID]map[domain.AchievementID]bool
}

func NewInMemoryIssuers() *InMemoryIssuerRegistry {
	return &InMemoryIssuerRegistry{owned: make(map[domain.IssuerID]map[domain.AchievementID]bool)}
}

func (s *InMemoryIssuerRegistry) Grant(issuerID domain.IssuerID, achievementID domain.AchievementID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owned[issuerID] == nil {
		s.owned[issuerID] = make(map[domain.AchievementID]bool)
	}
	s.owned[issuerID][achievementID] = true
}

func (s *InMemoryIssuerRegistry) OwnsAchievement(_ context.Context, issuerID domain.IssuerID, achievementID domain.AchievementID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owned[issuerID][achievementID], nil
}
