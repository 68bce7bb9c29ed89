//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"skillpass/internal/audit"
	"skillpass/internal/audit/store/postgres"
	"skillpass/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.ApplyMigrations(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_outbox", "audit_entries")
	s.Require().NoError(err)
}

func entry(action string, at time.Time) audit.Entry {
	return audit.Entry{
		ActorID:      "actor-1",
		Action:       action,
		ResourceType: audit.ResourceIdentityRecord,
		ResourceID:   "subject-1",
		PIITypes:     []audit.PIIType{audit.PIINationalID, audit.PIIBiometric},
		Purpose:      "identity verification",
		ClientIP:     "10.0.0.1",
		UserAgent:    "integration-test",
		Success:      true,
		Metadata:     map[string]string{"stage": "done"},
		Timestamp:    at,
	}
}

func (s *AuditStoreSuite) TestAppendWritesEntryAndOutboxRow() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Append(ctx, entry(audit.ActionIdentityVerify, now)))

	entries, err := s.store.Fetch(ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionIdentityVerify, entries[0].Action)
	s.ElementsMatch([]audit.PIIType{audit.PIINationalID, audit.PIIBiometric}, entries[0].PIITypes)
	s.Equal("done", entries[0].Metadata["stage"])

	// The same transaction produced an outbox row for the relay.
	pending, err := s.store.PendingCount(ctx)
	s.Require().NoError(err)
	s.Equal(1, pending)
}

func (s *AuditStoreSuite) TestFetchFilters() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Append(ctx, entry(audit.ActionIdentityVerify, base.Add(-2*time.Hour))))
	s.Require().NoError(s.store.Append(ctx, entry(audit.ActionCredentialIssue, base.Add(-time.Hour))))
	s.Require().NoError(s.store.Append(ctx, entry(audit.ActionCredentialLookup, base)))

	byAction, err := s.store.Fetch(ctx, audit.Filter{Action: audit.ActionCredentialIssue})
	s.Require().NoError(err)
	s.Require().Len(byAction, 1)
	s.Equal(audit.ActionCredentialIssue, byAction[0].Action)

	byPII, err := s.store.Fetch(ctx, audit.Filter{PIIType: audit.PIIBiometric})
	s.Require().NoError(err)
	s.Len(byPII, 3)

	windowed, err := s.store.Fetch(ctx, audit.Filter{From: base.Add(-90 * time.Minute)})
	s.Require().NoError(err)
	s.Len(windowed, 2)

	limited, err := s.store.Fetch(ctx, audit.Filter{Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal(audit.ActionCredentialLookup, limited[0].Action, "newest first")
}

func (s *AuditStoreSuite) TestOutboxClaimAndMark() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.Require().NoError(s.store.Append(ctx, entry(audit.ActionIdentityVerify, now)))
	s.Require().NoError(s.store.Append(ctx, entry(audit.ActionCredentialIssue, now)))

	rows, err := s.store.ClaimUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.NotEmpty(rows[0].Payload)

	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{rows[0].ID}))

	pending, err := s.store.PendingCount(ctx)
	s.Require().NoError(err)
	s.Equal(1, pending)

	remaining, err := s.store.ClaimUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(remaining, 1)
	s.Equal(rows[1].ID, remaining[0].ID)
}
