package audit_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillpass/internal/audit"
	auditmem "skillpass/internal/audit/store/memory"
	"skillpass/pkg/requestcontext"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRecord_FillsOriginFromContext(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	recorder := audit.NewRecorder(store, testLogger(), nil)

	ctx := context.Background()
	ctx = requestcontext.WithActorID(ctx, "issuer-ops")
	ctx = requestcontext.WithClientIP(ctx, "10.1.2.3")
	ctx = requestcontext.WithUserAgent(ctx, "platform/1.0")
	ctx = requestcontext.WithRequestID(ctx, "req-123")

	recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionIdentityVerify,
		ResourceType: audit.ResourceIdentityRecord,
		ResourceID:   "subject-1",
		PIITypes:     []audit.PIIType{audit.PIINationalID, audit.PIIBiometric},
		Purpose:      "identity verification",
		Success:      true,
	})

	entries := store.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "issuer-ops", e.ActorID)
	assert.Equal(t, "10.1.2.3", e.ClientIP)
	assert.Equal(t, "platform/1.0", e.UserAgent)
	assert.Equal(t, "req-123", e.Metadata["request_id"])
	assert.False(t, e.Timestamp.IsZero())
}

// TestRecord_StorageFailureNeverPropagates pins the recorder's core contract:
// a failing store is contained, not surfaced. Record has no error return, so
// the assertion here is that it neither panics nor blocks.
func TestRecord_StorageFailureNeverPropagates(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	store.FailWith = errors.New("disk full")
	recorder := audit.NewRecorder(store, testLogger(), nil)

	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), audit.Entry{
			Action:       audit.ActionCredentialIssue,
			ResourceType: audit.ResourceCredential,
			Success:      true,
		})
	})
	assert.Empty(t, store.All())
}

func TestRecord_SurvivesExpiredRequestContext(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	recorder := audit.NewRecorder(store, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionCredentialLookup,
		ResourceType: audit.ResourceCredential,
		Success:      true,
	})

	require.Len(t, store.All(), 1)
}

func TestFetch_Filters(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	recorder := audit.NewRecorder(store, testLogger(), nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	recorder.Record(ctx, audit.Entry{
		ActorID:      "a1",
		Action:       audit.ActionIdentityVerify,
		ResourceType: audit.ResourceIdentityRecord,
		ResourceID:   "s1",
		PIITypes:     []audit.PIIType{audit.PIIBiometric},
		Timestamp:    base,
		Success:      true,
	})
	recorder.Record(ctx, audit.Entry{
		ActorID:      "a2",
		Action:       audit.ActionCredentialIssue,
		ResourceType: audit.ResourceCredential,
		ResourceID:   "c1",
		PIITypes:     []audit.PIIType{audit.PIIProfile},
		Timestamp:    base.Add(time.Hour),
		Success:      true,
	})

	byAction, err := recorder.Fetch(ctx, audit.Filter{Action: audit.ActionCredentialIssue})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "c1", byAction[0].ResourceID)

	byPII, err := recorder.Fetch(ctx, audit.Filter{PIIType: audit.PIIBiometric})
	require.NoError(t, err)
	require.Len(t, byPII, 1)
	assert.Equal(t, "s1", byPII[0].ResourceID)

	byWindow, err := recorder.Fetch(ctx, audit.Filter{From: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, byWindow, 1)
	assert.Equal(t, audit.ActionCredentialIssue, byWindow[0].Action)
}

// TestFetch_LandsOnTheTrail pins that reading the audit log is itself
// recorded, without the fetch entry leaking into its own result set.
func TestFetch_LandsOnTheTrail(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	recorder := audit.NewRecorder(store, testLogger(), nil)

	recorder.Record(context.Background(), audit.Entry{
		Action:       audit.ActionIdentityVerify,
		ResourceType: audit.ResourceIdentityRecord,
		ResourceID:   "subject-1",
		Success:      true,
	})

	entries, err := recorder.Fetch(context.Background(), audit.Filter{Action: audit.ActionIdentityVerify})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionIdentityVerify, entries[0].Action)

	all := store.All()
	require.Len(t, all, 2)
	fetchEntry := all[1]
	assert.Equal(t, audit.ActionAuditFetch, fetchEntry.Action)
	assert.Equal(t, audit.ResourceAuditLog, fetchEntry.ResourceType)
	assert.True(t, fetchEntry.Success)
	assert.Equal(t, "1", fetchEntry.Metadata["returned"])
	assert.Equal(t, audit.ActionIdentityVerify, fetchEntry.Metadata["filter_action"])
}

// Unlike Record, Fetch is a query and surfaces store failures to the caller.
func TestFetch_StoreFailureSurfaces(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	store.FailWith = errors.New("connection reset")
	recorder := audit.NewRecorder(store, testLogger(), nil)

	_, err := recorder.Fetch(context.Background(), audit.Filter{})
	require.Error(t, err)
}
