//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"skillpass/internal/audit"
	"skillpass/internal/audit/relay"
	auditpg "skillpass/internal/audit/store/postgres"
	"skillpass/pkg/testutil/containers"
)

func TestRelayPublishesOutbox(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pg := containers.NewPostgresContainer(t)
	pg.ApplyMigrations(t)
	store := auditpg.New(pg.DB)

	rp := containers.NewRedpandaContainer(t)

	const topic = "skillpass.audit.test"
	r, err := relay.New([]string{rp.Broker}, topic, 100*time.Millisecond, 10,
		store, slog.New(slog.DiscardHandler), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	entry := audit.Entry{
		Action:       audit.ActionIdentityVerify,
		ResourceType: audit.ResourceIdentityRecord,
		ResourceID:   "subject-1",
		PIITypes:     []audit.PIIType{audit.PIINationalID},
		Success:      true,
		Timestamp:    time.Now().UTC(),
	}
	require.NoError(t, store.Append(context.Background(), entry))

	// The relay should drain the outbox within a few poll intervals.
	require.Eventually(t, func() bool {
		n, err := store.PendingCount(context.Background())
		return err == nil && n == 0
	}, 10*time.Second, 200*time.Millisecond)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, fetchCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer fetchCancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.NotEmpty(t, records)

	var published map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &published))
	require.Equal(t, audit.ActionIdentityVerify, published["action"])

	cancel()
	<-done
}
