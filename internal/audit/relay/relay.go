// Package relay publishes audit outbox rows to Kafka.
//
// Kafka is the fan-out point for downstream compliance and SIEM consumers.
// The relay never sits on the request path: audit appends land in the outbox
// synchronously and the relay drains it in the background, so a broker outage
// delays fan-out without losing entries or touching business operations.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"skillpass/internal/audit"
	auditpg "skillpass/internal/audit/store/postgres"
)

// Outbox is the slice of the Postgres audit store the relay needs.
type Outbox interface {
	ClaimUnpublished(ctx context.Context, limit int) ([]auditpg.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
	PendingCount(ctx context.Context) (int, error)
}

// Relay drains the audit outbox into a Kafka topic.
type Relay struct {
	client  *kgo.Client
	outbox  Outbox
	topic   string
	poll    time.Duration
	batch   int
	logger  *slog.Logger
	metrics *audit.Metrics
}

// New connects to Kafka and ensures the audit topic exists.
func New(
	brokers []string,
	topic string,
	poll time.Duration,
	batch int,
	outbox Outbox,
	logger *slog.Logger,
	metrics *audit.Metrics,
) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 3, 1, nil, topic); err != nil {
		// Already-exists is the normal case after first boot.
		logger.Info("audit topic create skipped", "topic", topic, "reason", err)
	}

	return &Relay{
		client:  client,
		outbox:  outbox,
		topic:   topic,
		poll:    poll,
		batch:   batch,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Run drains the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	defer r.client.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.ErrorContext(ctx, "audit relay drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	for {
		rows, err := r.outbox.ClaimUnpublished(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		records := make([]*kgo.Record, 0, len(rows))
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			records = append(records, &kgo.Record{
				Topic: r.topic,
				Key:   []byte(row.EntryID.String()),
				Value: row.Payload,
			})
			ids = append(ids, row.ID)
		}

		if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce audit batch: %w", err)
		}
		if err := r.outbox.MarkPublished(ctx, ids); err != nil {
			return err
		}
		if len(rows) < r.batch {
			break
		}
	}

	if pending, err := r.outbox.PendingCount(ctx); err == nil {
		r.metrics.SetRelayLag(pending)
	}
	return nil
}
