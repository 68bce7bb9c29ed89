package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"skillpass/internal/audit"
	txcontext "skillpass/pkg/platform/tx"
)

// Store persists audit entries in PostgreSQL using the transactional outbox
// pattern: every append writes the queryable entry row and an outbox row in
// one transaction. The relay publishes outbox rows to Kafka for downstream
// compliance consumers.
//
// The audit_entries table is append-only. No method here updates or deletes.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID           string            `json:"id"`
	ActorID      string            `json:"actor_id,omitempty"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	PIITypes     []string          `json:"pii_types,omitempty"`
	Purpose      string            `json:"purpose,omitempty"`
	ClientIP     string            `json:"client_ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    string            `json:"timestamp"`
}

// Append writes the entry and its outbox row. When a transaction is carried in
// ctx both writes join it; otherwise a local transaction keeps them atomic.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	entryID := uuid.New()

	piiTypes := make([]string, 0, len(entry.PIITypes))
	for _, p := range entry.PIITypes {
		piiTypes = append(piiTypes, string(p))
	}

	metadataBytes, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	payloadBytes, err := json.Marshal(outboxPayload{
		ID:           entryID.String(),
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		PIITypes:     piiTypes,
		Purpose:      entry.Purpose,
		ClientIP:     entry.ClientIP,
		UserAgent:    entry.UserAgent,
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
		Metadata:     entry.Metadata,
		Timestamp:    entry.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		return s.appendRows(ctx, s.execer(ctx), entryID, entry, piiTypes, metadataBytes, payloadBytes)
	})
}

func (s *Store) appendRows(
	ctx context.Context,
	exec dbExecutor,
	entryID uuid.UUID,
	entry audit.Entry,
	piiTypes []string,
	metadataBytes, payloadBytes []byte,
) error {
	const insertEntry = `
		INSERT INTO audit_entries (
			id, actor_id, action, resource_type, resource_id, pii_types,
			purpose, client_ip, user_agent, success, error_message, metadata, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if _, err := exec.ExecContext(ctx, insertEntry,
		entryID,
		entry.ActorID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		pq.Array(piiTypes),
		entry.Purpose,
		entry.ClientIP,
		entry.UserAgent,
		entry.Success,
		entry.ErrorMessage,
		metadataBytes,
		entry.Timestamp,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	const insertOutbox = `
		INSERT INTO audit_outbox (id, entry_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.ExecContext(ctx, insertOutbox,
		uuid.New(),
		entryID,
		payloadBytes,
		time.Now(),
	); err != nil {
		return fmt.Errorf("insert audit outbox row: %w", err)
	}
	return nil
}

// Fetch returns entries matching the filter, newest first.
func (s *Store) Fetch(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, clause+"$"+strconv.Itoa(len(args)))
	}

	if filter.ActorID != "" {
		add("actor_id = ", filter.ActorID)
	}
	if filter.Action != "" {
		add("action = ", filter.Action)
	}
	if filter.ResourceType != "" {
		add("resource_type = ", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id = ", filter.ResourceID)
	}
	if filter.PIIType != "" {
		args = append(args, string(filter.PIIType))
		where = append(where, "pii_types @> ARRAY[$"+strconv.Itoa(len(args))+"]::text[]")
	}
	if !filter.From.IsZero() {
		add("timestamp >= ", filter.From)
	}
	if !filter.To.IsZero() {
		add("timestamp <= ", filter.To)
	}

	query := `
		SELECT actor_id, action, resource_type, resource_id, pii_types,
		       purpose, client_ip, user_agent, success, error_message, metadata, timestamp
		FROM audit_entries
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry         audit.Entry
			piiTypes      pq.StringArray
			metadataBytes []byte
		)
		if err := rows.Scan(
			&entry.ActorID,
			&entry.Action,
			&entry.ResourceType,
			&entry.ResourceID,
			&piiTypes,
			&entry.Purpose,
			&entry.ClientIP,
			&entry.UserAgent,
			&entry.Success,
			&entry.ErrorMessage,
			&metadataBytes,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		for _, p := range piiTypes {
			entry.PIITypes = append(entry.PIITypes, audit.PIIType(p))
		}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// OutboxRow is one pending Kafka publication.
type OutboxRow struct {
	ID      uuid.UUID
	EntryID uuid.UUID
	Payload []byte
}

// ClaimUnpublished returns up to limit unpublished outbox rows, oldest first.
// Duplicate publication across relay instances is tolerated: the payload
// carries the entry ID and downstream consumers dedupe on it.
func (s *Store) ClaimUnpublished(ctx context.Context, limit int) ([]OutboxRow, error) {
	const query = `
		SELECT id, entry_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var row OutboxRow
		if err := rows.Scan(&row.ID, &row.EntryID, &row.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

// MarkPublished stamps rows as delivered. Rows are kept for audit of the audit
// pipeline itself; retention is handled operationally, not by the application.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
		UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2)
	`
	if _, err := s.db.ExecContext(ctx, query, time.Now(), pq.Array(ids)); err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}

// PendingCount reports outbox backlog for the relay-lag metric.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_outbox WHERE published_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox rows: %w", err)
	}
	return n, nil
}
