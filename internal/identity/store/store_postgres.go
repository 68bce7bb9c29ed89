package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"skillpass/internal/evidence/liveness"
	"skillpass/internal/identity"
	"skillpass/pkg/domain"
	"skillpass/pkg/platform/sentinel"
	txcontext "skillpass/pkg/platform/tx"
)

// PostgresStore persists verification records in PostgreSQL. The table has a
// unique constraint on subject_id; Save upserts, so a re-verification
// replaces the previous record instead of merging with it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Save(ctx context.Context, record identity.Record) error {
	signals, err := json.Marshal(record.LivenessSignals)
	if err != nil {
		return fmt.Errorf("marshal liveness signals: %w", err)
	}

	const query = `
		INSERT INTO identity_verifications (
			subject_id, registry_match, registry_source, registry_degraded,
			document_check, biometric_type, liveness_score, liveness_signals,
			biometric_hash, encrypted_biometric_ref,
			status, failure_stage, failure_reason, verified_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (subject_id) DO UPDATE SET
			registry_match = EXCLUDED.registry_match,
			registry_source = EXCLUDED.registry_source,
			registry_degraded = EXCLUDED.registry_degraded,
			document_check = EXCLUDED.document_check,
			biometric_type = EXCLUDED.biometric_type,
			liveness_score = EXCLUDED.liveness_score,
			liveness_signals = EXCLUDED.liveness_signals,
			biometric_hash = EXCLUDED.biometric_hash,
			encrypted_biometric_ref = EXCLUDED.encrypted_biometric_ref,
			status = EXCLUDED.status,
			failure_stage = EXCLUDED.failure_stage,
			failure_reason = EXCLUDED.failure_reason,
			verified_at = EXCLUDED.verified_at,
			created_at = EXCLUDED.created_at
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(record.SubjectID),
		record.RegistryMatch,
		record.RegistrySource,
		record.RegistryDegraded,
		record.DocumentCheck,
		string(record.BiometricType),
		record.LivenessScore,
		signals,
		record.BiometricHash,
		record.EncryptedBiometricRef,
		string(record.Status),
		string(record.FailureStage),
		record.FailureReason,
		record.VerifiedAt,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindBySubject(ctx context.Context, subjectID domain.SubjectID) (identity.Record, error) {
	const query = `
		SELECT subject_id, registry_match, registry_source, registry_degraded,
		       document_check, biometric_type, liveness_score, liveness_signals,
		       biometric_hash, encrypted_biometric_ref,
		       status, failure_stage, failure_reason, verified_at, created_at
		FROM identity_verifications
		WHERE subject_id = $1
	`
	var (
		record     identity.Record
		subject    uuid.UUID
		bioType    string
		status     string
		stage      string
		signals    []byte
		verifiedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(subjectID)).Scan(
		&subject,
		&record.RegistryMatch,
		&record.RegistrySource,
		&record.RegistryDegraded,
		&record.DocumentCheck,
		&bioType,
		&record.LivenessScore,
		&signals,
		&record.BiometricHash,
		&record.EncryptedBiometricRef,
		&status,
		&stage,
		&record.FailureReason,
		&verifiedAt,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Record{}, sentinel.ErrNotFound
		}
		return identity.Record{}, fmt.Errorf("find verification record: %w", err)
	}

	record.SubjectID = domain.SubjectID(subject)
	record.BiometricType = liveness.BiometricType(bioType)
	record.Status = identity.Status(status)
	record.FailureStage = identity.Stage(stage)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		record.VerifiedAt = &t
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &record.LivenessSignals); err != nil {
			return identity.Record{}, fmt.Errorf("unmarshal liveness signals: %w", err)
		}
	}
	return record, nil
}
