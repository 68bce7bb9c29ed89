package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"skillpass/internal/credential"
	"skillpass/pkg/domain"
	"skillpass/pkg/platform/sentinel"
	txcontext "skillpass/pkg/platform/tx"
)

// PostgresStore persists credentials. The credentials table carries a partial
// unique index on (subject_id, achievement_id) WHERE status = 'active'; that
// index, not application code, is what guarantees the single-active invariant
// under concurrent issuance.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
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

func (s *PostgresStore) Create(ctx context.Context, cred credential.Credential) error {
	const query = `
		INSERT INTO credentials (
			id, uri, serial_number, issuer_id, subject_id, achievement_id,
			canonical_bytes, proof_type, proof_verification_method,
			proof_value, proof_created,
			status, issuance_date, expiration_date, discoverable, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(cred.ID),
		cred.URI,
		cred.SerialNumber,
		uuid.UUID(cred.IssuerID),
		uuid.UUID(cred.SubjectID),
		uuid.UUID(cred.AchievementID),
		cred.CanonicalBytes,
		cred.Proof.Type,
		cred.Proof.VerificationMethod,
		cred.Proof.ProofValue,
		cred.Proof.Created,
		string(cred.Status),
		cred.IssuanceDate,
		cred.ExpirationDate,
		cred.Discoverable,
		cred.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

const credentialColumns = `
	id, uri, serial_number, issuer_id, subject_id, achievement_id,
	canonical_bytes, proof_type, proof_verification_method,
	proof_value, proof_created,
	status, revocation_reason, revoked_at,
	issuance_date, expiration_date, discoverable, created_at
`

func (s *PostgresStore) FindByID(ctx context.Context, id domain.CredentialUUID) (credential.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
}

func (s *PostgresStore) FindBySerial(ctx context.Context, serial string) (credential.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE serial_number = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, serial))
}

func (s *PostgresStore) scanOne(row *sql.Row) (credential.Credential, error) {
	var (
		cred          credential.Credential
		id            uuid.UUID
		issuerID      uuid.UUID
		subjectID     uuid.UUID
		achievementID uuid.UUID
		status        string
		reason        sql.NullString
		revokedAt     sql.NullTime
		expiresAt     sql.NullTime
	)
	err := row.Scan(
		&id, &cred.URI, &cred.SerialNumber, &issuerID, &subjectID, &achievementID,
		&cred.CanonicalBytes, &cred.Proof.Type, &cred.Proof.VerificationMethod,
		&cred.Proof.ProofValue, &cred.Proof.Created,
		&status, &reason, &revokedAt,
		&cred.IssuanceDate, &expiresAt, &cred.Discoverable, &cred.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credential.Credential{}, sentinel.ErrNotFound
		}
		return credential.Credential{}, fmt.Errorf("scan credential: %w", err)
	}

	cred.ID = domain.CredentialUUID(id)
	cred.IssuerID = domain.IssuerID(issuerID)
	cred.SubjectID = domain.SubjectID(subjectID)
	cred.AchievementID = domain.AchievementID(achievementID)
	cred.Status = credential.Status(status)
	cred.RevocationReason = reason.String
	if revokedAt.Valid {
		t := revokedAt.Time
		cred.RevokedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		cred.ExpirationDate = &t
	}
	return cred, nil
}

// Revoke flips status to revoked only from active; the WHERE clause makes the
// transition atomic, so a double-revoke never overwrites the original reason.
func (s *PostgresStore) Revoke(ctx context.Context, id domain.CredentialUUID, reason string, at time.Time) error {
	const query = `
		UPDATE credentials
		SET status = 'revoked', revocation_reason = $2, revoked_at = $3
		WHERE id = $1 AND status = 'active'
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(id), reason, at)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1)`, uuid.UUID(id),
		).Scan(&exists); err != nil {
			return fmt.Errorf("revoke credential: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID domain.SubjectID) ([]credential.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE subject_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []credential.Credential
	for rows.Next() {
		var (
			cred          credential.Credential
			id            uuid.UUID
			issuerID      uuid.UUID
			subID         uuid.UUID
			achievementID uuid.UUID
			status        string
			reason        sql.NullString
			revokedAt     sql.NullTime
			expiresAt     sql.NullTime
		)
		err := rows.Scan(
			&id, &cred.URI, &cred.SerialNumber, &issuerID, &subID, &achievementID,
			&cred.CanonicalBytes, &cred.Proof.Type, &cred.Proof.VerificationMethod,
			&cred.Proof.ProofValue, &cred.Proof.Created,
			&status, &reason, &revokedAt,
			&cred.IssuanceDate, &expiresAt, &cred.Discoverable, &cred.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		cred.ID = domain.CredentialUUID(id)
		cred.IssuerID = domain.IssuerID(issuerID)
		cred.SubjectID = domain.SubjectID(subID)
		cred.AchievementID = domain.AchievementID(achievementID)
		cred.Status = credential.Status(status)
		cred.RevocationReason = reason.String
		if revokedAt.Valid {
			t := revokedAt.Time
			cred.RevokedAt = &t
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			cred.ExpirationDate = &t
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// PostgresLevelStore keeps the denormalized per-subject maximum qualification
// level. GREATEST in the upsert makes the update monotonic under any number
// of concurrent writers.
type PostgresLevelStore struct {
	db *sql.DB
}

func NewPostgresLevels(db *sql.DB) *PostgresLevelStore {
	return &PostgresLevelStore{db: db}
}

func (s *PostgresLevelStore) RaiseTo(ctx context.Context, subjectID domain.SubjectID, level int) error {
	const query = `
		INSERT INTO subject_levels (subject_id, max_level, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (subject_id) DO UPDATE SET
			max_level = GREATEST(subject_levels.max_level, EXCLUDED.max_level),
			updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(subjectID), level); err != nil {
		return fmt.Errorf("raise qualification level: %w", err)
	}
	return nil
}

func (s *PostgresLevelStore) MaxLevel(ctx context.Context, subjectID domain.SubjectID) (int, error) {
	var level int
	err := s.db.QueryRowContext(ctx,
		`SELECT max_level FROM subject_levels WHERE subject_id = $1`, uuid.UUID(subjectID),
	).Scan(&level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read qualification level: %w", err)
	}
	return level, nil
}
