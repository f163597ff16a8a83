package issuance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

// PostgresStore persists credentials. The unique index on fingerprint is the
// database-level guard against double issuance.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const credentialSelect = `
	SELECT id, institution_id, subject_name, subject_id, program, period, score,
	       artifact_key, artifact_url, fingerprint, status, fail_reason, issued,
	       created_at, updated_at
	FROM credentials`

func (s *PostgresStore) Create(ctx context.Context, cred Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials
			(id, institution_id, subject_name, subject_id, program, period, score,
			 artifact_key, artifact_url, fingerprint, status, fail_reason, issued,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		cred.ID, cred.InstitutionID, cred.SubjectName, cred.SubjectID, cred.Program,
		cred.Period, cred.Score, cred.ArtifactKey, cred.ArtifactURL, cred.Fingerprint,
		string(cred.Status), cred.FailReason, cred.Issued, cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Credential, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, credentialSelect+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetByFingerprint(ctx context.Context, fp string) (Credential, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, credentialSelect+` WHERE fingerprint = $1`, fp))
}

func (s *PostgresStore) scanOne(row *sql.Row) (Credential, error) {
	var cred Credential
	var status string
	err := row.Scan(&cred.ID, &cred.InstitutionID, &cred.SubjectName, &cred.SubjectID,
		&cred.Program, &cred.Period, &cred.Score, &cred.ArtifactKey, &cred.ArtifactURL,
		&cred.Fingerprint, &status, &cred.FailReason, &cred.Issued,
		&cred.CreatedAt, &cred.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("get credential: %w", err)
	}
	cred.Status = State(status)
	return cred, nil
}

func (s *PostgresStore) Update(ctx context.Context, cred Credential) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET status = $2, fail_reason = $3, issued = $4, artifact_key = $5,
		    artifact_url = $6, updated_at = $7
		WHERE id = $1`,
		cred.ID, string(cred.Status), cred.FailReason, cred.Issued,
		cred.ArtifactKey, cred.ArtifactURL, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByInstitution(ctx context.Context, institutionID string, page, limit int) ([]Credential, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM credentials WHERE institution_id = $1`, institutionID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count credentials: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, credentialSelect+`
		WHERE institution_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		institutionID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var credentials []Credential
	for rows.Next() {
		var cred Credential
		var status string
		if err := rows.Scan(&cred.ID, &cred.InstitutionID, &cred.SubjectName, &cred.SubjectID,
			&cred.Program, &cred.Period, &cred.Score, &cred.ArtifactKey, &cred.ArtifactURL,
			&cred.Fingerprint, &status, &cred.FailReason, &cred.Issued,
			&cred.CreatedAt, &cred.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan credential: %w", err)
		}
		cred.Status = State(status)
		credentials = append(credentials, cred)
	}
	return credentials, total, rows.Err()
}
