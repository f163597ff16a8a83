package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

// PostgresRequestStore persists pending approval requests.
type PostgresRequestStore struct {
	db *sql.DB
}

func NewPostgresRequestStore(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

func (s *PostgresRequestStore) Create(ctx context.Context, req PendingRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_requests
			(id, name, accreditation_code, email, ledger_identity, letter_ref, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.Name, req.AccreditationCode, strings.ToLower(req.Email),
		strings.ToLower(req.LedgerIdentity), req.LetterRef, req.PasswordHash, req.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert pending request: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) Get(ctx context.Context, id string) (PendingRequest, error) {
	var req PendingRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, accreditation_code, email, ledger_identity, letter_ref, password_hash, created_at
		FROM pending_requests WHERE id = $1`, id,
	).Scan(&req.ID, &req.Name, &req.AccreditationCode, &req.Email,
		&req.LedgerIdentity, &req.LetterRef, &req.PasswordHash, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingRequest{}, sentinel.ErrNotFound
	}
	if err != nil {
		return PendingRequest{}, fmt.Errorf("get pending request: %w", err)
	}
	return req, nil
}

// Delete removes the request and reports whether this caller won the race.
// RowsAffected is the arbiter: the loser of two concurrent decisions sees
// zero rows and gets ErrNotFound.
func (s *PostgresRequestStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresRequestStore) List(ctx context.Context, page, limit int, search string) ([]PendingRequest, int, error) {
	pattern := "%" + strings.ToLower(search) + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM pending_requests WHERE lower(name) LIKE $1`, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count pending requests: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, accreditation_code, email, ledger_identity, letter_ref, password_hash, created_at
		FROM pending_requests
		WHERE lower(name) LIKE $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		pattern, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []PendingRequest
	for rows.Next() {
		var req PendingRequest
		if err := rows.Scan(&req.ID, &req.Name, &req.AccreditationCode, &req.Email,
			&req.LedgerIdentity, &req.LetterRef, &req.PasswordHash, &req.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan pending request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

func (s *PostgresRequestStore) ExistsForIdentity(ctx context.Context, email, accreditationCode, ledgerIdentity string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pending_requests
			WHERE email = $1 OR accreditation_code = $2 OR ledger_identity = $3
		)`,
		strings.ToLower(email), accreditationCode, strings.ToLower(ledgerIdentity),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending identity: %w", err)
	}
	return exists, nil
}

// PostgresInstitutionStore persists the approved-institution directory.
type PostgresInstitutionStore struct {
	db *sql.DB
}

func NewPostgresInstitutionStore(db *sql.DB) *PostgresInstitutionStore {
	return &PostgresInstitutionStore{db: db}
}

func (s *PostgresInstitutionStore) Create(ctx context.Context, inst Institution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO institutions
			(id, name, accreditation_code, email, ledger_identity, letter_ref, status, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inst.ID, inst.Name, inst.AccreditationCode, strings.ToLower(inst.Email),
		strings.ToLower(inst.LedgerIdentity), inst.LetterRef, string(inst.Status),
		inst.PasswordHash, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert institution: %w", err)
	}
	return nil
}

func (s *PostgresInstitutionStore) Get(ctx context.Context, id string) (Institution, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, institutionSelect+` WHERE id = $1`, id))
}

func (s *PostgresInstitutionStore) GetByLedgerIdentity(ctx context.Context, identity string) (Institution, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		institutionSelect+` WHERE ledger_identity = $1`, strings.ToLower(identity)))
}

const institutionSelect = `
	SELECT id, name, accreditation_code, email, ledger_identity, letter_ref, status, password_hash, created_at, updated_at
	FROM institutions`

func (s *PostgresInstitutionStore) scanOne(row *sql.Row) (Institution, error) {
	var inst Institution
	var status string
	err := row.Scan(&inst.ID, &inst.Name, &inst.AccreditationCode, &inst.Email,
		&inst.LedgerIdentity, &inst.LetterRef, &status, &inst.PasswordHash,
		&inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Institution{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Institution{}, fmt.Errorf("get institution: %w", err)
	}
	inst.Status = Status(status)
	return inst, nil
}

func (s *PostgresInstitutionStore) ExistsForIdentity(ctx context.Context, email, accreditationCode, ledgerIdentity string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM institutions
			WHERE email = $1 OR accreditation_code = $2 OR ledger_identity = $3
		)`,
		strings.ToLower(email), accreditationCode, strings.ToLower(ledgerIdentity),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check institution identity: %w", err)
	}
	return exists, nil
}

func (s *PostgresInstitutionStore) List(ctx context.Context, page, limit int, search string) ([]Institution, int, error) {
	pattern := "%" + strings.ToLower(search) + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM institutions WHERE lower(name) LIKE $1`, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count institutions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, institutionSelect+`
		WHERE lower(name) LIKE $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		pattern, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	var institutions []Institution
	for rows.Next() {
		var inst Institution
		var status string
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.AccreditationCode, &inst.Email,
			&inst.LedgerIdentity, &inst.LetterRef, &status, &inst.PasswordHash,
			&inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan institution: %w", err)
		}
		inst.Status = Status(status)
		institutions = append(institutions, inst)
	}
	return institutions, total, rows.Err()
}
