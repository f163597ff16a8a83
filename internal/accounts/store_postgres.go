package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, strings.ToLower(account.Email), account.PasswordHash,
		string(account.Role), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string, role Role) (Account, error) {
	var account Account
	var roleStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at, updated_at
		FROM accounts WHERE email = $1 AND role = $2`,
		strings.ToLower(email), string(role),
	).Scan(&account.ID, &account.Email, &account.PasswordHash, &roleStr,
		&account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	account.Role = Role(roleStr)
	return account, nil
}
