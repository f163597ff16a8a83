package onboarding

import (
	"context"
	"time"
)

// ChallengeStore holds the TTL-bound onboarding state: one-time OTP codes and
// pre-OTP registration snapshots. Both are tracked independently; one's
// validity never excuses the other's expiry.
//
// Implementations return sentinel.ErrNotFound for a missing or mismatched
// challenge and sentinel.ErrExpired for an elapsed registration window.
type ChallengeStore interface {
	// PutChallenge upserts the code for an email, overwriting any prior
	// pending challenge. Last write wins.
	PutChallenge(ctx context.Context, email, code string, ttl time.Duration) error
	// ConsumeChallenge atomically checks the code and deletes it on match, so
	// a code can never be used twice.
	ConsumeChallenge(ctx context.Context, email, code string) error

	PutTempRegistration(ctx context.Context, temp TempRegistration, ttl time.Duration) error
	GetTempRegistration(ctx context.Context, email string) (TempRegistration, error)
	DeleteTempRegistration(ctx context.Context, email string) error
}

// RequestStore persists OTP-verified requests awaiting an admin decision.
// Delete returns sentinel.ErrNotFound once another decision already removed
// the record; that is the concurrency control for competing admins.
type RequestStore interface {
	Create(ctx context.Context, req PendingRequest) error
	Get(ctx context.Context, id string) (PendingRequest, error)
	Delete(ctx context.Context, id string) error
	// List returns a page filtered by case-insensitive name substring, newest
	// first, along with the total matching count.
	List(ctx context.Context, page, limit int, search string) ([]PendingRequest, int, error)
	// ExistsForIdentity reports whether any in-flight request claims the
	// email, accreditation code, or ledger identity.
	ExistsForIdentity(ctx context.Context, email, accreditationCode, ledgerIdentity string) (bool, error)
}

// InstitutionStore persists the approved-institution directory.
type InstitutionStore interface {
	Create(ctx context.Context, inst Institution) error
	Get(ctx context.Context, id string) (Institution, error)
	GetByLedgerIdentity(ctx context.Context, identity string) (Institution, error)
	ExistsForIdentity(ctx context.Context, email, accreditationCode, ledgerIdentity string) (bool, error)
	List(ctx context.Context, page, limit int, search string) ([]Institution, int, error)
}
