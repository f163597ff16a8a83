package issuance

import "context"

// Store persists credentials. Implementations return sentinel.ErrNotFound for
// missing records and sentinel.ErrConflict when a fingerprint is already
// taken.
type Store interface {
	Create(ctx context.Context, cred Credential) error
	Get(ctx context.Context, id string) (Credential, error)
	GetByFingerprint(ctx context.Context, fp string) (Credential, error)
	// Update rewrites the mutable columns: status, fail reason, issued flag
	// and the artifact reference. Immutable fields are ignored.
	Update(ctx context.Context, cred Credential) error
	// ListByInstitution pages one institution's credentials newest first and
	// returns the total count.
	ListByInstitution(ctx context.Context, institutionID string, page, limit int) ([]Credential, int, error)
}
