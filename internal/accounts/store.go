package accounts

import "context"

// Store persists accounts. Implementations return sentinel.ErrNotFound and
// sentinel.ErrConflict; the service translates them.
type Store interface {
	Create(ctx context.Context, account Account) error
	FindByEmail(ctx context.Context, email string, role Role) (Account, error)
}
