package accounts

import (
	"context"
	"strings"
	"sync"

	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

// InMemoryStore keeps accounts in a map keyed by (email, role).
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]Account)}
}

func memKey(email string, role Role) string {
	return strings.ToLower(email) + "|" + string(role)
}

func (s *InMemoryStore) Create(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(account.Email, account.Role)
	if _, exists := s.accounts[key]; exists {
		return sentinel.ErrConflict
	}
	s.accounts[key] = account
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string, role Role) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if account, ok := s.accounts[memKey(email, role)]; ok {
		return account, nil
	}
	return Account{}, sentinel.ErrNotFound
}
