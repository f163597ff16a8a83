package issuance

import (
	"context"
	"sort"
	"sync"

	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

// InMemoryStore backs unit tests and local runs.
type InMemoryStore struct {
	mu          sync.Mutex
	credentials map[string]Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[string]Credential)}
}

func (s *InMemoryStore) Create(_ context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.credentials {
		if existing.Fingerprint == cred.Fingerprint {
			return sentinel.ErrConflict
		}
	}
	s.credentials[cred.ID] = cred
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[id]
	if !ok {
		return Credential{}, sentinel.ErrNotFound
	}
	return cred, nil
}

func (s *InMemoryStore) GetByFingerprint(_ context.Context, fp string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cred := range s.credentials {
		if cred.Fingerprint == fp {
			return cred, nil
		}
	}
	return Credential{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.credentials[cred.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Status = cred.Status
	existing.FailReason = cred.FailReason
	existing.Issued = cred.Issued
	existing.ArtifactKey = cred.ArtifactKey
	existing.ArtifactURL = cred.ArtifactURL
	existing.UpdatedAt = cred.UpdatedAt
	s.credentials[cred.ID] = existing
	return nil
}

func (s *InMemoryStore) ListByInstitution(_ context.Context, institutionID string, page, limit int) ([]Credential, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Credential
	for _, cred := range s.credentials {
		if cred.InstitutionID == institutionID {
			matched = append(matched, cred)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
