package onboarding

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// In-memory stores back unit tests and local runs. Expiry is evaluated
// against requestcontext.Now so tests can freeze the clock.

type challengeEntry struct {
	code      string
	expiresAt time.Time
}

type tempEntry struct {
	temp      TempRegistration
	expiresAt time.Time
}

type InMemoryChallengeStore struct {
	mu    sync.Mutex
	codes map[string]challengeEntry
	temps map[string]tempEntry
}

func NewInMemoryChallengeStore() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{
		codes: make(map[string]challengeEntry),
		temps: make(map[string]tempEntry),
	}
}

func (s *InMemoryChallengeStore) PutChallenge(ctx context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[strings.ToLower(email)] = challengeEntry{
		code:      code,
		expiresAt: requestcontext.Now(ctx).Add(ttl),
	}
	return nil
}

func (s *InMemoryChallengeStore) ConsumeChallenge(ctx context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	entry, ok := s.codes[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	if requestcontext.Now(ctx).After(entry.expiresAt) {
		delete(s.codes, key)
		return sentinel.ErrNotFound
	}
	if entry.code != code {
		return sentinel.ErrNotFound
	}
	delete(s.codes, key)
	return nil
}

func (s *InMemoryChallengeStore) PutTempRegistration(ctx context.Context, temp TempRegistration, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temps[strings.ToLower(temp.Email)] = tempEntry{
		temp:      temp,
		expiresAt: requestcontext.Now(ctx).Add(ttl),
	}
	return nil
}

func (s *InMemoryChallengeStore) GetTempRegistration(ctx context.Context, email string) (TempRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	entry, ok := s.temps[key]
	if !ok {
		return TempRegistration{}, sentinel.ErrNotFound
	}
	if requestcontext.Now(ctx).After(entry.expiresAt) {
		delete(s.temps, key)
		return TempRegistration{}, sentinel.ErrExpired
	}
	return entry.temp, nil
}

func (s *InMemoryChallengeStore) DeleteTempRegistration(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.temps, strings.ToLower(email))
	return nil
}

type InMemoryRequestStore struct {
	mu       sync.Mutex
	requests map[string]PendingRequest
}

func NewInMemoryRequestStore() *InMemoryRequestStore {
	return &InMemoryRequestStore{requests: make(map[string]PendingRequest)}
}

func (s *InMemoryRequestStore) Create(_ context.Context, req PendingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if strings.EqualFold(existing.Email, req.Email) {
			return sentinel.ErrConflict
		}
	}
	s.requests[req.ID] = req
	return nil
}

func (s *InMemoryRequestStore) Get(_ context.Context, id string) (PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return PendingRequest{}, sentinel.ErrNotFound
	}
	return req, nil
}

func (s *InMemoryRequestStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.requests, id)
	return nil
}

func (s *InMemoryRequestStore) List(_ context.Context, page, limit int, search string) ([]PendingRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []PendingRequest
	needle := strings.ToLower(search)
	for _, req := range s.requests {
		if needle == "" || strings.Contains(strings.ToLower(req.Name), needle) {
			matched = append(matched, req)
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

func (s *InMemoryRequestStore) ExistsForIdentity(_ context.Context, email, accreditationCode, ledgerIdentity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if strings.EqualFold(req.Email, email) ||
			req.AccreditationCode == accreditationCode ||
			strings.EqualFold(req.LedgerIdentity, ledgerIdentity) {
			return true, nil
		}
	}
	return false, nil
}

type InMemoryInstitutionStore struct {
	mu           sync.Mutex
	institutions map[string]Institution
}

func NewInMemoryInstitutionStore() *InMemoryInstitutionStore {
	return &InMemoryInstitutionStore{institutions: make(map[string]Institution)}
}

func (s *InMemoryInstitutionStore) Create(_ context.Context, inst Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.institutions {
		if strings.EqualFold(existing.Email, inst.Email) ||
			existing.AccreditationCode == inst.AccreditationCode ||
			strings.EqualFold(existing.LedgerIdentity, inst.LedgerIdentity) {
			return sentinel.ErrConflict
		}
	}
	s.institutions[inst.ID] = inst
	return nil
}

func (s *InMemoryInstitutionStore) Get(_ context.Context, id string) (Institution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.institutions[id]
	if !ok {
		return Institution{}, sentinel.ErrNotFound
	}
	return inst, nil
}

func (s *InMemoryInstitutionStore) GetByLedgerIdentity(_ context.Context, identity string) (Institution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.institutions {
		if strings.EqualFold(inst.LedgerIdentity, identity) {
			return inst, nil
		}
	}
	return Institution{}, sentinel.ErrNotFound
}

func (s *InMemoryInstitutionStore) ExistsForIdentity(_ context.Context, email, accreditationCode, ledgerIdentity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.institutions {
		if strings.EqualFold(inst.Email, email) ||
			inst.AccreditationCode == accreditationCode ||
			strings.EqualFold(inst.LedgerIdentity, ledgerIdentity) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryInstitutionStore) List(_ context.Context, page, limit int, search string) ([]Institution, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []Institution
	needle := strings.ToLower(search)
	for _, inst := range s.institutions {
		if needle == "" || strings.Contains(strings.ToLower(inst.Name), needle) {
			matched = append(matched, inst)
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
