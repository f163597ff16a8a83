package objectstore

import (
	"context"
	"path"
	"strconv"
	"sync"

	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

// InMemoryStore keeps artifacts in a map. Used by unit tests and local runs.
type InMemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int

	// FailNextUpload, when set, fails the next Upload call with CodeExternal.
	FailNextUpload bool
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string][]byte)}
}

func (s *InMemoryStore) Upload(_ context.Context, folder string, data []byte, _ string) (Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextUpload {
		s.FailNextUpload = false
		return Ref{}, dErrors.New(dErrors.CodeExternal, "simulated upload failure")
	}
	s.seq++
	key := path.Join(folder, strconv.Itoa(s.seq))
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = stored
	return Ref{Key: key, URL: "memory://" + key}, nil
}

func (s *InMemoryStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len reports how many artifacts are stored. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
