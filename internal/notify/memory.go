package notify

import (
	"context"
	"sync"

	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// InMemoryNotifier records sent messages for assertions in tests.
type InMemoryNotifier struct {
	mu       sync.Mutex
	messages []Message

	// FailNext fails the next Send call. Used to prove notification failures
	// never roll back committed transitions.
	FailNext bool
}

func NewInMemory() *InMemoryNotifier {
	return &InMemoryNotifier{}
}

func (n *InMemoryNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailNext {
		n.FailNext = false
		return dErrors.New(dErrors.CodeExternal, "simulated mail failure")
	}
	n.messages = append(n.messages, msg)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (n *InMemoryNotifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}
