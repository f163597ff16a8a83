// Package notify is the outbound email collaborator. Delivery is best-effort
// and never transactional with state transitions: a failed send must not roll
// back an already-committed approval or issuance.
package notify

import "context"

// Message is a plain email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends messages. Implementations should be cheap to call from
// request paths; callers log failures and move on.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
