// Package audit emits structured events for approval decisions and credential
// issuance. Events are append-only and best-effort: a failed emit is logged,
// never allowed to fail the triggering operation.
package audit

import (
	"context"
	"time"
)

// Action names the thing that happened.
type Action string

const (
	ActionRegistrationStarted  Action = "registration_started"
	ActionRegistrationVerified Action = "registration_verified"
	ActionInstitutionApproved  Action = "institution_approved"
	ActionInstitutionRejected  Action = "institution_rejected"
	ActionIssuerWhitelisted    Action = "issuer_whitelisted"
	ActionIssuerRevoked        Action = "issuer_revoked"
	ActionBatchSubmitted       Action = "batch_submitted"
	ActionBatchAnchored        Action = "batch_anchored"
	ActionCredentialIssued     Action = "credential_issued"
	ActionConsistencyFault     Action = "consistency_fault"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	ActorID   string    `json:"actor_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close()
}
