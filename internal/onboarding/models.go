package onboarding

import (
	"net/mail"
	"strings"
	"time"

	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// Status is an institution's directory standing. Pre-approval stages live in
// the challenge and pending-request stores, which expire or delete their
// records; a directory row is written only on approval and never deleted.
type Status string

const StatusApproved Status = "approved"

// Profile is the onboarding submission before any verification happened. The
// plaintext password lives only in the TTL-bound temp registration snapshot
// and is hashed as soon as the OTP is verified; Profile itself is never
// written to a response body.
type Profile struct {
	Name              string `json:"name"`
	AccreditationCode string `json:"accreditation_code"`
	Email             string `json:"email"`
	LedgerIdentity    string `json:"ledger_identity"`
	LetterRef         string `json:"letter_ref"`
	Password          string `json:"password"`
}

// Validate rejects incomplete profiles before any external call.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "institution name is required")
	}
	if strings.TrimSpace(p.AccreditationCode) == "" {
		return dErrors.New(dErrors.CodeValidation, "accreditation code is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "contact email is invalid")
	}
	if strings.TrimSpace(p.LedgerIdentity) == "" {
		return dErrors.New(dErrors.CodeValidation, "ledger identity is required")
	}
	if len(p.Password) < 8 {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	return nil
}

// TempRegistration is the pre-OTP snapshot of a profile, keyed by email.
// Upsert-on-retry; expires after the registration TTL.
type TempRegistration struct {
	Profile
	CreatedAt time.Time `json:"created_at"`
}

// PendingRequest is an OTP-verified snapshot awaiting an admin decision. It
// exists only between OtpVerified and the terminal decision and is deleted on
// decision; that delete is what resolves concurrent decisions.
type PendingRequest struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	AccreditationCode string    `json:"accreditation_code"`
	Email             string    `json:"email"`
	LedgerIdentity    string    `json:"ledger_identity"`
	LetterRef         string    `json:"letter_ref"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

// Institution is the durable directory record, created only on approval.
type Institution struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	AccreditationCode string    `json:"accreditation_code"`
	Email             string    `json:"email"`
	LedgerIdentity    string    `json:"ledger_identity"`
	LetterRef         string    `json:"letter_ref"`
	Status            Status    `json:"status"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Outcome is an admin decision on a pending request.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)
