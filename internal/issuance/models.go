package issuance

import (
	"time"

	"github.com/laksac24/VeriFy/internal/fingerprint"
)

// State tracks a credential through the issuance pipeline.
//
//	Uploaded → Anchored → Finalized → Issued
//
// Finalized means the stamped artifact is stored but the issued flag is not
// yet set; finalizing again completes it without a second stamp.
// PendingUncertain parks a credential whose anchor transaction timed out
// without a definitive outcome; resolution moves it to Anchored or back to
// Uploaded. Failed is terminal for the attempt and carries a reason.
type State string

const (
	StateUploaded         State = "uploaded"
	StateAnchored         State = "anchored"
	StateFinalized        State = "finalized"
	StateIssued           State = "issued"
	StatePendingUncertain State = "pending_uncertain"
	StateFailed           State = "failed"
)

// Credential is one issued document. The fingerprint and the fields that feed
// it are immutable after creation; only status, the artifact reference and the
// issued flag change.
type Credential struct {
	ID            string    `json:"id"`
	InstitutionID string    `json:"institution_id"`
	SubjectName   string    `json:"subject_name"`
	SubjectID     string    `json:"subject_id"`
	Program       string    `json:"program"`
	Period        string    `json:"period"`
	Score         string    `json:"score"`
	ArtifactKey   string    `json:"-"`
	ArtifactURL   string    `json:"artifact_url"`
	Fingerprint   string    `json:"fingerprint"`
	Status        State     `json:"status"`
	FailReason    string    `json:"fail_reason,omitempty"`
	Issued        bool      `json:"issued"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Submission is one row of an issuance batch: the subject metadata plus the
// raw document to store.
type Submission struct {
	SubjectName string
	SubjectID   string
	Program     string
	Period      string
	Score       string
	Document    []byte
	ContentType string
}

// SubmitResult reports the outcome for one submission in a batch. Err is nil
// on success; failures carry a coded error and never abort the siblings.
type SubmitResult struct {
	Index        int    `json:"index"`
	CredentialID string `json:"credential_id,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Err          error  `json:"-"`
	Error        string `json:"error,omitempty"`
}

func (s Submission) fields(institutionName string) fingerprint.Fields {
	return fingerprint.Fields{
		SubjectName: s.SubjectName,
		SubjectID:   s.SubjectID,
		Program:     s.Program,
		Period:      s.Period,
		Institution: institutionName,
		Score:       s.Score,
	}
}
