// Package verification answers the public question "is this credential
// real?". It consults both the ledger anchor and the local record and is
// honest about disagreement between them instead of picking a side.
package verification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/laksac24/VeriFy/internal/fingerprint"
	"github.com/laksac24/VeriFy/internal/issuance"
	"github.com/laksac24/VeriFy/internal/ledger"
	"github.com/laksac24/VeriFy/internal/onboarding"
	"github.com/laksac24/VeriFy/internal/platform/metrics"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
)

// Verdict classifies a verification outcome.
type Verdict string

const (
	// VerdictVerified means the ledger anchor and the local record exist and
	// agree.
	VerdictVerified Verdict = "verified"
	// VerdictDegraded means exactly one side knows the credential, or the two
	// sides disagree about the issuer. The response names what is missing.
	VerdictDegraded Verdict = "degraded"
	// VerdictUnknown means neither the ledger nor the directory has any trace.
	// This is a legitimate negative answer, not an error.
	VerdictUnknown Verdict = "unknown"
)

// Subject is the credential metadata shown to a verifier. Only fields that
// feed the fingerprint are exposed.
type Subject struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Program string `json:"program"`
	Period  string `json:"period"`
	Score   string `json:"score"`
}

// Result is the public verification answer.
type Result struct {
	Verdict     Verdict  `json:"verdict"`
	Fingerprint string   `json:"fingerprint"`
	IssuerName  string   `json:"issuer_name,omitempty"`
	Issuer      string   `json:"issuer,omitempty"`
	ArtifactURL string   `json:"artifact_url,omitempty"`
	Subject     *Subject `json:"subject,omitempty"`
	Notes       []string `json:"notes,omitempty"`
}

// CredentialLookup resolves fingerprints to local records. Satisfied by
// issuance.Store.
type CredentialLookup interface {
	GetByFingerprint(ctx context.Context, fp string) (issuance.Credential, error)
}

// IssuerDirectory resolves issuer identities and IDs. Satisfied by
// onboarding.InstitutionStore.
type IssuerDirectory interface {
	Get(ctx context.Context, id string) (onboarding.Institution, error)
	GetByLedgerIdentity(ctx context.Context, identity string) (onboarding.Institution, error)
}

type Service struct {
	gateway     ledger.Gateway
	credentials CredentialLookup
	directory   IssuerDirectory
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewService(gateway ledger.Gateway, credentials CredentialLookup, directory IssuerDirectory, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gateway:     gateway,
		credentials: credentials,
		directory:   directory,
		metrics:     m,
		logger:      logger,
	}
}

// Verify checks a fingerprint against the ledger and the local directory.
// A ledger outage is an error, never a negative verdict: "we cannot check"
// and "this is not real" must stay distinguishable.
func (s *Service) Verify(ctx context.Context, raw string) (Result, error) {
	fp, err := fingerprint.Parse(raw)
	if err != nil {
		return Result{}, err
	}
	result := Result{Fingerprint: fp.String()}

	anchor, err := s.gateway.Lookup(ctx, fp)
	if err != nil {
		return Result{}, err
	}

	cred, credErr := s.credentials.GetByFingerprint(ctx, fp.String())
	haveLocal := credErr == nil
	if credErr != nil && !errors.Is(credErr, sentinel.ErrNotFound) {
		return Result{}, dErrors.Wrap(credErr, dErrors.CodeInternal, "look up credential")
	}

	switch {
	case anchor.Valid && haveLocal:
		s.fill(ctx, &result, anchor, &cred)
		issuerInst, err := s.directory.GetByLedgerIdentity(ctx, anchor.Issuer)
		if err == nil && issuerInst.ID == cred.InstitutionID {
			result.Verdict = VerdictVerified
		} else {
			result.Verdict = VerdictDegraded
			result.Notes = append(result.Notes,
				"the on-ledger issuer does not match the institution that recorded this credential")
		}

	case anchor.Valid:
		result.Verdict = VerdictDegraded
		result.Notes = append(result.Notes,
			"anchored on the ledger but no local credential record exists")
		s.fill(ctx, &result, anchor, nil)

	case haveLocal:
		result.Verdict = VerdictDegraded
		result.Notes = append(result.Notes,
			"a local credential record exists but no ledger anchor was found")
		s.fill(ctx, &result, ledger.Anchor{}, &cred)

	default:
		result.Verdict = VerdictUnknown
	}

	if s.metrics != nil {
		s.metrics.Verifications.WithLabelValues(string(result.Verdict)).Inc()
	}
	return result, nil
}

// fill populates issuer and subject details from whichever sides exist.
func (s *Service) fill(ctx context.Context, result *Result, anchor ledger.Anchor, cred *issuance.Credential) {
	if anchor.Valid {
		result.Issuer = anchor.Issuer
		result.ArtifactURL = anchor.Pointer
		if inst, err := s.directory.GetByLedgerIdentity(ctx, anchor.Issuer); err == nil {
			result.IssuerName = inst.Name
		}
	}
	if cred == nil {
		return
	}
	result.Subject = &Subject{
		Name:    cred.SubjectName,
		ID:      cred.SubjectID,
		Program: cred.Program,
		Period:  cred.Period,
		Score:   cred.Score,
	}
	if result.ArtifactURL == "" {
		result.ArtifactURL = cred.ArtifactURL
	}
	if result.IssuerName == "" {
		if inst, err := s.directory.Get(ctx, cred.InstitutionID); err == nil {
			result.IssuerName = inst.Name
			if result.Issuer == "" {
				result.Issuer = inst.LedgerIdentity
			}
		}
	}
}
