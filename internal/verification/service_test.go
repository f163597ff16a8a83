package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/laksac24/VeriFy/internal/fingerprint"
	"github.com/laksac24/VeriFy/internal/issuance"
	"github.com/laksac24/VeriFy/internal/ledger"
	"github.com/laksac24/VeriFy/internal/objectstore"
	"github.com/laksac24/VeriFy/internal/onboarding"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// =============================================================================
// Verification Service Test Suite
// =============================================================================

type VerificationServiceSuite struct {
	suite.Suite
	store        *issuance.InMemoryStore
	gateway      *ledger.InMemoryGateway
	institutions *onboarding.InMemoryInstitutionStore
	issuer       *issuance.Service
	service      *Service

	institution onboarding.Institution
}

func TestVerificationServiceSuite(t *testing.T) {
	suite.Run(t, new(VerificationServiceSuite))
}

const issuerIdentity = "0x00000000000000000000000000000000000000bb"

func (s *VerificationServiceSuite) SetupTest() {
	ctx := context.Background()

	s.store = issuance.NewInMemoryStore()
	s.gateway = ledger.NewInMemory()
	s.gateway.Issuer = issuerIdentity
	s.Require().NoError(s.gateway.WhitelistIssuer(ctx, issuerIdentity))

	s.institutions = onboarding.NewInMemoryInstitutionStore()
	s.institution = onboarding.Institution{
		ID:                "inst-1",
		Name:              "Test University",
		AccreditationCode: "TU-001",
		Email:             "registrar@tu.edu",
		LedgerIdentity:    issuerIdentity,
		Status:            onboarding.StatusApproved,
		CreatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.institutions.Create(ctx, s.institution))

	s.issuer = issuance.NewService(issuance.Config{
		Store:         s.store,
		Artifacts:     objectstore.NewInMemory(),
		Stamper:       issuance.NewInMemoryStamper(),
		Ledger:        s.gateway,
		Institutions:  s.institutions,
		VerifyBaseURL: "https://verify.example/api/verify",
	})
	s.service = NewService(s.gateway, s.store, s.institutions, nil, nil)
}

// issueOne runs a credential through the full pipeline and returns its
// fingerprint.
func (s *VerificationServiceSuite) issueOne(ctx context.Context, subjectID string) string {
	results, err := s.issuer.SubmitBatch(ctx, s.institution.ID, []issuance.Submission{{
		SubjectName: "Ada Lovelace",
		SubjectID:   subjectID,
		Program:     "B.Tech CSE",
		Period:      "2026",
		Score:       "9.1",
		Document:    []byte("%PDF-1.7 " + subjectID),
		ContentType: "application/pdf",
	}})
	s.Require().NoError(err)
	s.Require().NoError(results[0].Err)

	_, err = s.issuer.AnchorBatch(ctx, s.institution.ID, []string{results[0].CredentialID})
	s.Require().NoError(err)
	finals, err := s.issuer.FinalizeBatch(ctx, s.institution.ID, []string{results[0].CredentialID})
	s.Require().NoError(err)
	s.Require().NoError(finals[0].Err)
	return results[0].Fingerprint
}

func (s *VerificationServiceSuite) TestVerify() {
	ctx := context.Background()

	s.Run("issued credential verifies with issuer and subject metadata", func() {
		fp := s.issueOne(ctx, "VR-001")

		result, err := s.service.Verify(ctx, fp)
		s.Require().NoError(err)
		s.Equal(VerdictVerified, result.Verdict)
		s.Equal("Test University", result.IssuerName)
		s.Equal(issuerIdentity, result.Issuer)
		s.NotEmpty(result.ArtifactURL)
		s.Require().NotNil(result.Subject)
		s.Equal("VR-001", result.Subject.ID)
		s.Empty(result.Notes)
	})

	s.Run("untracked fingerprint is unknown, not an error", func() {
		result, err := s.service.Verify(ctx,
			"0x1111111111111111111111111111111111111111111111111111111111111111")
		s.Require().NoError(err)
		s.Equal(VerdictUnknown, result.Verdict)
		s.Nil(result.Subject)
	})

	s.Run("malformed fingerprint fails validation", func() {
		_, err := s.service.Verify(ctx, "not-a-fingerprint")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("anchor without a local record is degraded and says which side is missing", func() {
		fp := s.issueOne(ctx, "VR-010")
		cred, err := s.store.GetByFingerprint(ctx, fp)
		s.Require().NoError(err)

		// Simulate a lost directory row by pointing the lookup at an empty store.
		lonely := NewService(s.gateway, issuance.NewInMemoryStore(), s.institutions, nil, nil)
		result, err := lonely.Verify(ctx, cred.Fingerprint)
		s.Require().NoError(err)
		s.Equal(VerdictDegraded, result.Verdict)
		s.Require().NotEmpty(result.Notes)
		s.Contains(result.Notes[0], "no local credential record")
		s.Equal("Test University", result.IssuerName)
		s.Nil(result.Subject)
	})

	s.Run("local record without an anchor is degraded the other way", func() {
		fp := s.issueOne(ctx, "VR-020")
		parsed, err := fingerprint.Parse(fp)
		s.Require().NoError(err)
		s.gateway.RemoveAnchor(parsed)

		result, err := s.service.Verify(ctx, fp)
		s.Require().NoError(err)
		s.Equal(VerdictDegraded, result.Verdict)
		s.Require().NotEmpty(result.Notes)
		s.Contains(result.Notes[0], "no ledger anchor")
		s.Require().NotNil(result.Subject)
		s.Equal("VR-020", result.Subject.ID)
	})

	s.Run("issuer mismatch between ledger and directory is degraded", func() {
		fp := s.issueOne(ctx, "VR-030")
		cred, err := s.store.GetByFingerprint(ctx, fp)
		s.Require().NoError(err)

		// Re-home the local record under a different institution.
		other := onboarding.Institution{
			ID: "inst-2", Name: "Other University", AccreditationCode: "OU-001",
			Email: "registrar@ou.edu", LedgerIdentity: "0x00000000000000000000000000000000000000cc",
			Status: onboarding.StatusApproved,
		}
		s.Require().NoError(s.institutions.Create(ctx, other))
		otherStore := issuance.NewInMemoryStore()
		cred.InstitutionID = other.ID
		s.Require().NoError(otherStore.Create(ctx, cred))

		mismatched := NewService(s.gateway, otherStore, s.institutions, nil, nil)
		result, err := mismatched.Verify(ctx, fp)
		s.Require().NoError(err)
		s.Equal(VerdictDegraded, result.Verdict)
		s.Require().NotEmpty(result.Notes)
		s.Contains(result.Notes[0], "does not match")
	})
}
