package issuance

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/laksac24/VeriFy/internal/fingerprint"
	"github.com/laksac24/VeriFy/internal/ledger"
	"github.com/laksac24/VeriFy/internal/objectstore"
	"github.com/laksac24/VeriFy/internal/onboarding"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// =============================================================================
// Issuance Service Test Suite
// =============================================================================
// Justification for unit tests: the pipeline's partial-failure, timeout and
// consistency semantics depend on precisely staged collaborator faults that
// only the in-memory doubles can produce on demand.

type IssuanceServiceSuite struct {
	suite.Suite
	store        *InMemoryStore
	artifacts    *objectstore.InMemoryStore
	stamper      *InMemoryStamper
	gateway      *ledger.InMemoryGateway
	institutions *onboarding.InMemoryInstitutionStore
	service      *Service

	institution onboarding.Institution
}

func TestIssuanceServiceSuite(t *testing.T) {
	suite.Run(t, new(IssuanceServiceSuite))
}

const issuerIdentity = "0x00000000000000000000000000000000000000aa"

func (s *IssuanceServiceSuite) SetupTest() {
	ctx := context.Background()

	s.store = NewInMemoryStore()
	s.artifacts = objectstore.NewInMemory()
	s.stamper = NewInMemoryStamper()
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

	s.service = NewService(Config{
		Store:             s.store,
		Artifacts:         s.artifacts,
		Stamper:           s.stamper,
		Ledger:            s.gateway,
		Institutions:      s.institutions,
		VerifyBaseURL:     "https://verify.example/api/verify",
		UploadConcurrency: 2,
	})
}

func submission(subjectID string) Submission {
	return Submission{
		SubjectName: "Ada Lovelace",
		SubjectID:   subjectID,
		Program:     "B.Tech CSE",
		Period:      "2026",
		Score:       "9.1",
		Document:    []byte("%PDF-1.7 test document " + subjectID),
		ContentType: "application/pdf",
	}
}

// submitted pushes one submission through SubmitBatch and returns its ID.
func (s *IssuanceServiceSuite) submitted(ctx context.Context, subjectID string) string {
	results, err := s.service.SubmitBatch(ctx, s.institution.ID, []Submission{submission(subjectID)})
	s.Require().NoError(err)
	s.Require().NoError(results[0].Err)
	return results[0].CredentialID
}

// =============================================================================
// SubmitBatch Tests
// =============================================================================

func (s *IssuanceServiceSuite) TestSubmitBatch() {
	ctx := context.Background()

	s.Run("records uploaded credentials with deterministic fingerprints", func() {
		results, err := s.service.SubmitBatch(ctx, s.institution.ID,
			[]Submission{submission("TU-2026-001"), submission("TU-2026-002")})
		s.Require().NoError(err)
		s.Require().Len(results, 2)

		for _, r := range results {
			s.NoError(r.Err)
			s.True(strings.HasPrefix(r.Fingerprint, "0x"))
			s.Len(r.Fingerprint, 66)

			cred, err := s.store.Get(ctx, r.CredentialID)
			s.Require().NoError(err)
			s.Equal(StateUploaded, cred.Status)
			s.False(cred.Issued)
			s.NotEmpty(cred.ArtifactURL)
		}
		s.Equal(2, s.artifacts.Len())
	})

	s.Run("one bad row never sinks its siblings", func() {
		bad := submission("TU-2026-010")
		bad.Program = ""
		results, err := s.service.SubmitBatch(ctx, s.institution.ID,
			[]Submission{submission("TU-2026-011"), bad, submission("TU-2026-012")})
		s.Require().NoError(err)

		s.NoError(results[0].Err)
		s.True(dErrors.HasCode(results[1].Err, dErrors.CodeValidation))
		s.NotEmpty(results[1].Error)
		s.NoError(results[2].Err)
	})

	s.Run("identical tuple conflicts instead of silently duplicating", func() {
		first, err := s.service.SubmitBatch(ctx, s.institution.ID, []Submission{submission("TU-2026-020")})
		s.Require().NoError(err)
		s.Require().NoError(first[0].Err)

		again, err := s.service.SubmitBatch(ctx, s.institution.ID, []Submission{submission("TU-2026-020")})
		s.Require().NoError(err)
		s.True(dErrors.HasCode(again[0].Err, dErrors.CodeConflict))
	})

	s.Run("upload failure fails only the affected row", func() {
		s.artifacts.FailNextUpload = true
		results, err := s.service.SubmitBatch(ctx, s.institution.ID, []Submission{submission("TU-2026-030")})
		s.Require().NoError(err)
		s.True(dErrors.HasCode(results[0].Err, dErrors.CodeExternal))
	})

	s.Run("empty batch fails validation", func() {
		_, err := s.service.SubmitBatch(ctx, s.institution.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown institution is not found", func() {
		_, err := s.service.SubmitBatch(ctx, "ghost", []Submission{submission("TU-2026-040")})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// AnchorBatch Tests
// =============================================================================

func (s *IssuanceServiceSuite) TestAnchorBatch() {
	ctx := context.Background()

	s.Run("anchors the whole batch in one transaction", func() {
		a := s.submitted(ctx, "AN-001")
		b := s.submitted(ctx, "AN-002")

		anchored, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{a, b})
		s.Require().NoError(err)
		s.Require().Len(anchored, 2)
		for _, cred := range anchored {
			s.Equal(StateAnchored, cred.Status)
		}
	})

	s.Run("confirmation timeout parks the batch as pending uncertain", func() {
		id := s.submitted(ctx, "AN-010")
		s.gateway.TimeoutOnAnchor = true

		credentials, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.True(dErrors.HasCode(err, dErrors.CodeConfirmationTimeout))
		s.Require().Len(credentials, 1)
		s.Equal(StatePendingUncertain, credentials[0].Status)
	})

	s.Run("ledger rejection fails the batch with a reason", func() {
		id := s.submitted(ctx, "AN-020")
		s.Require().NoError(s.gateway.RevokeIssuer(ctx, issuerIdentity))

		credentials, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))
		s.Require().Len(credentials, 1)
		s.Equal(StateFailed, credentials[0].Status)
		s.NotEmpty(credentials[0].FailReason)

		s.Require().NoError(s.gateway.WhitelistIssuer(ctx, issuerIdentity))
	})

	s.Run("transient submit failure leaves the batch anchorable", func() {
		id := s.submitted(ctx, "AN-030")
		s.gateway.SubmitErr = dErrors.New(dErrors.CodeExternal, "rpc unreachable")

		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.True(dErrors.HasCode(err, dErrors.CodeExternal))

		cred, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		s.Equal(StateUploaded, cred.Status)
	})

	s.Run("anchoring an already anchored credential is rejected up front", func() {
		id := s.submitted(ctx, "AN-040")
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)

		_, err = s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("another institution's credential is invisible", func() {
		id := s.submitted(ctx, "AN-050")
		_, err := s.service.AnchorBatch(ctx, "other-inst", []string{id})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// ResolvePending Tests
// =============================================================================

func (s *IssuanceServiceSuite) TestResolvePending() {
	ctx := context.Background()

	s.Run("anchor that landed after the timeout promotes to anchored", func() {
		id := s.submitted(ctx, "RP-001")
		s.gateway.TimeoutOnAnchor = true
		s.gateway.LandDespiteTimeout = true
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConfirmationTimeout))

		cred, err := s.service.ResolvePending(ctx, s.institution.ID, id)
		s.Require().NoError(err)
		s.Equal(StateAnchored, cred.Status)
		s.Empty(cred.FailReason)
	})

	s.Run("anchor that never landed returns to uploaded", func() {
		id := s.submitted(ctx, "RP-002")
		s.gateway.TimeoutOnAnchor = true
		s.gateway.LandDespiteTimeout = false
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConfirmationTimeout))

		cred, err := s.service.ResolvePending(ctx, s.institution.ID, id)
		s.Require().NoError(err)
		s.Equal(StateUploaded, cred.Status)

		// And the fresh attempt succeeds.
		anchored, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.Equal(StateAnchored, anchored[0].Status)
	})

	s.Run("anchor written by a different issuer never promotes", func() {
		id := s.submitted(ctx, "RP-004")
		s.gateway.TimeoutOnAnchor = true
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConfirmationTimeout))

		cred, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		fp, err := fingerprint.Parse(cred.Fingerprint)
		s.Require().NoError(err)
		s.gateway.PutAnchor(fp, "0x00000000000000000000000000000000000000bb", cred.ArtifactURL)

		_, err = s.service.ResolvePending(ctx, s.institution.ID, id)
		s.True(dErrors.HasCode(err, dErrors.CodeConsistency))

		cred, err = s.store.Get(ctx, id)
		s.Require().NoError(err)
		s.Equal(StatePendingUncertain, cred.Status)
	})

	s.Run("only pending-uncertain credentials can be resolved", func() {
		id := s.submitted(ctx, "RP-003")
		_, err := s.service.ResolvePending(ctx, s.institution.ID, id)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// FinalizeBatch Tests
// =============================================================================

func (s *IssuanceServiceSuite) TestFinalizeBatch() {
	ctx := context.Background()

	s.Run("stamps the verification link and marks issued", func() {
		id := s.submitted(ctx, "FN-001")
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)

		results, err := s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.Require().NoError(results[0].Err)

		cred, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		s.Equal(StateIssued, cred.Status)
		s.True(cred.Issued)

		links := s.stamper.Links()
		s.Require().NotEmpty(links)
		s.Equal("https://verify.example/api/verify/"+cred.Fingerprint, links[len(links)-1])

		// The stamped artifact replaced the reference.
		data, err := s.artifacts.Fetch(ctx, cred.ArtifactKey)
		s.Require().NoError(err)
		s.Contains(string(data), cred.Fingerprint)
	})

	s.Run("finalizing twice is a no-op, not a second stamp", func() {
		id := s.submitted(ctx, "FN-002")
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)

		_, err = s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		stampsAfterFirst := len(s.stamper.Links())

		results, err := s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.NoError(results[0].Err)
		s.Len(s.stamper.Links(), stampsAfterFirst)
	})

	s.Run("unanchored credential cannot be finalized", func() {
		id := s.submitted(ctx, "FN-003")
		results, err := s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.True(dErrors.HasCode(results[0].Err, dErrors.CodeValidation))
	})

	s.Run("anchored in the database but absent on the ledger is a consistency fault", func() {
		id := s.submitted(ctx, "FN-004")
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)

		cred, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		fp, err := fingerprint.Parse(cred.Fingerprint)
		s.Require().NoError(err)
		s.gateway.RemoveAnchor(fp)

		results, err := s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.True(dErrors.HasCode(results[0].Err, dErrors.CodeConsistency))
	})

	s.Run("anchor from a different issuer is a consistency fault", func() {
		id := s.submitted(ctx, "FN-006")
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)

		cred, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		fp, err := fingerprint.Parse(cred.Fingerprint)
		s.Require().NoError(err)
		s.gateway.PutAnchor(fp, "0x00000000000000000000000000000000000000bb", cred.ArtifactURL)

		results, err := s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.True(dErrors.HasCode(results[0].Err, dErrors.CodeConsistency))

		cred, err = s.store.Get(ctx, id)
		s.Require().NoError(err)
		s.False(cred.Issued)
	})

	s.Run("finalized credential completes without a second stamp", func() {
		id := s.submitted(ctx, "FN-007")
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)

		// Model a crash after the stamped artifact was recorded but before
		// the issued flag was set.
		cred, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		cred.Status = StateFinalized
		s.Require().NoError(s.store.Update(ctx, cred))
		stampsBefore := len(s.stamper.Links())

		results, err := s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.Require().NoError(results[0].Err)
		s.Len(s.stamper.Links(), stampsBefore)

		cred, err = s.store.Get(ctx, id)
		s.Require().NoError(err)
		s.Equal(StateIssued, cred.Status)
		s.True(cred.Issued)
	})

	s.Run("stamp failure leaves the credential anchored for retry", func() {
		id := s.submitted(ctx, "FN-005")
		_, err := s.service.AnchorBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)

		s.stamper.FailNext = true
		results, err := s.service.FinalizeBatch(ctx, s.institution.ID, []string{id})
		s.Require().NoError(err)
		s.Error(results[0].Err)

		cred, err := s.store.Get(ctx, id)
		s.Require().NoError(err)
		s.Equal(StateAnchored, cred.Status)
		s.False(cred.Issued)
	})
}

// =============================================================================
// List Tests
// =============================================================================

func (s *IssuanceServiceSuite) TestList() {
	ctx := context.Background()

	s.Run("pages credentials with total", func() {
		for i := 0; i < 3; i++ {
			s.submitted(ctx, "LS-00"+string(rune('1'+i)))
		}
		page, total, err := s.service.List(ctx, s.institution.ID, 1, 2)
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Len(page, 2)
	})

	s.Run("other institutions see nothing", func() {
		_, total, err := s.service.List(ctx, "other-inst", 1, 10)
		s.Require().NoError(err)
		s.Zero(total)
	})
}
