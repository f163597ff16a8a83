package onboarding

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/laksac24/VeriFy/internal/accounts"
	"github.com/laksac24/VeriFy/internal/audit"
	"github.com/laksac24/VeriFy/internal/ledger"
	"github.com/laksac24/VeriFy/internal/notify"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// =============================================================================
// Onboarding Service Test Suite
// =============================================================================
// Justification for unit tests: the onboarding flow crosses two expiring
// stores, a ledger and a mail sink, and its race and expiry semantics are
// impractical to pin down through E2E tests.

type OnboardingServiceSuite struct {
	suite.Suite
	challenges   *InMemoryChallengeStore
	requests     *InMemoryRequestStore
	institutions *InMemoryInstitutionStore
	accounts     *accounts.InMemoryStore
	gateway      *ledger.InMemoryGateway
	notifier     *notify.InMemoryNotifier
	auditor      *audit.InMemoryPublisher
	service      *Service
}

func TestOnboardingServiceSuite(t *testing.T) {
	suite.Run(t, new(OnboardingServiceSuite))
}

func (s *OnboardingServiceSuite) SetupTest() {
	s.challenges = NewInMemoryChallengeStore()
	s.requests = NewInMemoryRequestStore()
	s.institutions = NewInMemoryInstitutionStore()
	s.accounts = accounts.NewInMemoryStore()
	s.gateway = ledger.NewInMemory()
	s.notifier = notify.NewInMemory()
	s.auditor = audit.NewInMemory()

	s.service = NewService(Config{
		Challenges:      s.challenges,
		Requests:        s.requests,
		Institutions:    s.institutions,
		Accounts:        accounts.NewService(s.accounts, "test-signing-key"),
		Ledger:          s.gateway,
		Notifier:        s.notifier,
		Auditor:         s.auditor,
		Logger:          slog.New(slog.DiscardHandler),
		OTPTTL:          10 * time.Minute,
		RegistrationTTL: 15 * time.Minute,
		AdminEmail:      "admin@verify.example",
	})
}

func validProfile() Profile {
	return Profile{
		Name:              "Test University",
		AccreditationCode: "TU-001",
		Email:             "registrar@test-university.edu",
		LedgerIdentity:    "0xAbCd000000000000000000000000000000000001",
		LetterRef:         "letters/tu-001.pdf",
		Password:          "correct-horse-battery",
	}
}

// lastCode digs the issued one-time code out of the most recent mail to the
// given address.
func (s *OnboardingServiceSuite) lastCode(email string) string {
	for i := len(s.notifier.Sent()) - 1; i >= 0; i-- {
		msg := s.notifier.Sent()[i]
		if msg.To != email {
			continue
		}
		_, rest, ok := strings.Cut(msg.Body, "code is: ")
		s.Require().True(ok, "otp mail body did not contain a code")
		return rest[:otpLength]
	}
	s.Require().Fail("no mail sent to " + email)
	return ""
}

// =============================================================================
// BeginRegistration Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestBeginRegistration() {
	ctx := context.Background()

	s.Run("stores challenge and mails a six digit code", func() {
		profile := validProfile()
		s.Require().NoError(s.service.BeginRegistration(ctx, profile))

		code := s.lastCode(profile.Email)
		s.Len(code, 6)
		s.NoError(s.challenges.ConsumeChallenge(ctx, profile.Email, code))
	})

	s.Run("retry reissues the code and invalidates the old one", func() {
		profile := validProfile()
		profile.Email = "retry@test-university.edu"
		profile.AccreditationCode = "TU-RETRY"
		profile.LedgerIdentity = "0x0000000000000000000000000000000000000002"

		s.Require().NoError(s.service.BeginRegistration(ctx, profile))
		first := s.lastCode(profile.Email)
		s.Require().NoError(s.service.BeginRegistration(ctx, profile))
		second := s.lastCode(profile.Email)

		if first != second {
			err := s.challenges.ConsumeChallenge(ctx, profile.Email, first)
			s.Error(err, "stale code must not redeem")
		}
		s.NoError(s.challenges.ConsumeChallenge(ctx, profile.Email, second))
	})

	s.Run("incomplete profile is rejected before any side effect", func() {
		profile := validProfile()
		profile.AccreditationCode = ""
		err := s.service.BeginRegistration(ctx, profile)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("identity claimed by pending request conflicts", func() {
		profile := validProfile()
		profile.Email = "pending@test-university.edu"
		profile.AccreditationCode = "TU-PEND"
		profile.LedgerIdentity = "0x0000000000000000000000000000000000000003"
		s.Require().NoError(s.requests.Create(ctx, PendingRequest{
			ID: "req-1", Name: "Other", AccreditationCode: profile.AccreditationCode,
			Email: "other@example.edu", LedgerIdentity: "0x0000000000000000000000000000000000000099",
		}))

		err := s.service.BeginRegistration(ctx, profile)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("identity claimed by approved institution conflicts", func() {
		profile := validProfile()
		profile.Email = "claimed@test-university.edu"
		profile.AccreditationCode = "TU-CLAIM"
		s.Require().NoError(s.institutions.Create(ctx, Institution{
			ID: "inst-1", Email: "existing@example.edu", AccreditationCode: "X-1",
			LedgerIdentity: strings.ToLower(profile.LedgerIdentity),
		}))

		err := s.service.BeginRegistration(ctx, profile)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("mail failure is surfaced as an external error", func() {
		profile := validProfile()
		profile.Email = "mailfail@test-university.edu"
		profile.AccreditationCode = "TU-MAIL"
		profile.LedgerIdentity = "0x0000000000000000000000000000000000000004"
		s.notifier.FailNext = true

		err := s.service.BeginRegistration(ctx, profile)
		s.True(dErrors.HasCode(err, dErrors.CodeExternal))
	})
}

// =============================================================================
// VerifyOtp Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestVerifyOtp() {
	ctx := context.Background()

	s.Run("correct code creates a pending request with hashed password", func() {
		profile := validProfile()
		s.Require().NoError(s.service.BeginRegistration(ctx, profile))
		code := s.lastCode(profile.Email)

		req, err := s.service.VerifyOtp(ctx, profile.Email, code)
		s.Require().NoError(err)
		s.Equal(profile.Name, req.Name)
		s.Equal(strings.ToLower(profile.LedgerIdentity), req.LedgerIdentity)
		s.NotEqual(profile.Password, req.PasswordHash)
		s.NoError(bcrypt.CompareHashAndPassword([]byte(req.PasswordHash), []byte(profile.Password)))

		// The temp snapshot is gone once the request exists.
		_, err = s.challenges.GetTempRegistration(ctx, profile.Email)
		s.Error(err)
	})

	s.Run("a code redeems exactly once", func() {
		profile := validProfile()
		profile.Email = "once@test-university.edu"
		profile.AccreditationCode = "TU-ONCE"
		profile.LedgerIdentity = "0x0000000000000000000000000000000000000005"
		s.Require().NoError(s.service.BeginRegistration(ctx, profile))
		code := s.lastCode(profile.Email)

		_, err := s.service.VerifyOtp(ctx, profile.Email, code)
		s.Require().NoError(err)

		_, err = s.service.VerifyOtp(ctx, profile.Email, code)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("expired code is rejected", func() {
		profile := validProfile()
		profile.Email = "late@test-university.edu"
		profile.AccreditationCode = "TU-LATE"
		profile.LedgerIdentity = "0x0000000000000000000000000000000000000006"

		start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		s.Require().NoError(s.service.BeginRegistration(requestcontext.WithTime(ctx, start), profile))
		code := s.lastCode(profile.Email)

		later := requestcontext.WithTime(ctx, start.Add(11*time.Minute))
		_, err := s.service.VerifyOtp(later, profile.Email, code)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("correct code with elapsed session means register again", func() {
		profile := validProfile()
		profile.Email = "session@test-university.edu"
		profile.AccreditationCode = "TU-SESS"
		profile.LedgerIdentity = "0x0000000000000000000000000000000000000007"

		start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		s.Require().NoError(s.service.BeginRegistration(requestcontext.WithTime(ctx, start), profile))
		code := s.lastCode(profile.Email)

		// Keep the code alive but let the registration snapshot lapse.
		s.Require().NoError(s.challenges.PutChallenge(
			requestcontext.WithTime(ctx, start.Add(16*time.Minute)), profile.Email, code, 10*time.Minute))

		later := requestcontext.WithTime(ctx, start.Add(16*time.Minute))
		_, err := s.service.VerifyOtp(later, profile.Email, code)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Contains(err.Error(), "register again")
	})

	s.Run("malformed code fails validation without consuming anything", func() {
		_, err := s.service.VerifyOtp(ctx, "someone@example.edu", "12")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Decide Tests
// =============================================================================

func (s *OnboardingServiceSuite) pendingRequest(ctx context.Context, email, code, identity string) PendingRequest {
	profile := validProfile()
	profile.Email = email
	profile.AccreditationCode = code
	profile.LedgerIdentity = identity
	s.Require().NoError(s.service.BeginRegistration(ctx, profile))
	req, err := s.service.VerifyOtp(ctx, email, s.lastCode(email))
	s.Require().NoError(err)
	return req
}

func (s *OnboardingServiceSuite) TestDecideApprove() {
	ctx := context.Background()

	s.Run("approval whitelists issuer then creates directory record and account", func() {
		req := s.pendingRequest(ctx, "approve@u.edu", "AP-1", "0x0000000000000000000000000000000000000010")

		inst, err := s.service.Decide(ctx, req.ID, OutcomeApprove, "")
		s.Require().NoError(err)
		s.Equal(StatusApproved, inst.Status)
		s.True(s.gateway.IsWhitelisted(req.LedgerIdentity))

		// The request is consumed and the institution can log in.
		_, err = s.requests.Get(ctx, req.ID)
		s.Error(err)
		_, _, err = accounts.NewService(s.accounts, "test-signing-key").
			Login(ctx, req.Email, "correct-horse-battery", accounts.RoleUniversity)
		s.NoError(err)
	})

	s.Run("ledger failure leaves the request pending for retry", func() {
		req := s.pendingRequest(ctx, "ledgerfail@u.edu", "AP-2", "0x0000000000000000000000000000000000000011")
		s.gateway.SubmitErr = dErrors.New(dErrors.CodeExternal, "rpc unreachable")

		_, err := s.service.Decide(ctx, req.ID, OutcomeApprove, "")
		s.True(dErrors.HasCode(err, dErrors.CodeExternal))

		_, err = s.requests.Get(ctx, req.ID)
		s.NoError(err, "request must survive a failed approval")
		s.False(s.gateway.IsWhitelisted(req.LedgerIdentity))
	})

	s.Run("second decision on the same request loses the race", func() {
		req := s.pendingRequest(ctx, "race@u.edu", "AP-3", "0x0000000000000000000000000000000000000012")

		_, err := s.service.Decide(ctx, req.ID, OutcomeApprove, "")
		s.Require().NoError(err)

		_, err = s.service.Decide(ctx, req.ID, OutcomeApprove, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("approval notification failure does not roll back the decision", func() {
		req := s.pendingRequest(ctx, "notify@u.edu", "AP-4", "0x0000000000000000000000000000000000000013")
		s.notifier.FailNext = true

		inst, err := s.service.Decide(ctx, req.ID, OutcomeApprove, "")
		s.Require().NoError(err)
		s.Equal(StatusApproved, inst.Status)
		s.True(s.gateway.IsWhitelisted(req.LedgerIdentity))
	})

	s.Run("unknown outcome fails validation", func() {
		req := s.pendingRequest(ctx, "outcome@u.edu", "AP-5", "0x0000000000000000000000000000000000000014")
		_, err := s.service.Decide(ctx, req.ID, Outcome("defer"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *OnboardingServiceSuite) TestDecideReject() {
	ctx := context.Background()

	s.Run("rejection requires a reason", func() {
		req := s.pendingRequest(ctx, "noreason@u.edu", "RJ-1", "0x0000000000000000000000000000000000000020")
		_, err := s.service.Decide(ctx, req.ID, OutcomeReject, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejection deletes the request and mails the reason", func() {
		req := s.pendingRequest(ctx, "reject@u.edu", "RJ-2", "0x0000000000000000000000000000000000000021")

		_, err := s.service.Decide(ctx, req.ID, OutcomeReject, "accreditation letter unreadable")
		s.Require().NoError(err)

		_, err = s.requests.Get(ctx, req.ID)
		s.Error(err)
		s.False(s.gateway.IsWhitelisted(req.LedgerIdentity))

		sent := s.notifier.Sent()
		s.Require().NotEmpty(sent)
		last := sent[len(sent)-1]
		s.Equal(req.Email, last.To)
		s.Contains(last.Body, "accreditation letter unreadable")
	})

	s.Run("rejected identity can register again", func() {
		req := s.pendingRequest(ctx, "again@u.edu", "RJ-3", "0x0000000000000000000000000000000000000022")
		_, err := s.service.Decide(ctx, req.ID, OutcomeReject, "wrong letter")
		s.Require().NoError(err)

		profile := validProfile()
		profile.Email = req.Email
		profile.AccreditationCode = req.AccreditationCode
		profile.LedgerIdentity = req.LedgerIdentity
		s.NoError(s.service.BeginRegistration(ctx, profile))
	})
}

// =============================================================================
// ListPending Tests
// =============================================================================

func (s *OnboardingServiceSuite) TestListPending() {
	ctx := context.Background()

	s.Run("pages newest first with search and total", func() {
		base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
		for i, name := range []string{"Alpha College", "Beta Institute", "Alpha Academy"} {
			s.Require().NoError(s.requests.Create(ctx, PendingRequest{
				ID: name, Name: name, Email: name + "@x.edu",
				AccreditationCode: name, LedgerIdentity: name,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}

		page, total, err := s.service.ListPending(ctx, 1, 1, "alpha")
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Require().Len(page, 1)
		s.Equal("Alpha Academy", page[0].Name)
	})

	s.Run("out of range page and limit are clamped", func() {
		_, _, err := s.service.ListPending(ctx, -3, 0, "")
		s.NoError(err)
		_, _, err = s.service.ListPending(ctx, 1, 10_000, "")
		s.NoError(err)
	})
}
