package onboarding

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/laksac24/VeriFy/internal/accounts"
	"github.com/laksac24/VeriFy/internal/audit"
	"github.com/laksac24/VeriFy/internal/ledger"
	"github.com/laksac24/VeriFy/internal/notify"
	"github.com/laksac24/VeriFy/internal/platform/metrics"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// Service drives the institution-onboarding state machine:
//
//	TempPending → OtpVerified → AdminPending → {Approved, Rejected}
//
// The database and the ledger are the durable sources of truth; no in-process
// lock guards cross-system state.
type Service struct {
	challenges   ChallengeStore
	requests     RequestStore
	institutions InstitutionStore
	accounts     *accounts.Service
	ledger       ledger.Gateway
	notifier     notify.Notifier
	auditor      audit.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger

	otpTTL     time.Duration
	regTTL     time.Duration
	adminEmail string
}

type Config struct {
	Challenges   ChallengeStore
	Requests     RequestStore
	Institutions InstitutionStore
	Accounts     *accounts.Service
	Ledger       ledger.Gateway
	Notifier     notify.Notifier
	Auditor      audit.Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	OTPTTL          time.Duration
	RegistrationTTL time.Duration
	AdminEmail      string
}

func NewService(cfg Config) *Service {
	if cfg.OTPTTL == 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	if cfg.RegistrationTTL == 0 {
		cfg.RegistrationTTL = 15 * time.Minute
	}
	if cfg.Auditor == nil {
		cfg.Auditor = audit.NewInMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		challenges:   cfg.Challenges,
		requests:     cfg.Requests,
		institutions: cfg.Institutions,
		accounts:     cfg.Accounts,
		ledger:       cfg.Ledger,
		notifier:     cfg.Notifier,
		auditor:      cfg.Auditor,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		otpTTL:       cfg.OTPTTL,
		regTTL:       cfg.RegistrationTTL,
		adminEmail:   cfg.AdminEmail,
	}
}

// BeginRegistration starts onboarding: stores a TTL-bound profile snapshot,
// issues a fresh one-time code (overwriting any prior pending challenge for
// the email) and mails it. Retries are upserts; no duplicate state is left
// behind.
func (s *Service) BeginRegistration(ctx context.Context, profile Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))

	if err := s.rejectClaimedIdentity(ctx, profile); err != nil {
		return err
	}

	temp := TempRegistration{Profile: profile, CreatedAt: requestcontext.Now(ctx)}
	if err := s.challenges.PutTempRegistration(ctx, temp, s.regTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store temp registration")
	}

	code, err := generateOTP()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "generate otp")
	}
	if err := s.challenges.PutChallenge(ctx, profile.Email, code, s.otpTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store otp challenge")
	}

	if s.metrics != nil {
		s.metrics.RegistrationsStarted.Inc()
	}
	s.emit(ctx, audit.Event{Action: audit.ActionRegistrationStarted, Subject: profile.Email})

	// Best-effort mail: the caller can retry registration, which reissues the
	// code, so a failed send is reported but leaves no inconsistent state.
	if err := s.notifier.Send(ctx, notify.Message{
		To:      profile.Email,
		Subject: "Verify your institution email",
		Body: fmt.Sprintf("Your verification code is: %s\n\nIt expires in %d minutes.",
			code, int(s.otpTTL.Minutes())),
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternal, "send otp mail")
	}
	return nil
}

// rejectClaimedIdentity fails with ConflictError when the email,
// accreditation code or ledger identity already belongs to an approved
// institution or an in-flight request.
func (s *Service) rejectClaimedIdentity(ctx context.Context, profile Profile) error {
	taken, err := s.institutions.ExistsForIdentity(ctx, profile.Email, profile.AccreditationCode, profile.LedgerIdentity)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check institution identity")
	}
	if taken {
		return dErrors.New(dErrors.CodeConflict, "an institution with these details already exists")
	}
	inflight, err := s.requests.ExistsForIdentity(ctx, profile.Email, profile.AccreditationCode, profile.LedgerIdentity)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check pending identity")
	}
	if inflight {
		return dErrors.New(dErrors.CodeConflict, "a registration with these details is already awaiting review")
	}
	return nil
}

// VerifyOtp redeems the one-time code. On success it atomically consumes the
// challenge, snapshots the temp registration into a pending approval request
// and deletes the temp record. OTP validity and registration-session validity
// are independent: a correct code with an expired session is SessionExpired,
// not success.
func (s *Service) VerifyOtp(ctx context.Context, email, code string) (PendingRequest, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || code == "" {
		return PendingRequest{}, dErrors.New(dErrors.CodeValidation, "email and code are required")
	}
	if len(code) != otpLength {
		return PendingRequest{}, dErrors.New(dErrors.CodeValidation, "code must be 6 digits")
	}

	if err := s.challenges.ConsumeChallenge(ctx, email, code); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return PendingRequest{}, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired code")
		}
		return PendingRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "consume otp challenge")
	}

	temp, err := s.challenges.GetTempRegistration(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrExpired) || errors.Is(err, sentinel.ErrNotFound) {
			return PendingRequest{}, dErrors.New(dErrors.CodeNotFound, "registration session expired, please register again")
		}
		return PendingRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "load temp registration")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(temp.Password), bcrypt.DefaultCost)
	if err != nil {
		return PendingRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "hash password")
	}

	req := PendingRequest{
		ID:                uuid.NewString(),
		Name:              temp.Name,
		AccreditationCode: temp.AccreditationCode,
		Email:             temp.Email,
		LedgerIdentity:    strings.ToLower(temp.LedgerIdentity),
		LetterRef:         temp.LetterRef,
		PasswordHash:      string(hash),
		CreatedAt:         requestcontext.Now(ctx),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return PendingRequest{}, dErrors.New(dErrors.CodeConflict, "a registration for this email is already awaiting review")
		}
		return PendingRequest{}, dErrors.Wrap(err, dErrors.CodeInternal, "create pending request")
	}
	if err := s.challenges.DeleteTempRegistration(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to delete temp registration", "email", email, "error", err)
	}

	s.emit(ctx, audit.Event{Action: audit.ActionRegistrationVerified, Subject: email})

	if s.adminEmail != "" {
		if err := s.notifier.Send(ctx, notify.Message{
			To:      s.adminEmail,
			Subject: fmt.Sprintf("New institution pending review: %s", req.Name),
			Body:    "A new institution has registered and is awaiting your approval.",
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to notify admin of pending request", "error", err)
		}
	}
	return req, nil
}

// Decide resolves a pending request.
//
// Approve whitelists the issuer on the ledger and waits for confirmation
// BEFORE writing the durable institution record; a whitelisted issuer missing
// from the directory is an explicit ConsistencyFault, never silently dropped.
// Concurrent decisions are settled by the request delete: the loser sees the
// record gone and gets NotFound.
func (s *Service) Decide(ctx context.Context, requestID string, outcome Outcome, reason string) (Institution, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Institution{}, dErrors.New(dErrors.CodeNotFound, "request not found or already decided")
		}
		return Institution{}, dErrors.Wrap(err, dErrors.CodeInternal, "load pending request")
	}

	switch outcome {
	case OutcomeApprove:
		return s.approve(ctx, req)
	case OutcomeReject:
		return Institution{}, s.reject(ctx, req, reason)
	default:
		return Institution{}, dErrors.New(dErrors.CodeValidation, "outcome must be approve or reject")
	}
}

func (s *Service) approve(ctx context.Context, req PendingRequest) (Institution, error) {
	// Ledger first. Not durable until confirmed; a timeout or rejection here
	// leaves the request untouched for a later retry.
	if err := s.ledger.WhitelistIssuer(ctx, req.LedgerIdentity); err != nil {
		return Institution{}, err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionIssuerWhitelisted, Subject: req.LedgerIdentity})

	now := requestcontext.Now(ctx)
	inst := Institution{
		ID:                uuid.NewString(),
		Name:              req.Name,
		AccreditationCode: req.AccreditationCode,
		Email:             req.Email,
		LedgerIdentity:    req.LedgerIdentity,
		LetterRef:         req.LetterRef,
		Status:            StatusApproved,
		PasswordHash:      req.PasswordHash,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.institutions.Create(ctx, inst); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Another admin completed the approval between our Get and now.
			return Institution{}, dErrors.New(dErrors.CodeNotFound, "request already decided")
		}
		// Whitelisted on-ledger but absent from the directory.
		s.emit(ctx, audit.Event{Action: audit.ActionConsistencyFault, Subject: req.LedgerIdentity,
			Reason: "issuer whitelisted on ledger but institution record was not created"})
		return Institution{}, dErrors.Wrap(err, dErrors.CodeConsistency,
			"issuer whitelisted on ledger but directory write failed; operator reconciliation required")
	}

	if _, err := s.accounts.CreateIssuerAccount(ctx, inst.ID, req.Email, req.PasswordHash); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			s.logger.ErrorContext(ctx, "failed to create university account", "email", req.Email, "error", err)
		}
	}

	if err := s.requests.Delete(ctx, req.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Institution{}, dErrors.New(dErrors.CodeNotFound, "request already decided")
		}
		return Institution{}, dErrors.Wrap(err, dErrors.CodeInternal, "delete pending request")
	}

	if s.metrics != nil {
		s.metrics.ApprovalDecisions.WithLabelValues("approved").Inc()
	}
	s.emit(ctx, audit.Event{Action: audit.ActionInstitutionApproved, Subject: inst.ID})

	// Committed. Notification failure must not roll any of this back.
	if err := s.notifier.Send(ctx, notify.Message{
		To:      req.Email,
		Subject: "Institution registration approved",
		Body:    "Your details have been verified. You can now log in and issue credentials.",
	}); err != nil {
		s.logger.WarnContext(ctx, "approval notification failed", "email", req.Email, "error", err)
	}
	return inst, nil
}

func (s *Service) reject(ctx context.Context, req PendingRequest, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}

	if err := s.requests.Delete(ctx, req.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "request already decided")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "delete pending request")
	}

	if s.metrics != nil {
		s.metrics.ApprovalDecisions.WithLabelValues("rejected").Inc()
	}
	s.emit(ctx, audit.Event{Action: audit.ActionInstitutionRejected, Subject: req.ID, Reason: reason})

	if err := s.notifier.Send(ctx, notify.Message{
		To:      req.Email,
		Subject: "Institution registration rejected",
		Body: fmt.Sprintf("Your registration for %s was rejected. Reason: %s\nPlease retry with corrected details or contact support.",
			req.Name, reason),
	}); err != nil {
		s.logger.WarnContext(ctx, "rejection notification failed", "email", req.Email, "error", err)
	}
	return nil
}

// RevokeIssuer removes an issuer from the ledger allow-list. Admin only.
// WhitelistIssuer registers a ledger identity as a permitted issuer without
// going through the registration flow, for issuers managed out of band.
func (s *Service) WhitelistIssuer(ctx context.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer identity is required")
	}
	if err := s.ledger.WhitelistIssuer(ctx, identity); err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionIssuerWhitelisted, Subject: identity})
	return nil
}

func (s *Service) RevokeIssuer(ctx context.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return dErrors.New(dErrors.CodeValidation, "issuer identity is required")
	}
	if err := s.ledger.RevokeIssuer(ctx, identity); err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Action: audit.ActionIssuerRevoked, Subject: identity})
	return nil
}

// ListPending returns one page of requests awaiting decision, filtered by
// case-insensitive name substring.
func (s *Service) ListPending(ctx context.Context, page, limit int, search string) ([]PendingRequest, int, error) {
	page, limit = clampPage(page, limit)
	requests, total, err := s.requests.List(ctx, page, limit, search)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "list pending requests")
	}
	return requests, total, nil
}

// GetInstitution loads one institution by ID.
func (s *Service) GetInstitution(ctx context.Context, id string) (Institution, error) {
	inst, err := s.institutions.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Institution{}, dErrors.New(dErrors.CodeNotFound, "institution not found")
	}
	if err != nil {
		return Institution{}, dErrors.Wrap(err, dErrors.CodeInternal, "get institution")
	}
	return inst, nil
}

// GetInstitutionByLedgerIdentity resolves an issuer address to its directory
// record. Public: verifiers use it to name the issuer behind an anchor.
func (s *Service) GetInstitutionByLedgerIdentity(ctx context.Context, identity string) (Institution, error) {
	inst, err := s.institutions.GetByLedgerIdentity(ctx, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Institution{}, dErrors.New(dErrors.CodeNotFound, "institution not found")
	}
	if err != nil {
		return Institution{}, dErrors.Wrap(err, dErrors.CodeInternal, "get institution by identity")
	}
	return inst, nil
}

const otpLength = 6

func generateOTP() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if event.ActorID == "" {
		event.ActorID = requestcontext.AccountID(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
