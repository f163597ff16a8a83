package issuance

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/laksac24/VeriFy/internal/audit"
	"github.com/laksac24/VeriFy/internal/fingerprint"
	"github.com/laksac24/VeriFy/internal/ledger"
	"github.com/laksac24/VeriFy/internal/objectstore"
	"github.com/laksac24/VeriFy/internal/onboarding"
	"github.com/laksac24/VeriFy/internal/platform/metrics"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
	"github.com/laksac24/VeriFy/pkg/platform/sentinel"
	"github.com/laksac24/VeriFy/pkg/requestcontext"
)

// InstitutionDirectory resolves an issuing institution. Satisfied by
// onboarding.InstitutionStore.
type InstitutionDirectory interface {
	Get(ctx context.Context, id string) (onboarding.Institution, error)
}

// Service drives the issuance pipeline. Batches share one ledger transaction
// when anchoring, but every other step is per-credential: one bad row never
// sinks its siblings.
type Service struct {
	store        Store
	artifacts    objectstore.Store
	stamper      Stamper
	gateway      ledger.Gateway
	institutions InstitutionDirectory
	auditor      audit.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger

	verifyBaseURL     string
	uploadConcurrency int
}

type Config struct {
	Store        Store
	Artifacts    objectstore.Store
	Stamper      Stamper
	Ledger       ledger.Gateway
	Institutions InstitutionDirectory
	Auditor      audit.Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger

	// VerifyBaseURL is the public verification endpoint the stamped QR code
	// points at; the fingerprint is appended as the last path segment.
	VerifyBaseURL     string
	UploadConcurrency int
}

func NewService(cfg Config) *Service {
	if cfg.UploadConcurrency < 1 {
		cfg.UploadConcurrency = 4
	}
	if cfg.Auditor == nil {
		cfg.Auditor = audit.NewInMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:             cfg.Store,
		artifacts:         cfg.Artifacts,
		stamper:           cfg.Stamper,
		gateway:           cfg.Ledger,
		institutions:      cfg.Institutions,
		auditor:           cfg.Auditor,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		verifyBaseURL:     strings.TrimRight(cfg.VerifyBaseURL, "/"),
		uploadConcurrency: cfg.UploadConcurrency,
	}
}

const artifactFolder = "credentials"

// SubmitBatch validates, fingerprints, uploads and records every submission.
// Items fail independently; uploads run with bounded concurrency. Returned
// results are index-aligned with the input.
func (s *Service) SubmitBatch(ctx context.Context, institutionID string, items []Submission) ([]SubmitResult, error) {
	if len(items) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch is empty")
	}
	inst, err := s.institutions.Get(ctx, institutionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "institution not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load institution")
	}

	results := make([]SubmitResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.submitOne(gctx, inst, i, item)
			return nil
		})
	}
	g.Wait()

	accepted := 0
	for i := range results {
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
			continue
		}
		accepted++
	}
	if s.metrics != nil {
		s.metrics.CredentialsSubmitted.Add(float64(accepted))
	}
	s.emit(ctx, audit.Event{Action: audit.ActionBatchSubmitted, Subject: institutionID})
	return results, nil
}

func (s *Service) submitOne(ctx context.Context, inst onboarding.Institution, index int, item Submission) SubmitResult {
	result := SubmitResult{Index: index}

	fp, err := fingerprint.Compute(item.fields(inst.Name))
	if err != nil {
		result.Err = err
		return result
	}
	result.Fingerprint = fp.String()

	if len(item.Document) == 0 {
		result.Err = dErrors.New(dErrors.CodeValidation, "document is empty")
		return result
	}

	// Cheap duplicate check before paying for the upload; the unique index on
	// fingerprint still backstops races.
	if _, err := s.store.GetByFingerprint(ctx, fp.String()); err == nil {
		result.Err = dErrors.New(dErrors.CodeConflict, "an identical credential already exists")
		return result
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		result.Err = dErrors.Wrap(err, dErrors.CodeInternal, "check fingerprint")
		return result
	}

	ref, err := s.artifacts.Upload(ctx, artifactFolder, item.Document, item.ContentType)
	if err != nil {
		result.Err = dErrors.Wrap(err, dErrors.CodeExternal, "upload document")
		return result
	}

	now := requestcontext.Now(ctx)
	cred := Credential{
		ID:            uuid.NewString(),
		InstitutionID: inst.ID,
		SubjectName:   item.SubjectName,
		SubjectID:     item.SubjectID,
		Program:       item.Program,
		Period:        item.Period,
		Score:         item.Score,
		ArtifactKey:   ref.Key,
		ArtifactURL:   ref.URL,
		Fingerprint:   fp.String(),
		Status:        StateUploaded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			result.Err = dErrors.New(dErrors.CodeConflict, "an identical credential already exists")
		} else {
			result.Err = dErrors.Wrap(err, dErrors.CodeInternal, "create credential")
		}
		return result
	}
	result.CredentialID = cred.ID
	return result
}

// AnchorBatch anchors a set of uploaded credentials in one ledger
// transaction. The whole batch shares its fate: anchored together, rejected
// together, or parked as PendingUncertain together when confirmation timed
// out. Already-anchored fingerprints fail the batch closed with a conflict;
// they are never re-anchored.
func (s *Service) AnchorBatch(ctx context.Context, institutionID string, credentialIDs []string) ([]Credential, error) {
	if len(credentialIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no credentials selected")
	}

	credentials := make([]Credential, 0, len(credentialIDs))
	fingerprints := make([]fingerprint.Fingerprint, 0, len(credentialIDs))
	pointers := make([]string, 0, len(credentialIDs))
	for _, id := range credentialIDs {
		cred, err := s.getOwned(ctx, institutionID, id)
		if err != nil {
			return nil, err
		}
		if cred.Status != StateUploaded {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"credential %s is %s, only uploaded credentials can be anchored", cred.ID, cred.Status)
		}
		fp, err := fingerprint.Parse(cred.Fingerprint)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored fingerprint is malformed")
		}
		credentials = append(credentials, cred)
		fingerprints = append(fingerprints, fp)
		pointers = append(pointers, cred.ArtifactURL)
	}

	err := s.gateway.AnchorBatch(ctx, fingerprints, pointers)
	switch {
	case err == nil:
		s.moveAll(ctx, credentials, StateAnchored, "")
		s.count("anchored")
		s.emit(ctx, audit.Event{Action: audit.ActionBatchAnchored, Subject: institutionID})
		return s.reload(ctx, credentials), nil

	case dErrors.HasCode(err, dErrors.CodeConfirmationTimeout):
		// Outcome unknown: the transaction may still land. Park the batch
		// until someone resolves it against the ledger.
		s.moveAll(ctx, credentials, StatePendingUncertain, "anchor confirmation timed out")
		s.count("timeout")
		return s.reload(ctx, credentials), err

	case dErrors.HasCode(err, dErrors.CodeLedgerRejected):
		s.moveAll(ctx, credentials, StateFailed, err.Error())
		s.count("rejected")
		return s.reload(ctx, credentials), err

	case dErrors.HasCode(err, dErrors.CodeConflict):
		s.count("conflict")
		return nil, err

	default:
		// Submission never reached the ledger; the batch stays anchorable.
		s.count("error")
		return nil, err
	}
}

// ResolvePending settles a PendingUncertain credential by asking the ledger
// what actually happened. A found anchor from this institution promotes it to
// Anchored; a missing one returns it to Uploaded for a fresh attempt. An
// anchor written by a different issuer is a consistency fault, never a
// promotion.
func (s *Service) ResolvePending(ctx context.Context, institutionID, credentialID string) (Credential, error) {
	cred, err := s.getOwned(ctx, institutionID, credentialID)
	if err != nil {
		return Credential{}, err
	}
	if cred.Status != StatePendingUncertain {
		return Credential{}, dErrors.Newf(dErrors.CodeValidation,
			"credential is %s, only pending-uncertain credentials can be resolved", cred.Status)
	}
	fp, err := fingerprint.Parse(cred.Fingerprint)
	if err != nil {
		return Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "stored fingerprint is malformed")
	}
	identity, err := s.issuerIdentity(ctx, institutionID)
	if err != nil {
		return Credential{}, err
	}

	anchor, err := s.gateway.Lookup(ctx, fp)
	if err != nil {
		return Credential{}, err
	}
	if anchor.Valid && anchor.Issuer != identity {
		s.emit(ctx, audit.Event{Action: audit.ActionConsistencyFault, Subject: cred.Fingerprint,
			Reason: "ledger anchor was written by a different issuer"})
		return Credential{}, dErrors.New(dErrors.CodeConsistency,
			"the ledger anchor for this credential was written by a different issuer")
	}
	if anchor.Valid {
		cred.Status = StateAnchored
	} else {
		cred.Status = StateUploaded
	}
	cred.FailReason = ""
	cred.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, cred); err != nil {
		return Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "update credential")
	}
	return cred, nil
}

// FinalizeBatch stamps anchored credentials with their verification QR code,
// replaces the stored artifact and marks them issued. Finalizing is
// idempotent: already-issued credentials succeed without a second stamp. The
// anchor is re-checked against the ledger first; a credential the database
// calls anchored but the ledger does not know, or whose anchor names a
// different issuer, is a consistency fault.
func (s *Service) FinalizeBatch(ctx context.Context, institutionID string, credentialIDs []string) ([]SubmitResult, error) {
	if len(credentialIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no credentials selected")
	}

	identity, err := s.issuerIdentity(ctx, institutionID)
	if err != nil {
		return nil, err
	}

	results := make([]SubmitResult, len(credentialIDs))
	for i, id := range credentialIDs {
		results[i] = s.finalizeOne(ctx, institutionID, identity, i, id)
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
		}
	}
	return results, nil
}

func (s *Service) finalizeOne(ctx context.Context, institutionID, issuerIdentity string, index int, credentialID string) SubmitResult {
	result := SubmitResult{Index: index, CredentialID: credentialID}

	cred, err := s.getOwned(ctx, institutionID, credentialID)
	if err != nil {
		result.Err = err
		return result
	}
	result.Fingerprint = cred.Fingerprint

	if cred.Issued {
		return result
	}
	if cred.Status != StateAnchored && cred.Status != StateFinalized {
		result.Err = dErrors.Newf(dErrors.CodeValidation,
			"credential is %s, only anchored credentials can be finalized", cred.Status)
		return result
	}

	fp, err := fingerprint.Parse(cred.Fingerprint)
	if err != nil {
		result.Err = dErrors.Wrap(err, dErrors.CodeInternal, "stored fingerprint is malformed")
		return result
	}
	anchor, err := s.gateway.Lookup(ctx, fp)
	if err != nil {
		result.Err = err
		return result
	}
	if !anchor.Valid {
		s.emit(ctx, audit.Event{Action: audit.ActionConsistencyFault, Subject: cred.Fingerprint,
			Reason: "credential recorded as anchored but the ledger has no anchor"})
		result.Err = dErrors.New(dErrors.CodeConsistency,
			"credential is recorded as anchored but the ledger has no anchor")
		return result
	}
	if anchor.Issuer != issuerIdentity {
		s.emit(ctx, audit.Event{Action: audit.ActionConsistencyFault, Subject: cred.Fingerprint,
			Reason: "ledger anchor was written by a different issuer"})
		result.Err = dErrors.New(dErrors.CodeConsistency,
			"the ledger anchor for this credential was written by a different issuer")
		return result
	}

	// A Finalized credential already carries the stamped artifact; only the
	// issued flag is outstanding.
	if cred.Status != StateFinalized {
		artifact, err := s.artifacts.Fetch(ctx, cred.ArtifactKey)
		if err != nil {
			result.Err = dErrors.Wrap(err, dErrors.CodeExternal, "fetch document")
			return result
		}
		stamped, err := s.stamper.Stamp(ctx, artifact, s.verifyBaseURL+"/"+cred.Fingerprint)
		if err != nil {
			result.Err = err
			return result
		}
		ref, err := s.artifacts.Upload(ctx, artifactFolder, stamped, "application/pdf")
		if err != nil {
			result.Err = dErrors.Wrap(err, dErrors.CodeExternal, "upload stamped document")
			return result
		}

		cred.ArtifactKey = ref.Key
		cred.ArtifactURL = ref.URL
		cred.Status = StateFinalized
		cred.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.Update(ctx, cred); err != nil {
			result.Err = dErrors.Wrap(err, dErrors.CodeInternal, "record stamped artifact")
			return result
		}
	}

	cred.Status = StateIssued
	cred.Issued = true
	cred.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, cred); err != nil {
		result.Err = dErrors.Wrap(err, dErrors.CodeInternal, "update credential")
		return result
	}

	if s.metrics != nil {
		s.metrics.CredentialsIssued.Inc()
	}
	s.emit(ctx, audit.Event{Action: audit.ActionCredentialIssued, Subject: cred.Fingerprint})
	return result
}

// Get returns one credential owned by the institution.
func (s *Service) Get(ctx context.Context, institutionID, credentialID string) (Credential, error) {
	return s.getOwned(ctx, institutionID, credentialID)
}

// List pages the institution's credentials newest first.
func (s *Service) List(ctx context.Context, institutionID string, page, limit int) ([]Credential, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	credentials, total, err := s.store.ListByInstitution(ctx, institutionID, page, limit)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "list credentials")
	}
	return credentials, total, nil
}

// issuerIdentity returns the institution's ledger identity, lowercased to
// match how gateways report anchor issuers.
func (s *Service) issuerIdentity(ctx context.Context, institutionID string) (string, error) {
	inst, err := s.institutions.Get(ctx, institutionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, "institution not found")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load institution")
	}
	return strings.ToLower(inst.LedgerIdentity), nil
}

// getOwned hides other institutions' credentials behind NotFound.
func (s *Service) getOwned(ctx context.Context, institutionID, credentialID string) (Credential, error) {
	cred, err := s.store.Get(ctx, credentialID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Credential{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	if err != nil {
		return Credential{}, dErrors.Wrap(err, dErrors.CodeInternal, "get credential")
	}
	if cred.InstitutionID != institutionID {
		return Credential{}, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	return cred, nil
}

func (s *Service) moveAll(ctx context.Context, credentials []Credential, state State, failReason string) {
	now := requestcontext.Now(ctx)
	for i := range credentials {
		credentials[i].Status = state
		credentials[i].FailReason = failReason
		credentials[i].UpdatedAt = now
		if err := s.store.Update(ctx, credentials[i]); err != nil {
			s.logger.ErrorContext(ctx, "failed to update credential state",
				"credential_id", credentials[i].ID, "state", state, "error", err)
		}
	}
}

func (s *Service) reload(ctx context.Context, credentials []Credential) []Credential {
	out := make([]Credential, 0, len(credentials))
	for _, cred := range credentials {
		fresh, err := s.store.Get(ctx, cred.ID)
		if err != nil {
			out = append(out, cred)
			continue
		}
		out = append(out, fresh)
	}
	return out
}

func (s *Service) count(result string) {
	if s.metrics != nil {
		s.metrics.AnchorBatches.WithLabelValues(result).Inc()
	}
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
