package ledger

import (
	"context"
	"strings"
	"sync"

	"github.com/laksac24/VeriFy/internal/fingerprint"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// InMemoryGateway is a deterministic test double for the anchor registry.
// Fault knobs let tests exercise every failure class without a live ledger.
type InMemoryGateway struct {
	mu        sync.Mutex
	whitelist map[string]bool
	anchors   map[fingerprint.Fingerprint]Anchor

	// Issuer is stamped onto anchors written by AnchorBatch.
	Issuer string

	// SubmitErr, when set, is returned by the next state-changing call.
	SubmitErr error
	// TimeoutOnAnchor makes AnchorBatch return CodeConfirmationTimeout.
	TimeoutOnAnchor bool
	// LandDespiteTimeout records the anchors anyway, modeling a transaction
	// that confirms after the caller stopped waiting.
	LandDespiteTimeout bool
}

func NewInMemory() *InMemoryGateway {
	return &InMemoryGateway{
		whitelist: make(map[string]bool),
		anchors:   make(map[fingerprint.Fingerprint]Anchor),
	}
}

func (g *InMemoryGateway) WhitelistIssuer(_ context.Context, identity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubmitErr != nil {
		err := g.SubmitErr
		g.SubmitErr = nil
		return err
	}
	g.whitelist[strings.ToLower(identity)] = true
	return nil
}

func (g *InMemoryGateway) RevokeIssuer(_ context.Context, identity string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubmitErr != nil {
		err := g.SubmitErr
		g.SubmitErr = nil
		return err
	}
	delete(g.whitelist, strings.ToLower(identity))
	return nil
}

func (g *InMemoryGateway) AnchorBatch(_ context.Context, fingerprints []fingerprint.Fingerprint, pointers []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(fingerprints) == 0 {
		return dErrors.New(dErrors.CodeValidation, "anchor batch is empty")
	}
	if len(fingerprints) != len(pointers) {
		return dErrors.New(dErrors.CodeValidation, "fingerprints and pointers must correspond 1:1")
	}
	if g.SubmitErr != nil {
		err := g.SubmitErr
		g.SubmitErr = nil
		return err
	}
	if !g.whitelist[strings.ToLower(g.Issuer)] {
		return dErrors.New(dErrors.CodeLedgerRejected, "issuer is not whitelisted")
	}
	for _, fp := range fingerprints {
		if g.anchors[fp].Valid {
			return dErrors.Newf(dErrors.CodeConflict, "fingerprint %s is already anchored", fp)
		}
	}

	if g.TimeoutOnAnchor {
		g.TimeoutOnAnchor = false
		if g.LandDespiteTimeout {
			g.writeAnchors(fingerprints, pointers)
		}
		return dErrors.New(dErrors.CodeConfirmationTimeout, "anchor transaction not confirmed in time")
	}

	g.writeAnchors(fingerprints, pointers)
	return nil
}

func (g *InMemoryGateway) writeAnchors(fingerprints []fingerprint.Fingerprint, pointers []string) {
	for i, fp := range fingerprints {
		g.anchors[fp] = Anchor{
			Valid:   true,
			Issuer:  strings.ToLower(g.Issuer),
			Pointer: pointers[i],
		}
	}
}

func (g *InMemoryGateway) Lookup(_ context.Context, fp fingerprint.Fingerprint) (Anchor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.anchors[fp], nil
}

// IsWhitelisted reports whether an issuer identity is on the allow-list.
func (g *InMemoryGateway) IsWhitelisted(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.whitelist[strings.ToLower(identity)]
}

// PutAnchor writes a ledger record directly, bypassing the whitelist. Only
// used by tests to model anchors written outside this service.
func (g *InMemoryGateway) PutAnchor(fp fingerprint.Fingerprint, issuer, pointer string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.anchors[fp] = Anchor{Valid: true, Issuer: strings.ToLower(issuer), Pointer: pointer}
}

// RemoveAnchor deletes a ledger record. Only used by tests to simulate a
// database/ledger disagreement.
func (g *InMemoryGateway) RemoveAnchor(fp fingerprint.Fingerprint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.anchors, fp)
}
