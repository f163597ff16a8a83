// Package ledger wraps the append-only anchor registry: issuer allow-listing,
// batch anchoring, and public lookup. The gateway is an injected capability so
// services can run against an in-memory double in tests.
package ledger

import (
	"context"

	"github.com/laksac24/VeriFy/internal/fingerprint"
)

// Anchor is the ledger-resident record for a fingerprint. Immutable once
// written; read-only from this system's perspective.
type Anchor struct {
	Valid   bool
	Issuer  string
	Pointer string
}

// Gateway is the contract surface consumed by the core services.
//
// WhitelistIssuer, RevokeIssuer and AnchorBatch are state-changing and are not
// durable until confirmed; implementations must not return nil before
// confirmation. AnchorBatch anchors all pairs in one ledger transaction:
// all-or-nothing at the ledger layer.
//
// Failure semantics: transport failures surface as CodeExternal (retryable),
// on-chain precondition failures as CodeLedgerRejected (not retryable without
// remediation), and an expired confirmation wait as CodeConfirmationTimeout.
// A timed-out transaction may still land later, so callers must re-check via
// Lookup before resubmitting.
type Gateway interface {
	WhitelistIssuer(ctx context.Context, identity string) error
	RevokeIssuer(ctx context.Context, identity string) error
	AnchorBatch(ctx context.Context, fingerprints []fingerprint.Fingerprint, pointers []string) error
	Lookup(ctx context.Context, fp fingerprint.Fingerprint) (Anchor, error)
}
