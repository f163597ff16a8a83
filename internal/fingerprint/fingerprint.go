// Package fingerprint computes the deterministic digest that joins a
// credential's metadata to its ledger anchor.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// Fingerprint is a 256-bit digest of a credential's immutable fields.
type Fingerprint [32]byte

// Fields is the ordered tuple of immutable credential fields that feed the
// digest. Once a credential exists its fingerprint is never recomputed.
type Fields struct {
	SubjectName string
	SubjectID   string
	Program     string
	Period      string
	Institution string
	Score       string
}

// Compute hashes the pipe-joined field tuple. Identical input always yields an
// identical fingerprint; any field change changes it.
func Compute(f Fields) (Fingerprint, error) {
	if err := f.Validate(); err != nil {
		return Fingerprint{}, err
	}
	raw := strings.Join([]string{
		f.SubjectName, f.SubjectID, f.Program, f.Period, f.Institution, f.Score,
	}, "|")
	return Fingerprint(sha256.Sum256([]byte(raw))), nil
}

// Validate rejects the tuple before hashing if any field is missing. Fields
// may not contain the join separator, which would make distinct tuples
// collide.
func (f Fields) Validate() error {
	for _, fv := range []struct{ name, value string }{
		{"subject name", f.SubjectName},
		{"subject id", f.SubjectID},
		{"program", f.Program},
		{"period", f.Period},
		{"institution", f.Institution},
		{"score", f.Score},
	} {
		if strings.TrimSpace(fv.value) == "" {
			return dErrors.Newf(dErrors.CodeValidation, "%s is required", fv.name)
		}
		if strings.Contains(fv.value, "|") {
			return dErrors.Newf(dErrors.CodeValidation, "%s must not contain '|'", fv.name)
		}
	}
	return nil
}

// String renders the fingerprint as 0x followed by 64 hex characters.
func (fp Fingerprint) String() string {
	return "0x" + hex.EncodeToString(fp[:])
}

// IsZero reports whether the fingerprint is unset.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}

// Parse decodes a 0x-prefixed 64-hex-character fingerprint.
func Parse(s string) (Fingerprint, error) {
	hexPart, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return Fingerprint{}, dErrors.New(dErrors.CodeValidation, "fingerprint must start with 0x")
	}
	if len(hexPart) != 64 {
		return Fingerprint{}, dErrors.New(dErrors.CodeValidation, "fingerprint must be 64 hex characters")
	}
	var fp Fingerprint
	if _, err := hex.Decode(fp[:], []byte(hexPart)); err != nil {
		return Fingerprint{}, dErrors.Wrap(err, dErrors.CodeValidation, "fingerprint is not valid hex")
	}
	return fp, nil
}
