// Package objectstore abstracts artifact storage: upload raw bytes, get back
// an opaque reference with a public URL, fetch bytes by key.
package objectstore

import "context"

// Ref identifies a stored artifact. Key is the storage-side handle used for
// later fetches; URL is the public location recorded as the ledger pointer.
type Ref struct {
	Key string
	URL string
}

// Store is the artifact storage collaborator.
type Store interface {
	Upload(ctx context.Context, folder string, data []byte, contentType string) (Ref, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}
