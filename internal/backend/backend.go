// Package backend abstracts the external search-index service that stores
// and indexes uploaded documents. The concrete wire format is an
// implementation detail; the pipeline only depends on this capability.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates the backend cannot be reached at all. It is fatal
// for store creation; per-file upload errors are recorded per file instead.
var ErrUnavailable = errors.New("index backend unavailable")

// Error is a rejection from the backend (quota, size, format, bad store).
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.Status, e.Message)
}

// IndexBackend is the capability interface over the external search backend.
// Implementations must be safe for concurrent use; the ingestion pipeline
// calls UploadAndIndex from multiple workers.
type IndexBackend interface {
	// CreateStore creates a remote store and returns its opaque identifier.
	CreateStore(ctx context.Context, displayName string) (string, error)
	// UploadAndIndex uploads one file into a store and returns the remote
	// file identifier. Callers may retry; the backend tolerates duplicates.
	UploadAndIndex(ctx context.Context, storeID, filename string, content []byte) (string, error)
	// ListStores returns the identifiers of all remote stores. Used for
	// reconciliation and debugging, not on the hot ingestion path.
	ListStores(ctx context.Context) ([]string, error)
	Close() error
}
