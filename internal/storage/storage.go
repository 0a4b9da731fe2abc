// Package storage defines the persistence interface for stores and documents.
package storage

import (
	"context"
	"errors"

	"github.com/docpile/docpile/internal/models"
)

// ErrNotFound is returned when a store or document does not exist.
var ErrNotFound = errors.New("not found")

// MetadataStore is the durable record of Stores and Documents. It is the
// source of truth for what has been ingested; the catalog's in-process cache
// is a read optimization layered on top, never authoritative.
type MetadataStore interface {
	// Store operations
	FindStore(ctx context.Context, name string) (*models.Store, error)
	CreateStore(ctx context.Context, store *models.Store) error
	ListStores(ctx context.Context) ([]*models.Store, error)

	// Document operations. CreateDocument runs in its own transaction.
	CreateDocument(ctx context.Context, doc *models.Document) error
	FindDocumentsByStore(ctx context.Context, storeID int64) ([]*models.Document, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountDocumentsForStore(ctx context.Context, storeID int64) (int64, error)
	CountDocumentsByCategory(ctx context.Context) (map[string]int64, error)

	Close() error
}
