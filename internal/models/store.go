// Package models defines core data structures for stores, documents, and ingestion reports.
package models

import "time"

// Store is a named logical collection of ingested documents, backed by a
// remote search index. Name is unique locally; RemoteID is the opaque
// identifier issued by the index backend and is immutable once assigned.
type Store struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	RemoteID      string    `json:"remote_id" db:"remote_id"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	DocumentCount int64     `json:"document_count" db:"-"`
}

// Document records one file successfully ingested into a Store. It is created
// only after a successful remote upload and is never updated in place;
// re-ingestion of a changed file yields a new Document.
type Document struct {
	ID           string                 `json:"id" db:"id"`
	StoreID      int64                  `json:"store_id" db:"store_id"`
	Filename     string                 `json:"filename" db:"filename"`
	SourcePath   string                 `json:"source_path" db:"source_path"`
	Category     string                 `json:"category" db:"category"`
	SizeBytes    int64                  `json:"size_bytes" db:"size_bytes"`
	RemoteFileID string                 `json:"remote_file_id" db:"remote_file_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	IngestedAt   time.Time              `json:"ingested_at" db:"ingested_at"`
}
