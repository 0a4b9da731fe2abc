package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/docpile/docpile/internal/models"
)

// SQLiteStore implements MetadataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		remote_id TEXT NOT NULL,
		display_name TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		store_id INTEGER NOT NULL,
		filename TEXT NOT NULL,
		source_path TEXT,
		category TEXT,
		size_bytes INTEGER,
		remote_file_id TEXT,
		metadata TEXT,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (store_id) REFERENCES stores(id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_store ON documents(store_id);
	CREATE INDEX IF NOT EXISTS idx_documents_store_filename ON documents(store_id, filename);
	CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
	`
	_, err := db.Exec(schema)
	return err
}

// FindStore returns the store with the given local name, or ErrNotFound.
func (s *SQLiteStore) FindStore(ctx context.Context, name string) (*models.Store, error) {
	var store models.Store
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, remote_id, display_name, created_at FROM stores WHERE name = ?`, name,
	).Scan(&store.ID, &store.Name, &store.RemoteID, &store.DisplayName, &store.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &store, nil
}

// CreateStore inserts a store record and sets its generated ID.
func (s *SQLiteStore) CreateStore(ctx context.Context, store *models.Store) error {
	store.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stores (name, remote_id, display_name, created_at) VALUES (?, ?, ?, ?)`,
		store.Name, store.RemoteID, store.DisplayName, store.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	store.ID, err = res.LastInsertId()
	return err
}

// ListStores returns all stores with their document counts, ordered by
// creation time. Always reads durable state, never a cache.
func (s *SQLiteStore) ListStores(ctx context.Context) ([]*models.Store, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.name, s.remote_id, s.display_name, s.created_at,
		        (SELECT COUNT(*) FROM documents d WHERE d.store_id = s.id)
		 FROM stores s ORDER BY s.created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []*models.Store
	for rows.Next() {
		var store models.Store
		if err := rows.Scan(&store.ID, &store.Name, &store.RemoteID, &store.DisplayName, &store.CreatedAt, &store.DocumentCount); err != nil {
			return nil, err
		}
		stores = append(stores, &store)
	}
	return stores, rows.Err()
}

// CreateDocument inserts a document in its own transaction, rolling back on
// failure. One failed insert never poisons sibling inserts in the same job.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	doc.IngestedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, store_id, filename, source_path, category, size_bytes, remote_file_id, metadata, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.StoreID, doc.Filename, doc.SourcePath, doc.Category, doc.SizeBytes, doc.RemoteFileID, string(metadataJSON), doc.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return tx.Commit()
}

// FindDocumentsByStore returns all documents for a store. The duplicate
// filter uses this as its single per-job query.
func (s *SQLiteStore) FindDocumentsByStore(ctx context.Context, storeID int64) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, store_id, filename, source_path, category, size_bytes, remote_file_id, metadata, ingested_at
		 FROM documents WHERE store_id = ? ORDER BY ingested_at`,
		storeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		var metadataJSON string
		if err := rows.Scan(&doc.ID, &doc.StoreID, &doc.Filename, &doc.SourcePath, &doc.Category, &doc.SizeBytes, &doc.RemoteFileID, &metadataJSON, &doc.IngestedAt); err != nil {
			return nil, err
		}
		if metadataJSON != "" && metadataJSON != "null" {
			_ = json.Unmarshal([]byte(metadataJSON), &doc.Metadata)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountDocumentsForStore returns the number of documents in one store.
func (s *SQLiteStore) CountDocumentsForStore(ctx context.Context, storeID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE store_id = ?`, storeID).Scan(&count)
	return count, err
}

// CountDocumentsByCategory returns document counts grouped by category.
func (s *SQLiteStore) CountDocumentsByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM documents
		 WHERE category IS NOT NULL AND category != ''
		 GROUP BY category`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		counts[category] = count
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
