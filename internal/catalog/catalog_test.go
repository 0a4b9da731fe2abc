package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/docpile/docpile/internal/backend"
	"github.com/docpile/docpile/internal/storage"
)

// fakeBackend records store creations and serves a fixed remote store list.
type fakeBackend struct {
	created   []string
	remoteIDs []string
	nextID    int
	createErr error
}

func (f *fakeBackend) CreateStore(ctx context.Context, displayName string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("remote-%d", f.nextID)
	f.created = append(f.created, displayName)
	f.remoteIDs = append(f.remoteIDs, id)
	return id, nil
}

func (f *fakeBackend) UploadAndIndex(ctx context.Context, storeID, filename string, content []byte) (string, error) {
	return "file-1", nil
}

func (f *fakeBackend) ListStores(ctx context.Context) ([]string, error) {
	return f.remoteIDs, nil
}

func (f *fakeBackend) Close() error { return nil }

func newTestCatalog(t *testing.T, fb *fakeBackend) *Catalog {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, fb)
}

func TestEnsureStoreCreatesOnce(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestCatalog(t, fb)
	ctx := context.Background()

	s1, err := c.EnsureStore(ctx, "tender_docs", "Tender Documents")
	if err != nil {
		t.Fatalf("EnsureStore: %v", err)
	}
	if s1.RemoteID != "remote-1" {
		t.Errorf("RemoteID = %q, want %q", s1.RemoteID, "remote-1")
	}

	s2, err := c.EnsureStore(ctx, "tender_docs", "Tender Documents")
	if err != nil {
		t.Fatalf("EnsureStore second call: %v", err)
	}
	if s2.ID != s1.ID {
		t.Errorf("second call returned different store: %d vs %d", s2.ID, s1.ID)
	}
	if len(fb.created) != 1 {
		t.Errorf("backend CreateStore called %d times, want 1", len(fb.created))
	}
}

func TestEnsureStoreBackendFailure(t *testing.T) {
	fb := &fakeBackend{createErr: backend.ErrUnavailable}
	c := newTestCatalog(t, fb)

	_, err := c.EnsureStore(context.Background(), "tender_docs", "")
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	// Failed creation must leave no durable record behind.
	if _, err := c.FindStore(context.Background(), "tender_docs"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindStore after failed creation: err = %v, want ErrNotFound", err)
	}
}

func TestFindStoreNotFound(t *testing.T) {
	c := newTestCatalog(t, &fakeBackend{})
	_, err := c.FindStore(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	fb := &fakeBackend{}
	c := New(store, fb)
	if _, err := c.EnsureStore(ctx, "docs", "Docs"); err != nil {
		t.Fatalf("EnsureStore: %v", err)
	}
	store.Close()

	// New process: cache is rebuilt from the database, no remote calls.
	store2, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()
	c2 := New(store2, fb)
	if err := c2.LoadCache(ctx); err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	s, err := c2.EnsureStore(ctx, "docs", "Docs")
	if err != nil {
		t.Fatalf("EnsureStore after restart: %v", err)
	}
	if s.RemoteID != "remote-1" {
		t.Errorf("RemoteID = %q, want %q", s.RemoteID, "remote-1")
	}
	if len(fb.created) != 1 {
		t.Errorf("backend CreateStore called %d times, want 1", len(fb.created))
	}
}

func TestReconcile(t *testing.T) {
	fb := &fakeBackend{}
	c := newTestCatalog(t, fb)
	ctx := context.Background()

	if _, err := c.EnsureStore(ctx, "alpha", ""); err != nil {
		t.Fatalf("EnsureStore: %v", err)
	}
	if _, err := c.EnsureStore(ctx, "beta", ""); err != nil {
		t.Fatalf("EnsureStore: %v", err)
	}

	// Simulate a remote store deleted out-of-band and an untracked one.
	fb.remoteIDs = []string{"remote-1", "remote-orphan"}

	report, err := c.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(report.Matched) != 1 || report.Matched[0] != "alpha" {
		t.Errorf("Matched = %v, want [alpha]", report.Matched)
	}
	if len(report.Missing) != 1 || report.Missing[0] != "beta" {
		t.Errorf("Missing = %v, want [beta]", report.Missing)
	}
	if len(report.Untracked) != 1 || report.Untracked[0] != "remote-orphan" {
		t.Errorf("Untracked = %v, want [remote-orphan]", report.Untracked)
	}
	if report.RemoteSeen != 2 {
		t.Errorf("RemoteSeen = %d, want 2", report.RemoteSeen)
	}
}
