package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/docpile/docpile/internal/catalog"
	"github.com/docpile/docpile/internal/category"
	"github.com/docpile/docpile/internal/models"
	"github.com/docpile/docpile/internal/scanner"
	"github.com/docpile/docpile/internal/storage"
)

// fakeBackend is an in-memory IndexBackend. Uploads for filenames listed in
// failFiles return an error; onUpload, when set, runs at the start of every
// upload attempt.
type fakeBackend struct {
	mu        sync.Mutex
	stores    []string
	uploads   []string
	failFiles map[string]bool
	onUpload  func(filename string)
	nextID    int
}

func (f *fakeBackend) CreateStore(ctx context.Context, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("remote-%d", f.nextID)
	f.stores = append(f.stores, id)
	return id, nil
}

func (f *fakeBackend) UploadAndIndex(ctx context.Context, storeID, filename string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onUpload != nil {
		f.onUpload(filename)
	}
	if f.failFiles[filename] {
		return "", errors.New("simulated backend rejection")
	}
	f.nextID++
	f.uploads = append(f.uploads, filename)
	return fmt.Sprintf("file-%d", f.nextID), nil
}

func (f *fakeBackend) ListStores(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stores...), nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type testEnv struct {
	orch    *Orchestrator
	backend *fakeBackend
	storage storage.MetadataStore
	catalog *catalog.Catalog
	source  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fb := &fakeBackend{failFiles: map[string]bool{}}
	cat := catalog.New(store, fb)
	orch := New(scanner.New(), category.NewDefaultDetector(), cat, store, fb)
	return &testEnv{
		orch:    orch,
		backend: fb,
		storage: store,
		catalog: cat,
		source:  t.TempDir(),
	}
}

func (e *testEnv) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.source, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func (e *testEnv) request() models.IngestRequest {
	return models.IngestRequest{
		SourceDirectory: e.source,
		StoreName:       "tender_docs",
		AutoCategorize:  true,
	}
}

func TestExecuteIngestsAndCategorizes(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "cv_jane.docx", "resume content")
	e.writeFile(t, "contracts/msa.pdf", "contract content")
	e.writeFile(t, "notes.txt", "meeting notes")

	report, err := e.orch.Execute(context.Background(), e.request())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Total != 3 || report.SuccessCount != 3 || report.FailedCount != 0 || report.SkippedCount != 0 {
		t.Errorf("counts = total %d success %d failed %d skipped %d",
			report.Total, report.SuccessCount, report.FailedCount, report.SkippedCount)
	}
	want := map[string]int{"cv": 1, "contracts": 1, "uncategorized": 1}
	for label, n := range want {
		if report.CategoryDistribution[label] != n {
			t.Errorf("CategoryDistribution[%q] = %d, want %d", label, report.CategoryDistribution[label], n)
		}
	}
	for _, f := range report.Files {
		if f.Status != models.StatusSuccess {
			t.Errorf("%s: status %q, want success (%s)", f.Filename, f.Status, f.Error)
		}
		if f.RemoteFileID == "" {
			t.Errorf("%s: missing remote file ID", f.Filename)
		}
	}

	count, err := e.storage.CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if count != 3 {
		t.Errorf("persisted documents = %d, want 3", count)
	}
}

func TestExecuteSecondRunSkipsAll(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "a.txt", "one")
	e.writeFile(t, "b.txt", "two")

	ctx := context.Background()
	if _, err := e.orch.Execute(ctx, e.request()); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	report, err := e.orch.Execute(ctx, e.request())
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if report.SkippedCount != 2 || report.SuccessCount != 0 {
		t.Errorf("second run: skipped %d success %d, want 2 and 0", report.SkippedCount, report.SuccessCount)
	}
	if len(report.CategoryDistribution) != 0 {
		t.Errorf("skipped files must not appear in the histogram: %v", report.CategoryDistribution)
	}
	if got := e.backend.uploadCount(); got != 2 {
		t.Errorf("backend uploads = %d, want 2 (no re-upload)", got)
	}
}

func TestExecutePartialFailure(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "good.txt", "fine")
	e.writeFile(t, "bad.txt", "rejected")
	e.backend.failFiles["bad.txt"] = true

	report, err := e.orch.Execute(context.Background(), e.request())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.SuccessCount != 1 || report.FailedCount != 1 {
		t.Errorf("success %d failed %d, want 1 and 1", report.SuccessCount, report.FailedCount)
	}
	if report.SuccessCount+report.FailedCount+report.SkippedCount != report.Total {
		t.Errorf("count invariant broken: %+v", report)
	}
	for _, f := range report.Files {
		if f.Filename == "bad.txt" {
			if f.Status != models.StatusFailed || f.Error == "" {
				t.Errorf("bad.txt: status %q error %q", f.Status, f.Error)
			}
		}
	}
	// The failed file must not be recorded, so a retry can attempt it again.
	count, _ := e.storage.CountDocuments(context.Background())
	if count != 1 {
		t.Errorf("persisted documents = %d, want 1", count)
	}
}

func TestExecuteNoAutoCategorize(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "contracts/msa.pdf", "contract")

	req := e.request()
	req.AutoCategorize = false
	report, err := e.orch.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Files[0].Category != category.Uncategorized {
		t.Errorf("category = %q, want %q", report.Files[0].Category, category.Uncategorized)
	}
}

func TestExecuteMissingDirectory(t *testing.T) {
	e := newTestEnv(t)
	req := e.request()
	req.SourceDirectory = filepath.Join(e.source, "does-not-exist")
	if _, err := e.orch.Execute(context.Background(), req); err == nil {
		t.Error("expected job-level error for missing directory")
	}
}

func TestExecuteValidation(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.orch.Execute(context.Background(), models.IngestRequest{StoreName: "x"}); err == nil {
		t.Error("expected error for missing source_directory")
	}
	if _, err := e.orch.Execute(context.Background(), models.IngestRequest{SourceDirectory: e.source}); err == nil {
		t.Error("expected error for missing store_name")
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 5; i++ {
		e.writeFile(t, fmt.Sprintf("f%d.txt", i), "x")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.orch.Execute(ctx, e.request())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.SkippedCount != 5 {
		t.Errorf("skipped = %d, want 5", report.SkippedCount)
	}
	for _, f := range report.Files {
		if f.Error != "job cancelled" {
			t.Errorf("%s: error = %q, want %q", f.Filename, f.Error, "job cancelled")
		}
	}
	if got := e.backend.uploadCount(); got != 0 {
		t.Errorf("backend uploads = %d, want 0", got)
	}
}

func TestExecuteMultiBatchPartialFailure(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 6; i++ {
		e.writeFile(t, fmt.Sprintf("f%d.txt", i), "x")
	}
	e.backend.failFiles["f2.txt"] = true

	req := e.request()
	req.BatchSize = 2
	report, err := e.orch.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Total != 6 || report.SuccessCount != 5 || report.FailedCount != 1 {
		t.Errorf("counts = total %d success %d failed %d, want 6, 5, 1",
			report.Total, report.SuccessCount, report.FailedCount)
	}
	// A failure in a middle batch must not disturb the batches after it.
	for _, f := range report.Files {
		want := models.StatusSuccess
		if f.Filename == "f2.txt" {
			want = models.StatusFailed
		}
		if f.Status != want {
			t.Errorf("%s: status %q, want %q (%s)", f.Filename, f.Status, want, f.Error)
		}
	}
	count, _ := e.storage.CountDocuments(context.Background())
	if count != 5 {
		t.Errorf("persisted documents = %d, want 5", count)
	}
}

func TestExecuteCancelMidJob(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 4; i++ {
		e.writeFile(t, fmt.Sprintf("g%d.txt", i), "x")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	e.backend.onUpload = func(string) { once.Do(cancel) }

	req := e.request()
	req.BatchSize = 2
	report, err := e.orch.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Cancellation arrived during the first batch. That batch still finishes
	// and persists; only the later batch is skipped.
	if report.SuccessCount != 2 || report.SkippedCount != 2 {
		t.Fatalf("success %d skipped %d, want 2 and 2: %+v", report.SuccessCount, report.SkippedCount, report)
	}
	for _, f := range report.Files {
		switch f.Status {
		case models.StatusSuccess:
			if f.RemoteFileID == "" {
				t.Errorf("%s: success without remote file ID", f.Filename)
			}
		case models.StatusSkipped:
			if f.Error != "job cancelled" {
				t.Errorf("%s: error = %q, want %q", f.Filename, f.Error, "job cancelled")
			}
		default:
			t.Errorf("%s: status %q (%s)", f.Filename, f.Status, f.Error)
		}
	}
	count, _ := e.storage.CountDocuments(context.Background())
	if count != 2 {
		t.Errorf("persisted documents = %d, want 2", count)
	}
	if got := e.backend.uploadCount(); got != 2 {
		t.Errorf("backend uploads = %d, want 2", got)
	}
}

func TestPreviewHasNoSideEffects(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "cv_jane.docx", "resume")
	e.writeFile(t, "notes.txt", "notes")

	report, err := e.orch.Preview(context.Background(), e.request())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if report.Total != 2 {
		t.Errorf("Total = %d, want 2", report.Total)
	}
	for _, f := range report.Files {
		if f.Status != models.StatusPending {
			t.Errorf("%s: status %q, want pending", f.Filename, f.Status)
		}
	}
	if report.CategoryDistribution["cv"] != 1 {
		t.Errorf("CategoryDistribution = %v", report.CategoryDistribution)
	}

	if got := e.backend.uploadCount(); got != 0 {
		t.Errorf("preview uploaded %d files", got)
	}
	if len(e.backend.stores) != 0 {
		t.Errorf("preview created stores: %v", e.backend.stores)
	}
	if _, err := e.catalog.FindStore(context.Background(), "tender_docs"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("preview created a durable store record: %v", err)
	}
}

func TestPreviewMarksDuplicates(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "a.txt", "one")
	ctx := context.Background()
	if _, err := e.orch.Execute(ctx, e.request()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	e.writeFile(t, "b.txt", "two")

	report, err := e.orch.Preview(ctx, e.request())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if report.SkippedCount != 1 {
		t.Errorf("SkippedCount = %d, want 1", report.SkippedCount)
	}
	statuses := map[string]models.OutcomeStatus{}
	for _, f := range report.Files {
		statuses[f.Filename] = f.Status
	}
	if statuses["a.txt"] != models.StatusSkipped || statuses["b.txt"] != models.StatusPending {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestExecuteReportsExclusions(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "doc.txt", "ok")
	e.writeFile(t, "image.png", "binary")
	e.writeFile(t, "empty.txt", "")

	report, err := e.orch.Execute(context.Background(), e.request())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Total != 1 {
		t.Errorf("Total = %d, want 1", report.Total)
	}
	if len(report.Exclusions) != 2 {
		t.Errorf("Exclusions = %v, want 2 entries", report.Exclusions)
	}
}

// failingDocs wraps a MetadataStore and rejects every document insert.
type failingDocs struct {
	storage.MetadataStore
}

func (f *failingDocs) CreateDocument(ctx context.Context, doc *models.Document) error {
	return errors.New("disk full")
}

func TestExecuteOrphanedRemoteFile(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	failing := &failingDocs{MetadataStore: store}

	fb := &fakeBackend{failFiles: map[string]bool{}}
	cat := catalog.New(failing, fb)
	orch := New(scanner.New(), category.NewDefaultDetector(), cat, failing, fb)

	source := t.TempDir()
	if err := os.WriteFile(filepath.Join(source, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	report, err := orch.Execute(context.Background(), models.IngestRequest{
		SourceDirectory: source,
		StoreName:       "docs",
		AutoCategorize:  true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.FailedCount != 1 {
		t.Fatalf("FailedCount = %d, want 1", report.FailedCount)
	}
	out := report.Files[0]
	if out.Status != models.StatusFailed {
		t.Errorf("status = %q, want failed", out.Status)
	}
	if !strings.Contains(out.Error, "orphaned remote file") {
		t.Errorf("error = %q, want orphaned remote file detail", out.Error)
	}
}

func TestIngestFile(t *testing.T) {
	e := newTestEnv(t)
	e.writeFile(t, "drop/proposal_v2.pdf", "proposal")
	ctx := context.Background()
	path := filepath.Join(e.source, "drop", "proposal_v2.pdf")

	out, err := e.orch.IngestFile(ctx, "inbox", path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if out.Status != models.StatusSuccess {
		t.Errorf("status = %q (%s)", out.Status, out.Error)
	}
	if out.Category != "proposals" {
		t.Errorf("category = %q, want proposals", out.Category)
	}

	// Same file again: duplicate, no second upload.
	out, err = e.orch.IngestFile(ctx, "inbox", path)
	if err != nil {
		t.Fatalf("IngestFile duplicate: %v", err)
	}
	if out.Status != models.StatusSkipped {
		t.Errorf("duplicate status = %q, want skipped", out.Status)
	}
	if got := e.backend.uploadCount(); got != 1 {
		t.Errorf("backend uploads = %d, want 1", got)
	}
}
