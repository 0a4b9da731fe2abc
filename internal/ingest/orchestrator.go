// Package ingest implements the bulk ingestion pipeline: scan, categorize,
// filter duplicates, upload in batches, and record metadata. Failures are
// per-file; one bad document never aborts a job.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/docpile/docpile/internal/backend"
	"github.com/docpile/docpile/internal/catalog"
	"github.com/docpile/docpile/internal/category"
	"github.com/docpile/docpile/internal/models"
	"github.com/docpile/docpile/internal/scanner"
	"github.com/docpile/docpile/internal/storage"
)

const (
	defaultBatchSize  = 10
	defaultMaxWorkers = 4
)

// ErrInvalidRequest marks caller mistakes in an IngestRequest.
var ErrInvalidRequest = errors.New("invalid ingest request")

// Orchestrator runs ingestion jobs end to end.
type Orchestrator struct {
	scanner  *scanner.Scanner
	detector *category.Detector
	catalog  *catalog.Catalog
	storage  storage.MetadataStore
	backend  backend.IndexBackend
	logger   *zap.Logger

	batchSize  int
	maxWorkers int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithBatchSize sets the default batch size for jobs that do not specify one.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxWorkers caps the per-batch upload concurrency.
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// New creates an Orchestrator over the given components.
func New(sc *scanner.Scanner, det *category.Detector, cat *catalog.Catalog, store storage.MetadataStore, idx backend.IndexBackend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scanner:    sc,
		detector:   det,
		catalog:    cat,
		storage:    store,
		backend:    idx,
		logger:     zap.NewNop(),
		batchSize:  defaultBatchSize,
		maxWorkers: defaultMaxWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Preview scans and categorizes without touching the backend or the
// database. Eligible files are reported as pending, duplicates as skipped.
func (o *Orchestrator) Preview(ctx context.Context, req models.IngestRequest) (*models.Report, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	candidates, exclusions, err := o.scanner.Scan(req.SourceDirectory)
	if err != nil {
		return nil, err
	}

	existing := map[string]bool{}
	if store, err := o.catalog.FindStore(ctx, req.StoreName); err == nil {
		existing, err = o.existingFilenames(ctx, store.ID)
		if err != nil {
			return nil, err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	eligible, skipped := splitDuplicates(candidates, existing)

	report := newReport(exclusions)
	for _, out := range skipped {
		record(report, out)
	}
	for _, c := range eligible {
		record(report, models.FileOutcome{
			Path:      c.Path,
			Filename:  c.Filename,
			Category:  o.categorize(req, c.Path),
			SizeBytes: c.Size,
			Status:    models.StatusPending,
		})
	}
	report.Message = fmt.Sprintf("scan only: %d file(s) would be ingested, %d skipped", len(eligible), len(skipped))
	return report, nil
}

// Execute runs a full ingestion job. The returned error covers job-level
// failures only (bad directory, unreachable backend at store creation);
// per-file failures are FileOutcome rows in the report.
func (o *Orchestrator) Execute(ctx context.Context, req models.IngestRequest) (*models.Report, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = o.batchSize
	}

	store, err := o.catalog.EnsureStore(ctx, req.StoreName, "")
	if err != nil {
		return nil, err
	}
	candidates, exclusions, err := o.scanner.Scan(req.SourceDirectory)
	if err != nil {
		return nil, err
	}
	existing, err := o.existingFilenames(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	eligible, skipped := splitDuplicates(candidates, existing)

	o.logger.Info("ingestion started",
		zap.String("store", store.Name),
		zap.String("source", req.SourceDirectory),
		zap.Int("eligible", len(eligible)),
		zap.Int("duplicates", len(skipped)),
		zap.Int("batch_size", batchSize))

	report := newReport(exclusions)
	for _, out := range skipped {
		record(report, out)
	}

	workers := batchSize
	if workers > o.maxWorkers {
		workers = o.maxWorkers
	}
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	outcomes := make(chan models.FileOutcome)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for out := range outcomes {
			record(report, out)
		}
	}()

	// Cancellation is checked only between batches. A dispatched batch runs
	// on a detached context so a file whose upload already succeeded still
	// gets its metadata row instead of an orphaned remote file.
	fileCtx := context.WithoutCancel(ctx)
	cancelled := false
	for start := 0; start < len(eligible); start += batchSize {
		if ctx.Err() != nil {
			cancelled = true
		}
		end := start + batchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		if cancelled {
			for _, c := range batch {
				outcomes <- models.FileOutcome{
					Path:      c.Path,
					Filename:  c.Filename,
					SizeBytes: c.Size,
					Status:    models.StatusSkipped,
					Error:     "job cancelled",
				}
			}
			continue
		}

		var wg sync.WaitGroup
		for _, c := range batch {
			c := c
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				outcomes <- o.processFile(fileCtx, store, req, c)
			})
			if submitErr != nil {
				wg.Done()
				outcomes <- models.FileOutcome{
					Path:      c.Path,
					Filename:  c.Filename,
					SizeBytes: c.Size,
					Status:    models.StatusFailed,
					Error:     fmt.Sprintf("worker pool: %v", submitErr),
				}
			}
		}
		wg.Wait()
	}

	close(outcomes)
	<-done

	report.Message = fmt.Sprintf("ingested %d of %d file(s) into %q (%d failed, %d skipped)",
		report.SuccessCount, report.Total, store.Name, report.FailedCount, report.SkippedCount)
	o.logger.Info("ingestion finished",
		zap.String("store", store.Name),
		zap.Int("total", report.Total),
		zap.Int("success", report.SuccessCount),
		zap.Int("failed", report.FailedCount),
		zap.Int("skipped", report.SkippedCount))
	return report, nil
}

// IngestFile ingests one file into the named store. Used by the drop
// directory watcher; duplicates are reported as skipped outcomes, not errors.
func (o *Orchestrator) IngestFile(ctx context.Context, storeName, path string) (*models.FileOutcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	store, err := o.catalog.EnsureStore(ctx, storeName, "")
	if err != nil {
		return nil, err
	}
	existing, err := o.existingFilenames(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	filename := filepath.Base(path)
	if existing[filename] {
		return &models.FileOutcome{
			Path:      path,
			Filename:  filename,
			SizeBytes: info.Size(),
			Status:    models.StatusSkipped,
			Error:     "duplicate: filename already in store",
		}, nil
	}

	out := o.processFile(ctx, store, models.IngestRequest{AutoCategorize: true}, scanner.Candidate{
		Path:     path,
		Filename: filename,
		Size:     info.Size(),
	})
	return &out, nil
}

// processFile uploads one candidate and records its metadata. All failure
// modes collapse into the returned outcome.
func (o *Orchestrator) processFile(ctx context.Context, store *models.Store, req models.IngestRequest, c scanner.Candidate) models.FileOutcome {
	out := models.FileOutcome{
		Path:      c.Path,
		Filename:  c.Filename,
		Category:  o.categorize(req, c.Path),
		SizeBytes: c.Size,
	}

	content, err := os.ReadFile(c.Path)
	if err != nil {
		out.Status = models.StatusFailed
		out.Error = fmt.Sprintf("read: %v", err)
		return out
	}

	remoteFileID, err := o.backend.UploadAndIndex(ctx, store.RemoteID, c.Filename, content)
	if err != nil {
		out.Status = models.StatusFailed
		out.Error = fmt.Sprintf("upload: %v", err)
		o.logger.Warn("upload failed", zap.String("file", c.Path), zap.Error(err))
		return out
	}
	out.RemoteFileID = remoteFileID

	sum := sha256.Sum256(content)
	rel := c.Path
	if r, err := filepath.Rel(req.SourceDirectory, c.Path); err == nil && req.SourceDirectory != "" {
		rel = r
	}
	doc := &models.Document{
		ID:           uuid.New().String(),
		StoreID:      store.ID,
		Filename:     c.Filename,
		SourcePath:   c.Path,
		Category:     out.Category,
		SizeBytes:    c.Size,
		RemoteFileID: remoteFileID,
		Metadata: map[string]interface{}{
			"relative_path": rel,
			"sha256":        hex.EncodeToString(sum[:]),
		},
	}
	if err := o.storage.CreateDocument(ctx, doc); err != nil {
		out.Status = models.StatusFailed
		out.Error = fmt.Sprintf("orphaned remote file %s: metadata write failed: %v", remoteFileID, err)
		o.logger.Error("metadata write failed after upload",
			zap.String("file", c.Path),
			zap.String("remote_file_id", remoteFileID),
			zap.Error(err))
		return out
	}

	out.Status = models.StatusSuccess
	return out
}

func (o *Orchestrator) categorize(req models.IngestRequest, path string) string {
	if !req.AutoCategorize {
		return category.Uncategorized
	}
	return o.detector.Detect(path)
}

func validate(req models.IngestRequest) error {
	if req.SourceDirectory == "" {
		return fmt.Errorf("%w: source_directory is required", ErrInvalidRequest)
	}
	if req.StoreName == "" {
		return fmt.Errorf("%w: store_name is required", ErrInvalidRequest)
	}
	return nil
}
