package ingest

import (
	"context"
	"fmt"

	"github.com/docpile/docpile/internal/models"
	"github.com/docpile/docpile/internal/scanner"
)

// existingFilenames returns the set of filenames already ingested into the
// store. One query per job; the result backs the duplicate filter.
func (o *Orchestrator) existingFilenames(ctx context.Context, storeID int64) (map[string]bool, error) {
	docs, err := o.storage.FindDocumentsByStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing documents: %w", err)
	}
	names := make(map[string]bool, len(docs))
	for _, d := range docs {
		names[d.Filename] = true
	}
	return names, nil
}

// splitDuplicates partitions candidates into files to ingest and skipped
// outcomes for filenames already present in the store. Matching is by
// filename within the store, not by path or content.
func splitDuplicates(candidates []scanner.Candidate, existing map[string]bool) (eligible []scanner.Candidate, skipped []models.FileOutcome) {
	for _, c := range candidates {
		if existing[c.Filename] {
			skipped = append(skipped, models.FileOutcome{
				Path:      c.Path,
				Filename:  c.Filename,
				SizeBytes: c.Size,
				Status:    models.StatusSkipped,
				Error:     "duplicate: filename already in store",
			})
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible, skipped
}
