package ingest

import "github.com/docpile/docpile/internal/models"

// newReport returns an empty report carrying the scan exclusions.
func newReport(exclusions []models.ScanExclusion) *models.Report {
	return &models.Report{
		Files:                []models.FileOutcome{},
		Exclusions:           exclusions,
		CategoryDistribution: make(map[string]int),
	}
}

// record adds one outcome to the report and updates the counters. Skipped
// files are excluded from the category histogram. Called from a single
// aggregator goroutine only.
func record(r *models.Report, out models.FileOutcome) {
	r.Files = append(r.Files, out)
	r.Total++
	switch out.Status {
	case models.StatusSuccess:
		r.SuccessCount++
	case models.StatusFailed:
		r.FailedCount++
	case models.StatusSkipped:
		r.SkippedCount++
	}
	if out.Status != models.StatusSkipped && out.Category != "" {
		r.CategoryDistribution[out.Category]++
	}
}
