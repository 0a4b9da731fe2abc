// Package cli provides CLI output formatting for docpile.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/docpile/docpile/internal/models"
	"github.com/docpile/docpile/pkg/utils"
)

// OutputFormat is the format for report output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteReport writes an ingestion report to w in the given format.
func WriteReport(w io.Writer, report *models.Report, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		writeReportText(w, report)
		return nil
	}
}

func writeReportText(w io.Writer, report *models.Report) {
	fmt.Fprintf(w, "\n%d file(s): %d succeeded, %d failed, %d skipped\n\n",
		report.Total, report.SuccessCount, report.FailedCount, report.SkippedCount)

	for _, f := range report.Files {
		marker := " "
		switch f.Status {
		case models.StatusSuccess:
			marker = "+"
		case models.StatusFailed:
			marker = "!"
		case models.StatusSkipped:
			marker = "-"
		case models.StatusPending:
			marker = "?"
		}
		fmt.Fprintf(w, "%s %-12s %-14s %8s  %s\n",
			marker, f.Status, f.Category, utils.HumanSize(f.SizeBytes), f.Path)
		if f.Error != "" {
			fmt.Fprintf(w, "    %s\n", utils.Truncate(f.Error, 160))
		}
	}

	if len(report.Exclusions) > 0 {
		fmt.Fprintf(w, "\nExcluded during scan:\n")
		for _, e := range report.Exclusions {
			fmt.Fprintf(w, "  %s (%s)\n", e.Path, e.Reason)
		}
	}

	if len(report.CategoryDistribution) > 0 {
		labels := make([]string, 0, len(report.CategoryDistribution))
		for label := range report.CategoryDistribution {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		fmt.Fprintf(w, "\nCategories:\n")
		for _, label := range labels {
			fmt.Fprintf(w, "  %-16s %d\n", label, report.CategoryDistribution[label])
		}
	}

	if report.Message != "" {
		fmt.Fprintf(w, "\n%s\n", report.Message)
	}
}
