package models

// OutcomeStatus is the terminal status of one candidate file in a job.
type OutcomeStatus string

const (
	// StatusPending marks a file that is eligible for upload but has not been
	// attempted. Only preview reports contain pending outcomes.
	StatusPending OutcomeStatus = "pending"
	// StatusSuccess marks a file uploaded and recorded.
	StatusSuccess OutcomeStatus = "success"
	// StatusFailed marks a file whose upload or persistence failed.
	StatusFailed OutcomeStatus = "failed"
	// StatusSkipped marks a file not attempted (duplicate, or job cancelled).
	StatusSkipped OutcomeStatus = "skipped"
)

// FileOutcome is one row in an ingestion report. Every candidate file that
// enters filtering appears exactly once with exactly one status.
type FileOutcome struct {
	Path         string        `json:"path"`
	Filename     string        `json:"filename"`
	Category     string        `json:"category"`
	SizeBytes    int64         `json:"size_bytes"`
	Status       OutcomeStatus `json:"status"`
	RemoteFileID string        `json:"remote_file_id,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// IngestRequest describes one invocation of the ingestion pipeline.
// It is ephemeral; only the resulting Report is externally visible.
type IngestRequest struct {
	SourceDirectory string `json:"source_directory"`
	StoreName       string `json:"store_name"`
	AutoCategorize  bool   `json:"auto_categorize"`
	BatchSize       int    `json:"batch_size"`
	ScanOnly        bool   `json:"scan_only"`
	Async           bool   `json:"async,omitempty"`
}

// Report aggregates the outcome of one ingestion job. The category
// distribution counts only files that were not skipped.
type Report struct {
	Total                int             `json:"total"`
	SuccessCount         int             `json:"success_count"`
	FailedCount          int             `json:"failed_count"`
	SkippedCount         int             `json:"skipped_count"`
	Files                []FileOutcome   `json:"files"`
	Exclusions           []ScanExclusion `json:"exclusions,omitempty"`
	CategoryDistribution map[string]int  `json:"category_distribution"`
	Message              string          `json:"message,omitempty"`
}

// ScanExclusion is a file or directory entry left out during scanning,
// with the reason. Exclusions are informational and never fail a job.
type ScanExclusion struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}
