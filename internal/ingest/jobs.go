package ingest

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docpile/docpile/internal/models"
)

// JobStatus is the lifecycle state of an asynchronous ingestion job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one asynchronous ingestion run. Report is set once the job
// completes; Error is set when the job fails at the job level.
type Job struct {
	ID         string         `json:"id"`
	Status     JobStatus      `json:"status"`
	Report     *models.Report `json:"report,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitzero"`
}

// Jobs is an in-memory registry of asynchronous jobs. Entries live for the
// process lifetime; restarting the server forgets unfinished jobs.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobs returns an empty registry.
func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]*Job)}
}

// Start registers a new running job and returns its ID.
func (j *Jobs) Start() string {
	id := uuid.New().String()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[id] = &Job{
		ID:        id,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	return id
}

// Complete marks a job finished with its report.
func (j *Jobs) Complete(id string, report *models.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := j.jobs[id]; ok {
		job.Status = JobCompleted
		job.Report = report
		job.FinishedAt = time.Now()
	}
}

// Fail marks a job failed at the job level.
func (j *Jobs) Fail(id string, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := j.jobs[id]; ok {
		job.Status = JobFailed
		job.Error = errMsg
		job.FinishedAt = time.Now()
	}
}

// Get returns a snapshot of the job with the given ID.
func (j *Jobs) Get(id string) (Job, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	job, ok := j.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}
