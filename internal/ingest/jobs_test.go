package ingest

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/docpile/docpile/internal/models"
)

func TestJobsLifecycle(t *testing.T) {
	jobs := NewJobs()

	id := jobs.Start()
	job, ok := jobs.Get(id)
	if !ok {
		t.Fatal("job not found after Start")
	}
	if job.Status != JobRunning {
		t.Errorf("status = %q, want running", job.Status)
	}

	report := &models.Report{Total: 3, SuccessCount: 3}
	jobs.Complete(id, report)
	job, _ = jobs.Get(id)
	if job.Status != JobCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
	if job.Report == nil || job.Report.Total != 3 {
		t.Errorf("report not attached: %+v", job.Report)
	}
	if job.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestJobsFail(t *testing.T) {
	jobs := NewJobs()
	id := jobs.Start()
	jobs.Fail(id, "backend unavailable")
	job, _ := jobs.Get(id)
	if job.Status != JobFailed {
		t.Errorf("status = %q, want failed", job.Status)
	}
	if job.Error != "backend unavailable" {
		t.Errorf("error = %q", job.Error)
	}
}

func TestJobsRunningSerializesWithoutFinishedAt(t *testing.T) {
	jobs := NewJobs()
	id := jobs.Start()
	job, _ := jobs.Get(id)

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "finished_at") {
		t.Errorf("running job must not expose a zero finish time: %s", data)
	}

	jobs.Complete(id, &models.Report{})
	job, _ = jobs.Get(id)
	data, err = json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), "finished_at") {
		t.Errorf("completed job missing finish time: %s", data)
	}
}

func TestJobsGetUnknown(t *testing.T) {
	jobs := NewJobs()
	if _, ok := jobs.Get("nope"); ok {
		t.Error("expected miss for unknown job ID")
	}
}
