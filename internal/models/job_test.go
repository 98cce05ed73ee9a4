package models

import (
	"strings"
	"testing"
	"time"
)

func TestNewJobDefaults(t *testing.T) {
	job := NewJob(KindPDF, InputDescriptor{Path: "/tmp/a.pdf"}, true)

	if !strings.HasPrefix(job.ID, "job_") {
		t.Errorf("job ID should have job_ prefix, got %s", job.ID)
	}
	if job.Status != JobStatusPending {
		t.Errorf("new job status = %s, want pending", job.Status)
	}
	if job.Steps == nil || len(job.Steps) != 0 {
		t.Error("new job should start with empty step list")
	}
	if job.CompletedAt != nil {
		t.Error("new job must not have a completion timestamp")
	}
	if err := job.Validate(); err != nil {
		t.Errorf("valid job failed validation: %v", err)
	}
}

func TestJobValidate(t *testing.T) {
	job := NewJob(ProcessorKind("bogus"), InputDescriptor{Path: "/tmp/a.pdf"}, false)
	if err := job.Validate(); err == nil {
		t.Error("expected validation failure for unknown processor kind")
	}

	job = NewJob(KindMetadata, InputDescriptor{}, false)
	if err := job.Validate(); err == nil {
		t.Error("expected validation failure for empty input descriptor")
	}
}

// TestJobTerminalOnce verifies exactly one terminal transition occurs: the
// first terminal state wins and the completion timestamp is set exactly once.
func TestJobTerminalOnce(t *testing.T) {
	job := NewJob(KindMetadata, InputDescriptor{Path: "/tmp/x"}, false)
	job.MarkRunning()

	job.MarkSuccess(map[string]interface{}{"ok": true})
	if job.Status != JobStatusSuccess {
		t.Fatalf("status = %s, want success", job.Status)
	}
	firstCompleted := *job.CompletedAt

	time.Sleep(5 * time.Millisecond)
	job.MarkError(&ErrorInfo{Kind: ErrorKindProcessor, Message: "late failure"})

	if job.Status != JobStatusSuccess {
		t.Errorf("terminal status changed after re-entry: %s", job.Status)
	}
	if job.Error != nil {
		t.Error("error populated on a successful job")
	}
	if !job.CompletedAt.Equal(firstCompleted) {
		t.Error("completion timestamp changed after first terminal transition")
	}
}

// TestJobResultErrorExclusive verifies exactly one of result/error is
// populated once the job is terminal.
func TestJobResultErrorExclusive(t *testing.T) {
	job := NewJob(KindPDF, InputDescriptor{Path: "/tmp/a.pdf"}, false)
	job.MarkRunning()
	job.Result = map[string]interface{}{"stale": true}
	job.MarkError(&ErrorInfo{Kind: ErrorKindValidation, Message: "bad input", Step: "validate"})

	if job.Result != nil {
		t.Error("result must be cleared on terminal error")
	}
	if job.Error == nil || job.Error.Step != "validate" {
		t.Errorf("terminal error missing originating step: %+v", job.Error)
	}
}

func TestJobClone(t *testing.T) {
	job := NewJob(KindYoutube, InputDescriptor{URL: "https://youtu.be/abc"}, true)
	job.BatchID = "batch_1"
	job.MarkRunning()
	job.MarkError(&ErrorInfo{Kind: ErrorKindProcessor, Message: "boom"})

	clone := job.Clone()
	if clone.ID == job.ID {
		t.Error("clone must get a fresh ID")
	}
	if clone.Status != JobStatusPending {
		t.Errorf("clone status = %s, want pending", clone.Status)
	}
	if clone.RetryOf != job.ID {
		t.Errorf("clone.RetryOf = %s, want %s", clone.RetryOf, job.ID)
	}
	if clone.Input.URL != job.Input.URL || clone.BatchID != job.BatchID {
		t.Error("clone must reference the same input and batch")
	}
}

func TestResourceUsageAdd(t *testing.T) {
	u := ResourceUsage{ComputeUnits: 1, StorageUnits: 2, TotalUnits: 3}
	u.Add(ResourceUsage{ComputeUnits: 0.5, StorageUnits: 0.25, TotalUnits: 0.75})

	if u.ComputeUnits != 1.5 || u.StorageUnits != 2.25 || u.TotalUnits != 3.75 {
		t.Errorf("unexpected accumulated usage: %+v", u)
	}
}

func TestProcessorKindIsValid(t *testing.T) {
	for _, k := range AllProcessorKinds() {
		if !k.IsValid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if ProcessorKind("audio").IsValid() {
		t.Error("unregistered kind reported valid")
	}
}
