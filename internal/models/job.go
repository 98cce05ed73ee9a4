// -----------------------------------------------------------------------
// Job - Tracked unit of content-processing work
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/ternarybob/tracto/internal/common"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// IsTerminal returns true for success and error - no further transitions occur
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// StepStatus represents the state of a single processing step
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
)

// StepError carries the failure recorded on an individual step
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ProcessingStep is one named phase of a job's processing, tracked for
// timing and failure attribution. Steps within a job execute strictly
// sequentially; at most one step is open at any time.
type ProcessingStep struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	FromCache   bool       `json:"from_cache,omitempty"`
	Error       *StepError `json:"error,omitempty"`
}

// IsOpen returns true while the step has started but not completed
func (s *ProcessingStep) IsOpen() bool {
	return s.CompletedAt == nil
}

// NewCancelledStep returns an already-closed step recording that the job
// was cancelled before its next phase could run. Cancelled jobs still
// carry a non-empty step history for failure attribution.
func NewCancelledStep(message string) ProcessingStep {
	now := time.Now().UTC()
	return ProcessingStep{
		Name:        "cancel",
		Status:      StepStatusError,
		StartedAt:   now,
		CompletedAt: &now,
		Error: &StepError{
			Kind:    ErrorKindCancelled,
			Message: message,
		},
	}
}

// InputDescriptor references the source content of a job. Exactly one of
// Path, URL or Text is set; Options carry processor-specific settings.
type InputDescriptor struct {
	Path    string            `json:"path,omitempty"`
	URL     string            `json:"url,omitempty"`
	Text    string            `json:"text,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// IsEmpty returns true when no source reference is present
func (d InputDescriptor) IsEmpty() bool {
	return d.Path == "" && d.URL == "" && d.Text == ""
}

// Source returns the single populated source reference
func (d InputDescriptor) Source() string {
	switch {
	case d.Path != "":
		return d.Path
	case d.URL != "":
		return d.URL
	default:
		return d.Text
	}
}

// ResourceUsage holds normalized consumption units accumulated for a job
// or aggregated for a batch.
type ResourceUsage struct {
	ComputeUnits float64 `json:"compute_units"`
	StorageUnits float64 `json:"storage_units"`
	TotalUnits   float64 `json:"total_units"`
}

// Add accumulates another usage record into this one
func (u *ResourceUsage) Add(other ResourceUsage) {
	u.ComputeUnits += other.ComputeUnits
	u.StorageUnits += other.StorageUnits
	u.TotalUnits += other.TotalUnits
}

// Job represents one unit of content-processing work.
//
// Lifecycle: pending -> running -> success | error. Exactly one terminal
// transition occurs per job; CompletedAt is set at the first transition into
// a terminal status and never again. Once terminal, exactly one of Result
// and Error is populated. Steps is append-only in execution order.
type Job struct {
	ID              string                 `json:"id" badgerhold:"key"`
	BatchID         string                 `json:"batch_id,omitempty" badgerholdIndex:"BatchID"`
	Kind            ProcessorKind          `json:"kind"`
	Input           InputDescriptor        `json:"input"`
	UseCache        bool                   `json:"use_cache"`
	Status          JobStatus              `json:"status" badgerholdIndex:"Status"`
	Steps           []ProcessingStep       `json:"steps"`
	Resources       ResourceUsage          `json:"resources_used"`
	Result          map[string]interface{} `json:"result,omitempty"`
	FromCache       bool                   `json:"from_cache,omitempty"`
	Error           *ErrorInfo             `json:"error,omitempty"`
	CancelRequested bool                   `json:"cancel_requested,omitempty"`
	RetryOf         string                 `json:"retry_of,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	LastHeartbeat   *time.Time             `json:"last_heartbeat,omitempty"`
}

// NewJob creates a new pending job for the given processor kind
func NewJob(kind ProcessorKind, input InputDescriptor, useCache bool) *Job {
	return &Job{
		ID:        common.NewJobID(),
		Kind:      kind,
		Input:     input,
		UseCache:  useCache,
		Status:    JobStatusPending,
		Steps:     []ProcessingStep{},
		CreatedAt: time.Now().UTC(),
	}
}

// Validate validates the job
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if !j.Kind.IsValid() {
		return fmt.Errorf("%w: %s", ErrUnknownProcessorKind, j.Kind)
	}
	if j.Input.IsEmpty() {
		return fmt.Errorf("job input descriptor is required")
	}
	return nil
}

// IsTerminal returns true if the job has reached success or error
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// MarkRunning transitions the job to running and stamps StartedAt
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := time.Now().UTC()
	j.StartedAt = &now
	j.LastHeartbeat = &now
}

// MarkSuccess records the terminal success state. The completion timestamp
// is set exactly once, at the first terminal transition.
func (j *Job) MarkSuccess(result map[string]interface{}) {
	if j.IsTerminal() {
		return
	}
	j.Status = JobStatusSuccess
	j.Result = result
	j.Error = nil
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkError records the terminal error state with the failing step and kind
func (j *Job) MarkError(errInfo *ErrorInfo) {
	if j.IsTerminal() {
		return
	}
	j.Status = JobStatusError
	j.Error = errInfo
	j.Result = nil
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// UpdateHeartbeat stamps the last heartbeat timestamp
func (j *Job) UpdateHeartbeat() {
	now := time.Now().UTC()
	j.LastHeartbeat = &now
}

// OpenStep returns the currently open step, or nil if none
func (j *Job) OpenStep() *ProcessingStep {
	for i := range j.Steps {
		if j.Steps[i].IsOpen() {
			return &j.Steps[i]
		}
	}
	return nil
}

// Clone creates a fresh pending job referencing the same input, used by the
// explicit retry operation. The clone gets a new ID and records its origin.
func (j *Job) Clone() *Job {
	clone := NewJob(j.Kind, j.Input, j.UseCache)
	clone.BatchID = j.BatchID
	clone.RetryOf = j.ID
	return clone
}
