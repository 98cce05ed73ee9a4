// -----------------------------------------------------------------------
// Batch - Named group of jobs with derived aggregate status
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/ternarybob/tracto/internal/common"
)

// BatchStatus is the aggregate status derived from member job statuses.
// It is recomputed on every read, never cached.
type BatchStatus string

const (
	BatchStatusPending BatchStatus = "pending"
	BatchStatusSuccess BatchStatus = "success"
	BatchStatusPartial BatchStatus = "partial"
	BatchStatusError   BatchStatus = "error"
	BatchStatusEmpty   BatchStatus = "empty"
)

// IsTerminal returns true once no member can change the aggregate anymore
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusSuccess || s == BatchStatusPartial || s == BatchStatusError
}

// Batch groups jobs submitted together. Membership is immutable after the
// initial submission completes; member order is preserved for reporting.
type Batch struct {
	ID          string    `json:"id" badgerhold:"key"`
	JobIDs      []string  `json:"job_ids"`
	CallbackURL string    `json:"callback_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// NotifiedAt records when the terminal webhook for this batch was handed
	// to the notifier, guarding against duplicate deliveries.
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

// NewBatch creates a new empty batch
func NewBatch(callbackURL string) *Batch {
	return &Batch{
		ID:          common.NewBatchID(),
		JobIDs:      []string{},
		CallbackURL: callbackURL,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate validates the batch
func (b *Batch) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("batch ID is required")
	}
	return nil
}

// Contains reports whether the job is a member of this batch
func (b *Batch) Contains(jobID string) bool {
	for _, id := range b.JobIDs {
		if id == jobID {
			return true
		}
	}
	return false
}

// ComputeBatchStatus derives the aggregate status from member job statuses:
// pending while any member is non-terminal, success when all succeeded,
// error when all errored, partial for a terminal mix.
func ComputeBatchStatus(statuses []JobStatus) BatchStatus {
	if len(statuses) == 0 {
		return BatchStatusEmpty
	}

	succeeded := 0
	failed := 0
	for _, s := range statuses {
		switch {
		case !s.IsTerminal():
			return BatchStatusPending
		case s == JobStatusSuccess:
			succeeded++
		default:
			failed++
		}
	}

	switch {
	case failed == 0:
		return BatchStatusSuccess
	case succeeded == 0:
		return BatchStatusError
	default:
		return BatchStatusPartial
	}
}
