package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewBatchID generates a unique batch ID with the "batch_" prefix
// Format: batch_<uuid>
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}

// NewDeliveryID generates a unique webhook delivery ID with the "whd_" prefix
// Format: whd_<uuid>
func NewDeliveryID() string {
	return "whd_" + uuid.New().String()
}
