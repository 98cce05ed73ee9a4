// -----------------------------------------------------------------------
// Webhook - Terminal event payloads and delivery tracking
// -----------------------------------------------------------------------

package models

import "time"

// WebhookJobOutcome summarizes one member job in a batch-level payload
type WebhookJobOutcome struct {
	JobID     string        `json:"job_id"`
	Status    JobStatus     `json:"status"`
	FromCache bool          `json:"from_cache,omitempty"`
	Resources ResourceUsage `json:"resources_used"`
	Error     *ErrorInfo    `json:"error,omitempty"`
}

// WebhookPayload is the JSON body delivered to a registered callback URL
// when a batch (or standalone job) reaches a terminal status.
type WebhookPayload struct {
	BatchID   string              `json:"batch_id,omitempty"`
	JobID     string              `json:"job_id,omitempty"`
	Status    string              `json:"status"`
	Jobs      []WebhookJobOutcome `json:"jobs,omitempty"`
	Resources ResourceUsage       `json:"resources_used"`
	Error     *ErrorInfo          `json:"error,omitempty"`
}

// DeliveryStatus is the outcome of a webhook delivery attempt sequence
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// WebhookDelivery records the delivery state for one terminal event. A failed
// delivery is a marker visible to the dashboard layer; it never alters the
// already-terminal job or batch state it reports.
type WebhookDelivery struct {
	ID          string         `json:"id" badgerhold:"key"`
	BatchID     string         `json:"batch_id" badgerholdIndex:"BatchID"`
	URL         string         `json:"url"`
	Status      DeliveryStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
