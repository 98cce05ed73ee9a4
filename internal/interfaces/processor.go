package interfaces

import (
	"context"

	"github.com/ternarybob/tracto/internal/models"
)

// StepRunner executes one named processing phase under step tracking.
// The runner guarantees the step is closed on every exit path of fn,
// including panics, and records duration and failure classification.
type StepRunner interface {
	Step(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// ProcessResult is the typed output of a successful processor invocation
type ProcessResult struct {
	// Payload is the processor-specific result stored on the job
	Payload map[string]interface{}
	// Consumption reports the raw measures fed to the resource calculator
	Consumption models.Measurement
}

// Processor is the polymorphic unit of work over a content kind. Phases
// declares the ordered step names up front so the tracker can attribute
// failures; Run must execute each phase through the supplied StepRunner
// and return either a result or a *models.ProcessorError.
type Processor interface {
	Kind() models.ProcessorKind
	Phases() []string
	Run(ctx context.Context, job *models.Job, steps StepRunner) (*ProcessResult, error)
}

// WebhookNotifier delivers terminal batch events to a callback URL.
// Delivery failures never propagate back into job or batch state.
type WebhookNotifier interface {
	Notify(ctx context.Context, url string, payload *models.WebhookPayload)
}
