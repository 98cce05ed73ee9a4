// -----------------------------------------------------------------------
// Step Tracker - Per-job processing step state machine
// -----------------------------------------------------------------------

package tracker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/tracto/internal/models"
)

// Tracker records the ordered list of processing steps for a single job.
// Steps execute strictly sequentially: at most one step is open at any
// time, and the append order reflects execution order.
//
// StartStep/EndStep misuse (double open, close without open) is a
// programming error in a processor's phase execution and is reported as
// models.ErrStepAlreadyOpen / models.ErrNoOpenStep so the orchestrator can
// abort the job as an internal failure rather than continue silently.
type Tracker struct {
	mu      sync.Mutex
	steps   []models.ProcessingStep
	openIdx int
}

// New creates an empty tracker with no open step
func New() *Tracker {
	return &Tracker{
		steps:   []models.ProcessingStep{},
		openIdx: -1,
	}
}

// StartStep appends a new step, marks it started and returns an error if a
// step is already open.
func (t *Tracker) StartStep(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openIdx >= 0 {
		return fmt.Errorf("%w: %s still open when starting %s", models.ErrStepAlreadyOpen, t.steps[t.openIdx].Name, name)
	}

	t.steps = append(t.steps, models.ProcessingStep{
		Name:      name,
		Status:    models.StepStatusPending,
		StartedAt: time.Now().UTC(),
	})
	t.openIdx = len(t.steps) - 1
	return nil
}

// EndStep closes the open step with the given status, stamping completion
// time and derived duration. Fails if no step is open.
func (t *Tracker) EndStep(status models.StepStatus, stepErr *models.StepError) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openIdx < 0 {
		return models.ErrNoOpenStep
	}

	step := &t.steps[t.openIdx]
	now := time.Now().UTC()
	step.CompletedAt = &now
	step.DurationMS = now.Sub(step.StartedAt).Milliseconds()
	step.Status = status
	step.Error = stepErr
	t.openIdx = -1
	return nil
}

// Step runs fn as one named processing phase, guaranteeing the step is
// closed exactly once on every exit path: normal return, error return,
// panic, and context cancellation observed before the phase starts.
// The returned error is fn's failure (or the tracker-contract violation).
func (t *Tracker) Step(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &models.ProcessorError{Kind: models.ErrorKindCancelled, Message: ctxErr.Error()}
	}

	if startErr := t.StartStep(name); startErr != nil {
		return startErr
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 2048)
			n := runtime.Stack(buf, false)
			err = &models.ProcessorError{
				Kind:    models.ErrorKindInternal,
				Message: fmt.Sprintf("panic in step %s: %v\n%s", name, r, buf[:n]),
			}
		}

		if err != nil {
			procErr := models.AsProcessorError(err)
			_ = t.EndStep(models.StepStatusError, &models.StepError{
				Kind:    procErr.Kind,
				Message: procErr.Message,
			})
			return
		}
		_ = t.EndStep(models.StepStatusSuccess, nil)
	}()

	err = fn(ctx)
	return err
}

// RecordCachedStep appends an already-closed synthetic step marking a cache
// hit, so cache reuse shows up in the job's step history.
func (t *Tracker) RecordCachedStep(name string) error {
	if err := t.StartStep(name); err != nil {
		return err
	}

	t.mu.Lock()
	t.steps[t.openIdx].FromCache = true
	t.mu.Unlock()

	return t.EndStep(models.StepStatusSuccess, nil)
}

// Steps returns a copy of the recorded steps in execution order
func (t *Tracker) Steps() []models.ProcessingStep {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.ProcessingStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// OpenStepName returns the name of the currently open step, or "" if none
func (t *Tracker) OpenStepName() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.openIdx < 0 {
		return ""
	}
	return t.steps[t.openIdx].Name
}

// LastStepName returns the name of the most recently recorded step, used to
// attribute a job-level failure to the step it originated from.
func (t *Tracker) LastStepName() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.steps) == 0 {
		return ""
	}
	return t.steps[len(t.steps)-1].Name
}
