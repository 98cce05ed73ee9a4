package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies job and processor failures for reporting.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation_error"
	ErrorKindResourceLimit ErrorKind = "resource_limit_exceeded"
	ErrorKindProcessor     ErrorKind = "processor_failure"
	ErrorKindCacheCompute  ErrorKind = "cache_compute_failure"
	ErrorKindCancelled     ErrorKind = "cancelled"
	ErrorKindInternal      ErrorKind = "internal"
)

// Sentinel errors surfaced to callers of the orchestration API.
var (
	ErrUnknownProcessorKind = errors.New("unknown processor kind")
	ErrJobNotFound          = errors.New("job not found")
	ErrJobAlreadyTerminal   = errors.New("job already terminal")
	ErrBatchNotFound        = errors.New("batch not found")
	ErrStepAlreadyOpen      = errors.New("step already open")
	ErrNoOpenStep           = errors.New("no open step")
	ErrInvalidMeasurement   = errors.New("invalid measurement")
)

// ProcessorError is the typed failure a processor returns. The orchestrator
// records Kind and Message on the job's terminal error together with the
// step the failure originated from.
type ProcessorError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewValidationError creates a ProcessorError for bad or missing input
func NewValidationError(format string, args ...interface{}) *ProcessorError {
	return &ProcessorError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewResourceLimitError creates a ProcessorError for exceeded input ceilings
func NewResourceLimitError(format string, args ...interface{}) *ProcessorError {
	return &ProcessorError{Kind: ErrorKindResourceLimit, Message: fmt.Sprintf(format, args...)}
}

// NewProcessorFailure creates a ProcessorError for a failed processor invocation
func NewProcessorFailure(format string, args ...interface{}) *ProcessorError {
	return &ProcessorError{Kind: ErrorKindProcessor, Message: fmt.Sprintf(format, args...)}
}

// AsProcessorError classifies an arbitrary error as a ProcessorError.
// Already-typed errors pass through; anything else becomes a processor_failure.
func AsProcessorError(err error) *ProcessorError {
	if err == nil {
		return nil
	}
	var procErr *ProcessorError
	if errors.As(err, &procErr) {
		return procErr
	}
	return &ProcessorError{Kind: ErrorKindProcessor, Message: err.Error()}
}

// ErrorInfo is the terminal error recorded on a failed job. Step names the
// processing step the failure originated from.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Step    string    `json:"step,omitempty"`
}
