package processors

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

// Registry maps processor kinds to their implementations. The set is fixed
// at construction; lookups of unregistered kinds fail with
// ErrUnknownProcessorKind.
type Registry struct {
	processors map[models.ProcessorKind]interfaces.Processor
	logger     arbor.ILogger
}

// NewRegistry builds a registry from the given processors
func NewRegistry(logger arbor.ILogger, procs ...interfaces.Processor) *Registry {
	registry := &Registry{
		processors: make(map[models.ProcessorKind]interfaces.Processor, len(procs)),
		logger:     logger,
	}
	for _, proc := range procs {
		registry.processors[proc.Kind()] = proc
	}
	return registry
}

// NewDefaultRegistry wires the full processor set from configuration. The
// generator may be nil when no API key is configured; transformer and story
// are then left unregistered and submissions for them fail validation.
func NewDefaultRegistry(cfg *common.Config, generator TextGenerator, logger arbor.ILogger) *Registry {
	procs := []interfaces.Processor{
		NewPDFProcessor(cfg.Limits, logger),
		NewImageOCRProcessor(cfg.Limits, NewExecRunner(logger), logger),
		NewYoutubeProcessor(logger),
		NewMetadataProcessor(cfg.Limits, logger),
	}
	if generator != nil {
		procs = append(procs,
			NewTransformerProcessor(cfg.Limits, generator, logger),
			NewStoryProcessor(cfg.Limits, generator, logger),
		)
	} else {
		logger.Warn().Msg("No LLM generator configured, transformer and story processors disabled")
	}
	return NewRegistry(logger, procs...)
}

// Get returns the processor for a kind
func (r *Registry) Get(kind models.ProcessorKind) (interfaces.Processor, error) {
	proc, ok := r.processors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownProcessorKind, kind)
	}
	return proc, nil
}

// Describe returns the declared phase list for every registered kind
func (r *Registry) Describe() map[models.ProcessorKind][]string {
	out := make(map[models.ProcessorKind][]string, len(r.processors))
	for kind, proc := range r.processors {
		out[kind] = proc.Phases()
	}
	return out
}

// Kinds returns the registered processor kinds
func (r *Registry) Kinds() []models.ProcessorKind {
	kinds := make([]models.ProcessorKind, 0, len(r.processors))
	for kind := range r.processors {
		kinds = append(kinds, kind)
	}
	return kinds
}
