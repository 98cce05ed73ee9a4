// -----------------------------------------------------------------------
// Transformer Processor - LLM-based text transformation
// -----------------------------------------------------------------------

package processors

import (
	"context"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

const transformerSystemPrompt = "You are a precise text transformation engine. " +
	"Apply the requested instruction to the provided text and return only the transformed text."

// TransformerProcessor rewrites input text according to an instruction
// supplied in the input options. Phases: validate -> transform.
type TransformerProcessor struct {
	limits    common.LimitsConfig
	generator TextGenerator
	logger    arbor.ILogger
}

var _ interfaces.Processor = (*TransformerProcessor)(nil)

// NewTransformerProcessor creates the transformer over the given generator
func NewTransformerProcessor(limits common.LimitsConfig, generator TextGenerator, logger arbor.ILogger) *TransformerProcessor {
	return &TransformerProcessor{
		limits:    limits,
		generator: generator,
		logger:    logger,
	}
}

func (p *TransformerProcessor) Kind() models.ProcessorKind {
	return models.KindTransformer
}

func (p *TransformerProcessor) Phases() []string {
	return []string{"validate", "transform"}
}

func (p *TransformerProcessor) Run(ctx context.Context, job *models.Job, steps interfaces.StepRunner) (*interfaces.ProcessResult, error) {
	instruction := job.Input.Options["instruction"]

	var sourceText string
	if err := steps.Step(ctx, "validate", func(ctx context.Context) error {
		if instruction == "" {
			return models.NewValidationError("transformer requires an 'instruction' option")
		}

		text, err := resolveTextInput(job.Input)
		if err != nil {
			return err
		}
		if p.limits.MaxTextChars > 0 && len(text) > p.limits.MaxTextChars {
			return models.NewResourceLimitError("text length %d exceeds limit %d characters", len(text), p.limits.MaxTextChars)
		}
		sourceText = text
		return nil
	}); err != nil {
		return nil, err
	}

	var transformed string
	var tokens int
	if err := steps.Step(ctx, "transform", func(ctx context.Context) error {
		prompt := "Instruction: " + instruction + "\n\nText:\n" + sourceText
		text, used, err := p.generator.Generate(ctx, transformerSystemPrompt, prompt)
		if err != nil {
			return models.NewProcessorFailure("transformation failed: %v", err)
		}
		transformed = text
		tokens = used
		return nil
	}); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Int("input_length", len(sourceText)).
		Int("output_length", len(transformed)).
		Int("tokens", tokens).
		Msg("Text transformation completed")

	return &interfaces.ProcessResult{
		Payload: map[string]interface{}{
			"text":        transformed,
			"instruction": instruction,
		},
		Consumption: models.Measurement{
			Bytes:  int64(len(sourceText)),
			Tokens: tokens,
		},
	}, nil
}

// resolveTextInput returns the text content of an input descriptor, reading
// from disk when the input is a file path.
func resolveTextInput(input models.InputDescriptor) (string, error) {
	if input.Text != "" {
		return input.Text, nil
	}
	if input.Path != "" {
		content, err := os.ReadFile(input.Path)
		if err != nil {
			return "", models.NewValidationError("cannot read input file %s: %v", input.Path, err)
		}
		return string(content), nil
	}
	return "", models.NewValidationError("text input required: provide inline text or a file path")
}
