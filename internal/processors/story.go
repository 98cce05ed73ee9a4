// -----------------------------------------------------------------------
// Story Processor - LLM-based narrative generation from source text
// -----------------------------------------------------------------------

package processors

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

const storySystemPrompt = "You are a storyteller. Write an engaging narrative based on the " +
	"provided source material. Return only the story text."

// StoryProcessor generates a narrative from source text. An optional 'style'
// option steers the tone. Phases: validate -> generate.
type StoryProcessor struct {
	limits    common.LimitsConfig
	generator TextGenerator
	logger    arbor.ILogger
}

var _ interfaces.Processor = (*StoryProcessor)(nil)

// NewStoryProcessor creates the story processor over the given generator
func NewStoryProcessor(limits common.LimitsConfig, generator TextGenerator, logger arbor.ILogger) *StoryProcessor {
	return &StoryProcessor{
		limits:    limits,
		generator: generator,
		logger:    logger,
	}
}

func (p *StoryProcessor) Kind() models.ProcessorKind {
	return models.KindStory
}

func (p *StoryProcessor) Phases() []string {
	return []string{"validate", "generate"}
}

func (p *StoryProcessor) Run(ctx context.Context, job *models.Job, steps interfaces.StepRunner) (*interfaces.ProcessResult, error) {
	style := job.Input.Options["style"]

	var sourceText string
	if err := steps.Step(ctx, "validate", func(ctx context.Context) error {
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

	var story string
	var tokens int
	if err := steps.Step(ctx, "generate", func(ctx context.Context) error {
		prompt := "Source material:\n" + sourceText
		if style != "" {
			prompt = "Style: " + style + "\n\n" + prompt
		}
		text, used, err := p.generator.Generate(ctx, storySystemPrompt, prompt)
		if err != nil {
			return models.NewProcessorFailure("story generation failed: %v", err)
		}
		story = text
		tokens = used
		return nil
	}); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Int("source_length", len(sourceText)).
		Int("story_length", len(story)).
		Int("tokens", tokens).
		Msg("Story generation completed")

	payload := map[string]interface{}{
		"story": story,
	}
	if style != "" {
		payload["style"] = style
	}

	return &interfaces.ProcessResult{
		Payload: payload,
		Consumption: models.Measurement{
			Bytes:  int64(len(sourceText)),
			Tokens: tokens,
		},
	}, nil
}
