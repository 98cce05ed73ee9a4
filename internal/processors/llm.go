// -----------------------------------------------------------------------
// LLM Client - Claude-backed text generation for transformer and story
// processors
// -----------------------------------------------------------------------

package processors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
)

// TextGenerator abstracts the LLM call so processors can be tested without
// network access. TokensUsed covers input and output tokens of the request.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (text string, tokensUsed int, err error)
}

// ClaudeGenerator implements TextGenerator against the Anthropic API
type ClaudeGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    arbor.ILogger
}

var _ TextGenerator = (*ClaudeGenerator)(nil)

// NewClaudeGenerator creates a Claude-backed text generator from config
func NewClaudeGenerator(cfg *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	timeout := 60 * time.Second
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid claude timeout '%s': %w", cfg.Timeout, err)
		}
		timeout = parsed
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	logger.Debug().
		Str("model", model).
		Int("max_tokens", maxTokens).
		Dur("timeout", timeout).
		Msg("Claude text generator initialized")

	return &ClaudeGenerator{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Generate sends a single-turn completion request and returns the response
// text with the total token usage of the exchange.
func (g *ClaudeGenerator) Generate(ctx context.Context, system, prompt string) (string, int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	start := time.Now()
	resp, err := g.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", 0, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", 0, fmt.Errorf("no response generated from Claude API")
	}

	tokens := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	g.logger.Debug().
		Int("prompt_length", len(prompt)).
		Int("response_length", text.Len()).
		Int("tokens", tokens).
		Dur("duration", time.Since(start)).
		Msg("Claude completion finished")

	return text.String(), tokens, nil
}
