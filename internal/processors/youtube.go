// -----------------------------------------------------------------------
// YouTube Processor - Fetches video metadata via the oEmbed endpoint
// -----------------------------------------------------------------------

package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

const defaultOEmbedEndpoint = "https://www.youtube.com/oembed"

// maxOEmbedBody caps the response we are willing to parse
const maxOEmbedBody = 1 << 20

// YoutubeProcessor resolves a video URL to its public metadata.
// Phases: validate -> fetch_metadata.
type YoutubeProcessor struct {
	endpoint string
	client   *http.Client
	logger   arbor.ILogger
}

var _ interfaces.Processor = (*YoutubeProcessor)(nil)

// NewYoutubeProcessor creates the YouTube metadata processor
func NewYoutubeProcessor(logger arbor.ILogger) *YoutubeProcessor {
	return &YoutubeProcessor{
		endpoint: defaultOEmbedEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// NewYoutubeProcessorWithEndpoint creates the processor against a custom
// oEmbed endpoint, used by tests.
func NewYoutubeProcessorWithEndpoint(endpoint string, client *http.Client, logger arbor.ILogger) *YoutubeProcessor {
	return &YoutubeProcessor{
		endpoint: endpoint,
		client:   client,
		logger:   logger,
	}
}

func (p *YoutubeProcessor) Kind() models.ProcessorKind {
	return models.KindYoutube
}

func (p *YoutubeProcessor) Phases() []string {
	return []string{"validate", "fetch_metadata"}
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	AuthorURL    string `json:"author_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	ProviderName string `json:"provider_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

func (p *YoutubeProcessor) Run(ctx context.Context, job *models.Job, steps interfaces.StepRunner) (*interfaces.ProcessResult, error) {
	videoURL := job.Input.URL

	if err := steps.Step(ctx, "validate", func(ctx context.Context) error {
		if videoURL == "" {
			return models.NewValidationError("youtube processor requires a URL input")
		}
		parsed, err := url.Parse(videoURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return models.NewValidationError("invalid video URL: %s", videoURL)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return models.NewValidationError("unsupported URL scheme: %s", parsed.Scheme)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var meta oembedResponse
	var fetchDuration time.Duration

	if err := steps.Step(ctx, "fetch_metadata", func(ctx context.Context) error {
		start := time.Now()
		err := p.fetchOEmbed(ctx, videoURL, &meta)
		fetchDuration = time.Since(start)
		return err
	}); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("title", meta.Title).
		Str("author", meta.AuthorName).
		Dur("duration", fetchDuration).
		Msg("Video metadata fetched")

	return &interfaces.ProcessResult{
		Payload: map[string]interface{}{
			"title":         meta.Title,
			"author_name":   meta.AuthorName,
			"author_url":    meta.AuthorURL,
			"thumbnail_url": meta.ThumbnailURL,
			"provider_name": meta.ProviderName,
			"url":           videoURL,
		},
		Consumption: models.Measurement{
			DurationSeconds: fetchDuration.Seconds(),
		},
	}, nil
}

func (p *YoutubeProcessor) fetchOEmbed(ctx context.Context, videoURL string, meta *oembedResponse) error {
	endpoint := fmt.Sprintf("%s?url=%s&format=json", p.endpoint, url.QueryEscape(videoURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.NewProcessorFailure("failed to build metadata request: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return models.NewProcessorFailure("metadata fetch failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return models.NewValidationError("video not found or not embeddable: %s", videoURL)
	case resp.StatusCode != http.StatusOK:
		return models.NewProcessorFailure("metadata endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOEmbedBody))
	if err != nil {
		return models.NewProcessorFailure("failed to read metadata response: %v", err)
	}
	if err := json.Unmarshal(body, meta); err != nil {
		return models.NewProcessorFailure("malformed metadata response: %v", err)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return models.NewProcessorFailure("metadata response missing title")
	}
	return nil
}
