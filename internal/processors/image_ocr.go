// -----------------------------------------------------------------------
// Image OCR Processor - Extracts text from images via tesseract
// -----------------------------------------------------------------------

package processors

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

const defaultOCRLanguage = "eng"

// ImageOCRProcessor runs tesseract over an image file and returns the
// recognized text. Phases: validate -> ocr -> post_process.
type ImageOCRProcessor struct {
	limits common.LimitsConfig
	runner CommandRunner
	logger arbor.ILogger
}

var _ interfaces.Processor = (*ImageOCRProcessor)(nil)

// NewImageOCRProcessor creates the OCR processor. The runner shells out to
// tesseract in production and is stubbed in tests.
func NewImageOCRProcessor(limits common.LimitsConfig, runner CommandRunner, logger arbor.ILogger) *ImageOCRProcessor {
	return &ImageOCRProcessor{
		limits: limits,
		runner: runner,
		logger: logger,
	}
}

func (p *ImageOCRProcessor) Kind() models.ProcessorKind {
	return models.KindImageOCR
}

func (p *ImageOCRProcessor) Phases() []string {
	return []string{"validate", "ocr", "post_process"}
}

func (p *ImageOCRProcessor) Run(ctx context.Context, job *models.Job, steps interfaces.StepRunner) (*interfaces.ProcessResult, error) {
	path := job.Input.Path
	language := job.Input.Options["language"]
	if language == "" {
		language = defaultOCRLanguage
	}

	var fileSize int64
	var mimeType string

	if err := steps.Step(ctx, "validate", func(ctx context.Context) error {
		if path == "" {
			return models.NewValidationError("image_ocr processor requires a file path input")
		}

		info, err := os.Stat(path)
		if err != nil {
			return models.NewValidationError("cannot access input file %s: %v", path, err)
		}
		fileSize = info.Size()
		if p.limits.MaxFileBytes > 0 && fileSize > p.limits.MaxFileBytes {
			return models.NewResourceLimitError("file size %d exceeds limit %d bytes", fileSize, p.limits.MaxFileBytes)
		}

		detected, err := mimetype.DetectFile(path)
		if err != nil {
			return models.NewValidationError("cannot detect content type of %s: %v", path, err)
		}
		mimeType = detected.String()
		if !strings.HasPrefix(mimeType, "image/") {
			return models.NewValidationError("input is %s, expected an image", mimeType)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var rawText string
	var ocrDuration time.Duration

	if err := steps.Step(ctx, "ocr", func(ctx context.Context) error {
		start := time.Now()
		// tesseract <file> stdout -l <lang>
		stdout, stderr, err := p.runner.Run(ctx, "tesseract", path, "stdout", "-l", language)
		ocrDuration = time.Since(start)
		if err != nil {
			return models.NewProcessorFailure("tesseract failed: %v: %s", err, truncate(string(stderr), 512))
		}
		rawText = string(stdout)
		return nil
	}); err != nil {
		return nil, err
	}

	var text string
	if err := steps.Step(ctx, "post_process", func(ctx context.Context) error {
		text = normalizeOCRText(rawText)
		return nil
	}); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("mime_type", mimeType).
		Str("language", language).
		Int("text_length", len(text)).
		Msg("Image OCR completed")

	return &interfaces.ProcessResult{
		Payload: map[string]interface{}{
			"text":      text,
			"mime_type": mimeType,
			"language":  language,
			"file_size": fileSize,
		},
		Consumption: models.Measurement{
			Bytes:           fileSize,
			Pages:           1,
			DurationSeconds: ocrDuration.Seconds(),
		},
	}, nil
}

// normalizeOCRText collapses runs of blank lines and trims whitespace noise
// typical of tesseract output.
func normalizeOCRText(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "" {
			if !blank && len(cleaned) > 0 {
				cleaned = append(cleaned, "")
			}
			blank = true
			continue
		}
		blank = false
		cleaned = append(cleaned, trimmed)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
