// -----------------------------------------------------------------------
// PDF Processor - Validates and extracts content from PDF documents
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

// PDFProcessor extracts text content from PDF files.
// Phases: validate -> extract -> post_process.
type PDFProcessor struct {
	limits  common.LimitsConfig
	logger  arbor.ILogger
	tempDir string
}

var _ interfaces.Processor = (*PDFProcessor)(nil)

// NewPDFProcessor creates the PDF processor with input ceilings from config
func NewPDFProcessor(limits common.LimitsConfig, logger arbor.ILogger) *PDFProcessor {
	tempDir := filepath.Join(os.TempDir(), "tracto-pdf")
	os.MkdirAll(tempDir, 0755)

	return &PDFProcessor{
		limits:  limits,
		logger:  logger,
		tempDir: tempDir,
	}
}

func (p *PDFProcessor) Kind() models.ProcessorKind {
	return models.KindPDF
}

func (p *PDFProcessor) Phases() []string {
	return []string{"validate", "extract", "post_process"}
}

// Run executes the PDF pipeline under step tracking. Page count and file
// size ceilings are enforced during validate and reported as resource limit
// failures.
func (p *PDFProcessor) Run(ctx context.Context, job *models.Job, steps interfaces.StepRunner) (*interfaces.ProcessResult, error) {
	path := job.Input.Path

	var fileSize int64
	var pageCount int
	var pdfCtx *model.Context

	if err := steps.Step(ctx, "validate", func(ctx context.Context) error {
		if path == "" {
			return models.NewValidationError("pdf processor requires a file path input")
		}

		info, err := os.Stat(path)
		if err != nil {
			return models.NewValidationError("cannot access input file %s: %v", path, err)
		}
		fileSize = info.Size()
		if p.limits.MaxFileBytes > 0 && fileSize > p.limits.MaxFileBytes {
			return models.NewResourceLimitError("file size %d exceeds limit %d bytes", fileSize, p.limits.MaxFileBytes)
		}

		pdfCtx, err = api.ReadContextFile(path)
		if err != nil {
			return models.NewValidationError("not a readable PDF: %v", err)
		}
		if pdfCtx.Encrypt != nil {
			return models.NewValidationError("encrypted PDFs are not supported")
		}

		pageCount = pdfCtx.PageCount
		if p.limits.MaxPDFPages > 0 && pageCount > p.limits.MaxPDFPages {
			return models.NewResourceLimitError("page count %d exceeds limit %d", pageCount, p.limits.MaxPDFPages)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var pageTexts map[int]string
	if err := steps.Step(ctx, "extract", func(ctx context.Context) error {
		var err error
		pageTexts, err = p.extractPageTexts(path)
		if err != nil {
			return models.NewProcessorFailure("content extraction failed: %v", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var fullText string
	if err := steps.Step(ctx, "post_process", func(ctx context.Context) error {
		fullText = assemblePageText(pageTexts, pageCount)
		return nil
	}); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Int("pages", pageCount).
		Int64("bytes", fileSize).
		Int("text_length", len(fullText)).
		Msg("PDF processing completed")

	return &interfaces.ProcessResult{
		Payload: map[string]interface{}{
			"text":       fullText,
			"page_count": pageCount,
			"file_size":  fileSize,
		},
		Consumption: models.Measurement{
			Bytes: fileSize,
			Pages: pageCount,
		},
	}, nil
}

// extractPageTexts extracts content from every page into a page-number map.
// pdfcpu has no direct text extraction, so page content streams are dumped
// to a scratch directory and read back.
func (p *PDFProcessor) extractPageTexts(path string) (map[int]string, error) {
	outDir := filepath.Join(p.tempDir, fmt.Sprintf("pages_%d", os.Getpid()))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}
	return pageTexts, nil
}

func assemblePageText(pageTexts map[int]string, pageCount int) string {
	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := strings.TrimSpace(pageTexts[pageNum])
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", pageNum))
		}
		builder.WriteString(text)
	}
	return builder.String()
}
