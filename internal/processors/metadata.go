// -----------------------------------------------------------------------
// Metadata Processor - Probes file identity without content extraction
// -----------------------------------------------------------------------

package processors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/interfaces"
	"github.com/ternarybob/tracto/internal/models"
)

// MetadataProcessor reports file identity: size, content type and checksum.
// Phases: validate -> probe.
type MetadataProcessor struct {
	limits common.LimitsConfig
	logger arbor.ILogger
}

var _ interfaces.Processor = (*MetadataProcessor)(nil)

// NewMetadataProcessor creates the metadata probe processor
func NewMetadataProcessor(limits common.LimitsConfig, logger arbor.ILogger) *MetadataProcessor {
	return &MetadataProcessor{
		limits: limits,
		logger: logger,
	}
}

func (p *MetadataProcessor) Kind() models.ProcessorKind {
	return models.KindMetadata
}

func (p *MetadataProcessor) Phases() []string {
	return []string{"validate", "probe"}
}

func (p *MetadataProcessor) Run(ctx context.Context, job *models.Job, steps interfaces.StepRunner) (*interfaces.ProcessResult, error) {
	path := job.Input.Path

	var info os.FileInfo
	if err := steps.Step(ctx, "validate", func(ctx context.Context) error {
		if path == "" {
			return models.NewValidationError("metadata processor requires a file path input")
		}
		stat, err := os.Stat(path)
		if err != nil {
			return models.NewValidationError("cannot access input file %s: %v", path, err)
		}
		if stat.IsDir() {
			return models.NewValidationError("input is a directory: %s", path)
		}
		if p.limits.MaxFileBytes > 0 && stat.Size() > p.limits.MaxFileBytes {
			return models.NewResourceLimitError("file size %d exceeds limit %d bytes", stat.Size(), p.limits.MaxFileBytes)
		}
		info = stat
		return nil
	}); err != nil {
		return nil, err
	}

	var mimeType, checksum string
	if err := steps.Step(ctx, "probe", func(ctx context.Context) error {
		detected, err := mimetype.DetectFile(path)
		if err != nil {
			return models.NewProcessorFailure("content type detection failed: %v", err)
		}
		mimeType = detected.String()

		sum, err := fileChecksum(path)
		if err != nil {
			return models.NewProcessorFailure("checksum failed: %v", err)
		}
		checksum = sum
		return nil
	}); err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("job_id", job.ID).
		Str("mime_type", mimeType).
		Int64("bytes", info.Size()).
		Msg("File metadata probed")

	return &interfaces.ProcessResult{
		Payload: map[string]interface{}{
			"file_name":   filepath.Base(path),
			"file_size":   info.Size(),
			"mime_type":   mimeType,
			"sha256":      checksum,
			"modified_at": info.ModTime().UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
		Consumption: models.Measurement{
			Bytes: info.Size(),
		},
	}, nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
