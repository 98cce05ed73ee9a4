package processors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tracto/internal/common"
	"github.com/ternarybob/tracto/internal/models"
	"github.com/ternarybob/tracto/internal/tracker"
)

func testLimits() common.LimitsConfig {
	return common.LimitsConfig{
		MaxFileBytes: 10 * 1024 * 1024,
		MaxPDFPages:  100,
		MaxTextChars: 10000,
	}
}

// fakeGenerator is a canned TextGenerator for transformer and story tests
type fakeGenerator struct {
	response string
	tokens   int
	err      error
	prompts  []string
}

func (g *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, int, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", 0, g.err
	}
	return g.response, g.tokens, nil
}

// fakeRunner is a canned CommandRunner for OCR tests
type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error
	calls  [][]string
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.stdout, r.stderr, r.err
}

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// pngHeader is a minimal PNG signature followed by filler so mimetype
// detection identifies the file as image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func TestRegistry_GetKnownAndUnknown(t *testing.T) {
	logger := arbor.NewLogger()
	registry := NewRegistry(logger,
		NewMetadataProcessor(testLimits(), logger),
		NewYoutubeProcessor(logger),
	)

	proc, err := registry.Get(models.KindMetadata)
	require.NoError(t, err)
	assert.Equal(t, models.KindMetadata, proc.Kind())

	_, err = registry.Get(models.KindPDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUnknownProcessorKind)

	_, err = registry.Get(models.ProcessorKind("bogus"))
	assert.ErrorIs(t, err, models.ErrUnknownProcessorKind)

	assert.Len(t, registry.Kinds(), 2)
}

func TestTransformer_AppliesInstruction(t *testing.T) {
	gen := &fakeGenerator{response: "TRANSFORMED", tokens: 42}
	proc := NewTransformerProcessor(testLimits(), gen, arbor.NewLogger())

	job := models.NewJob(models.KindTransformer, models.InputDescriptor{
		Text:    "hello world",
		Options: map[string]string{"instruction": "uppercase"},
	}, true)

	track := tracker.New()
	result, err := proc.Run(context.Background(), job, track)
	require.NoError(t, err)
	assert.Equal(t, "TRANSFORMED", result.Payload["text"])
	assert.Equal(t, "uppercase", result.Payload["instruction"])
	assert.Equal(t, 42, result.Consumption.Tokens)

	steps := track.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "validate", steps[0].Name)
	assert.Equal(t, "transform", steps[1].Name)
	assert.Equal(t, models.StepStatusSuccess, steps[1].Status)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "uppercase")
	assert.Contains(t, gen.prompts[0], "hello world")
}

func TestTransformer_MissingInstructionFailsValidation(t *testing.T) {
	proc := NewTransformerProcessor(testLimits(), &fakeGenerator{}, arbor.NewLogger())
	job := models.NewJob(models.KindTransformer, models.InputDescriptor{Text: "hello"}, true)

	track := tracker.New()
	_, err := proc.Run(context.Background(), job, track)
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindValidation, procErr.Kind)

	steps := track.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, "validate", steps[0].Name)
	assert.Equal(t, models.StepStatusError, steps[0].Status)
}

func TestTransformer_TextOverLimitIsResourceLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxTextChars = 5
	proc := NewTransformerProcessor(limits, &fakeGenerator{}, arbor.NewLogger())
	job := models.NewJob(models.KindTransformer, models.InputDescriptor{
		Text:    "far too long for the configured ceiling",
		Options: map[string]string{"instruction": "shorten"},
	}, true)

	_, err := proc.Run(context.Background(), job, tracker.New())
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindResourceLimit, procErr.Kind)
}

func TestTransformer_GeneratorFailureIsProcessorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("api unavailable")}
	proc := NewTransformerProcessor(testLimits(), gen, arbor.NewLogger())
	job := models.NewJob(models.KindTransformer, models.InputDescriptor{
		Text:    "hello",
		Options: map[string]string{"instruction": "noop"},
	}, true)

	track := tracker.New()
	_, err := proc.Run(context.Background(), job, track)
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindProcessor, procErr.Kind)

	steps := track.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepStatusError, steps[1].Status)
}

func TestStory_GeneratesFromSource(t *testing.T) {
	gen := &fakeGenerator{response: "Once upon a time.", tokens: 120}
	proc := NewStoryProcessor(testLimits(), gen, arbor.NewLogger())
	job := models.NewJob(models.KindStory, models.InputDescriptor{
		Text:    "A dog finds a map.",
		Options: map[string]string{"style": "noir"},
	}, true)

	result, err := proc.Run(context.Background(), job, tracker.New())
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time.", result.Payload["story"])
	assert.Equal(t, "noir", result.Payload["style"])
	assert.Equal(t, 120, result.Consumption.Tokens)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Style: noir")
	assert.Contains(t, gen.prompts[0], "A dog finds a map.")
}

func TestStory_EmptyInputFailsValidation(t *testing.T) {
	proc := NewStoryProcessor(testLimits(), &fakeGenerator{}, arbor.NewLogger())
	job := models.NewJob(models.KindStory, models.InputDescriptor{Options: map[string]string{"style": "noir"}}, true)

	_, err := proc.Run(context.Background(), job, tracker.New())
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindValidation, procErr.Kind)
}

func TestImageOCR_RunsTesseract(t *testing.T) {
	path := writeTempFile(t, "scan.png", pngHeader)
	runner := &fakeRunner{stdout: []byte("Invoice 42\n\n\n\nTotal:  $10.00   \n")}
	proc := NewImageOCRProcessor(testLimits(), runner, arbor.NewLogger())

	job := models.NewJob(models.KindImageOCR, models.InputDescriptor{Path: path}, true)
	track := tracker.New()
	result, err := proc.Run(context.Background(), job, track)
	require.NoError(t, err)

	assert.Equal(t, "Invoice 42\n\nTotal:  $10.00", result.Payload["text"])
	assert.Equal(t, "image/png", result.Payload["mime_type"])
	assert.Equal(t, "eng", result.Payload["language"])
	assert.Equal(t, 1, result.Consumption.Pages)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"tesseract", path, "stdout", "-l", "eng"}, runner.calls[0])

	steps := track.Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"validate", "ocr", "post_process"},
		[]string{steps[0].Name, steps[1].Name, steps[2].Name})
}

func TestImageOCR_LanguageOption(t *testing.T) {
	path := writeTempFile(t, "scan.png", pngHeader)
	runner := &fakeRunner{stdout: []byte("hallo")}
	proc := NewImageOCRProcessor(testLimits(), runner, arbor.NewLogger())

	job := models.NewJob(models.KindImageOCR, models.InputDescriptor{
		Path:    path,
		Options: map[string]string{"language": "deu"},
	}, true)
	result, err := proc.Run(context.Background(), job, tracker.New())
	require.NoError(t, err)
	assert.Equal(t, "deu", result.Payload["language"])
	assert.Equal(t, []string{"tesseract", path, "stdout", "-l", "deu"}, runner.calls[0])
}

func TestImageOCR_NonImageRejected(t *testing.T) {
	path := writeTempFile(t, "notes.txt", []byte("plain text, not an image"))
	proc := NewImageOCRProcessor(testLimits(), &fakeRunner{}, arbor.NewLogger())

	job := models.NewJob(models.KindImageOCR, models.InputDescriptor{Path: path}, true)
	_, err := proc.Run(context.Background(), job, tracker.New())
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindValidation, procErr.Kind)
}

func TestImageOCR_TesseractFailureIsProcessorFailure(t *testing.T) {
	path := writeTempFile(t, "scan.png", pngHeader)
	runner := &fakeRunner{stderr: []byte("Error opening data file"), err: errors.New("exit status 1")}
	proc := NewImageOCRProcessor(testLimits(), runner, arbor.NewLogger())

	job := models.NewJob(models.KindImageOCR, models.InputDescriptor{Path: path}, true)
	track := tracker.New()
	_, err := proc.Run(context.Background(), job, track)
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindProcessor, procErr.Kind)

	steps := track.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "ocr", steps[1].Name)
	assert.Equal(t, models.StepStatusError, steps[1].Status)
}

func TestYoutube_FetchesOEmbedMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "https://www.youtube.com/watch?v=abc123", r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"title":"Test Video","author_name":"Channel","provider_name":"YouTube","thumbnail_url":"https://i.ytimg.com/vi/abc123/hq.jpg"}`)
	}))
	defer server.Close()

	proc := NewYoutubeProcessorWithEndpoint(server.URL, server.Client(), arbor.NewLogger())
	job := models.NewJob(models.KindYoutube, models.InputDescriptor{
		URL: "https://www.youtube.com/watch?v=abc123",
	}, true)

	track := tracker.New()
	result, err := proc.Run(context.Background(), job, track)
	require.NoError(t, err)
	assert.Equal(t, "Test Video", result.Payload["title"])
	assert.Equal(t, "Channel", result.Payload["author_name"])
	assert.Equal(t, "YouTube", result.Payload["provider_name"])

	steps := track.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "fetch_metadata", steps[1].Name)
}

func TestYoutube_NotFoundIsValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	proc := NewYoutubeProcessorWithEndpoint(server.URL, server.Client(), arbor.NewLogger())
	job := models.NewJob(models.KindYoutube, models.InputDescriptor{
		URL: "https://www.youtube.com/watch?v=missing",
	}, true)

	_, err := proc.Run(context.Background(), job, tracker.New())
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindValidation, procErr.Kind)
}

func TestYoutube_InvalidURLRejected(t *testing.T) {
	proc := NewYoutubeProcessor(arbor.NewLogger())
	job := models.NewJob(models.KindYoutube, models.InputDescriptor{URL: "not a url"}, true)

	_, err := proc.Run(context.Background(), job, tracker.New())
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindValidation, procErr.Kind)
}

func TestMetadata_ProbesFile(t *testing.T) {
	content := []byte("some file content for probing")
	path := writeTempFile(t, "sample.txt", content)
	proc := NewMetadataProcessor(testLimits(), arbor.NewLogger())

	job := models.NewJob(models.KindMetadata, models.InputDescriptor{Path: path}, true)
	track := tracker.New()
	result, err := proc.Run(context.Background(), job, track)
	require.NoError(t, err)

	assert.Equal(t, "sample.txt", result.Payload["file_name"])
	assert.Equal(t, int64(len(content)), result.Payload["file_size"])
	assert.Contains(t, result.Payload["mime_type"], "text/plain")
	assert.Len(t, result.Payload["sha256"], 64)
	assert.Equal(t, int64(len(content)), result.Consumption.Bytes)

	steps := track.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "probe", steps[1].Name)
}

func TestMetadata_FileOverLimitIsResourceLimit(t *testing.T) {
	limits := testLimits()
	limits.MaxFileBytes = 4
	path := writeTempFile(t, "big.bin", []byte("more than four bytes"))
	proc := NewMetadataProcessor(limits, arbor.NewLogger())

	job := models.NewJob(models.KindMetadata, models.InputDescriptor{Path: path}, true)
	_, err := proc.Run(context.Background(), job, tracker.New())
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindResourceLimit, procErr.Kind)
}

func TestPDF_MissingFileFailsValidation(t *testing.T) {
	proc := NewPDFProcessor(testLimits(), arbor.NewLogger())
	job := models.NewJob(models.KindPDF, models.InputDescriptor{
		Path: filepath.Join(t.TempDir(), "absent.pdf"),
	}, true)

	track := tracker.New()
	_, err := proc.Run(context.Background(), job, track)
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindValidation, procErr.Kind)

	steps := track.Steps()
	require.Len(t, steps, 1)
	assert.Equal(t, "validate", steps[0].Name)
}

func TestPDF_NonPDFContentRejected(t *testing.T) {
	path := writeTempFile(t, "fake.pdf", []byte("not a pdf at all"))
	proc := NewPDFProcessor(testLimits(), arbor.NewLogger())

	job := models.NewJob(models.KindPDF, models.InputDescriptor{Path: path}, true)
	_, err := proc.Run(context.Background(), job, tracker.New())
	require.Error(t, err)
	procErr := models.AsProcessorError(err)
	require.NotNil(t, procErr)
	assert.Equal(t, models.ErrorKindValidation, procErr.Kind)
}
