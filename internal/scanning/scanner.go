package scanning

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/zombor/bill-itemizer/internal/common"
)

const (
	DefaultMaxSyncBytes int64 = 20 * 1024 * 1024
	DefaultMaxPages           = 100
)

// Transcriber reads the text out of a rendered page image
type Transcriber interface {
	// Transcribe returns the text found in a PNG image
	Transcribe(ctx context.Context, png []byte) (string, error)
	// Close releases resources held by the backend
	Close() error
}

// Config holds text extraction limits
type Config struct {
	MaxSyncBytes int64 // larger payloads are rejected
	MaxPages     int   // PDF pages past this are ignored
}

type format int

const (
	formatImage format = iota + 1
	formatPDF
)

var supportedExtensions = map[string]format{
	".png":  formatImage,
	".jpg":  formatImage,
	".jpeg": formatImage,
	".tiff": formatImage,
	".tif":  formatImage,
	".bmp":  formatImage,
	".heic": formatImage,
	".heif": formatImage,
	".pdf":  formatPDF,
}

var mimeExtensions = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/tiff":      ".tiff",
	"image/bmp":       ".bmp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"application/pdf": ".pdf",
}

// pdfDocument is the subset of a rendered PDF the extractor needs
type pdfDocument interface {
	NumPage() int
	Text(page int) (string, error)
	Image(page int) (*image.RGBA, error)
	Close() error
}

type pdfOpener func(data []byte) (pdfDocument, error)

func openPDF(data []byte) (pdfDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Extractor turns document bytes into per-page text. PDF pages with an
// embedded text layer are read directly; everything else is rendered and
// sent to the Transcriber.
type Extractor struct {
	transcriber Transcriber
	cfg         Config
	openPDF     pdfOpener
	logger      *slog.Logger
}

// NewExtractor creates an Extractor. transcriber may be nil, in which case
// only PDFs with a text layer can be read.
func NewExtractor(transcriber Transcriber, cfg Config, logger *slog.Logger) *Extractor {
	return newExtractorWithDeps(transcriber, cfg, openPDF, logger)
}

func newExtractorWithDeps(transcriber Transcriber, cfg Config, opener pdfOpener, logger *slog.Logger) *Extractor {
	if cfg.MaxSyncBytes <= 0 {
		cfg.MaxSyncBytes = DefaultMaxSyncBytes
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{transcriber: transcriber, cfg: cfg, openPDF: opener, logger: logger}
}

// Supported reports whether fileName (or mimeType when the name has no
// extension) is a format the extractor accepts
func Supported(fileName, mimeType string) bool {
	_, ok := detectFormat(fileName, mimeType)
	return ok
}

func detectFormat(fileName, mimeType string) (format, bool) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]
	}
	f, ok := supportedExtensions[ext]
	return f, ok
}

// Extract returns the text of each page of the document
func (e *Extractor) Extract(ctx context.Context, data []byte, fileName, mimeType string) ([]string, error) {
	f, ok := detectFormat(fileName, mimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedFormat, fileName)
	}
	if int64(len(data)) > e.cfg.MaxSyncBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", common.ErrPayloadTooLarge, fileName, len(data), e.cfg.MaxSyncBytes)
	}

	if f == formatPDF {
		return e.extractPDF(ctx, data, fileName)
	}
	return e.extractImage(ctx, data, fileName, mimeType)
}

func (e *Extractor) extractImage(ctx context.Context, data []byte, fileName, mimeType string) ([]string, error) {
	png, err := toPNG(data, mimeTypeFor(fileName, mimeType))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrExtractionFailure, fileName, err)
	}

	text, err := e.transcribe(ctx, png)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrExtractionFailure, fileName, err)
	}
	return []string{text}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, fileName string) ([]string, error) {
	doc, err := e.openPDF(data)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF %s: %w", common.ErrExtractionFailure, fileName, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount > e.cfg.MaxPages {
		e.logger.Warn("PDF exceeds page limit, truncating", "file", fileName, "pages", pageCount, "limit", e.cfg.MaxPages)
		pageCount = e.cfg.MaxPages
	}

	pages := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := doc.Text(i)
		if err == nil && strings.TrimSpace(text) != "" {
			pages = append(pages, cleanTranscript(text))
			continue
		}

		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("%w: rendering page %d of %s: %w", common.ErrExtractionFailure, i+1, fileName, err)
		}
		png, err := encodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding page %d of %s: %w", common.ErrExtractionFailure, i+1, fileName, err)
		}
		text, err = e.transcribe(ctx, png)
		if err != nil {
			return nil, fmt.Errorf("%w: transcribing page %d of %s: %w", common.ErrExtractionFailure, i+1, fileName, err)
		}
		pages = append(pages, text)
	}

	e.logger.Debug("extracted PDF text", "file", fileName, "pages", len(pages))
	return pages, nil
}

func (e *Extractor) transcribe(ctx context.Context, png []byte) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("no transcription backend configured")
	}
	text, err := e.transcriber.Transcribe(ctx, png)
	if err != nil {
		return "", err
	}
	return cleanTranscript(text), nil
}

func mimeTypeFor(fileName, mimeType string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".png":
		return "image/png"
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
