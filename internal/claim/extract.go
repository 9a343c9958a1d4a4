package claim

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/bill-itemizer/internal/audit"
	"github.com/zombor/bill-itemizer/internal/billing"
	"github.com/zombor/bill-itemizer/internal/common"
)

// LinkResolver fetches the bytes behind a storage link
type LinkResolver interface {
	Resolve(ctx context.Context, link string) ([]byte, error)
}

// TextExtractor turns document bytes into text, one string per page
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileName, mimeType string) ([]string, error)
}

const defaultWorkers = 4

// ExtractionStage downloads, transcribes and parses every pending document.
// Documents are processed concurrently and a failure only marks that
// document FAILED.
// Reads: Documents, StartedAt. Writes: Document Status, SizeBytes,
// Extraction, Error, ProcessedAt.
type ExtractionStage struct {
	resolver LinkResolver
	text     TextExtractor
	clock    common.TimeSource
	workers  int
	logger   *slog.Logger
}

func NewExtractionStage(resolver LinkResolver, text TextExtractor, clock common.TimeSource, workers int, logger *slog.Logger) *ExtractionStage {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &ExtractionStage{
		resolver: resolver,
		text:     text,
		clock:    clock,
		workers:  workers,
		logger:   logger,
	}
}

func (s *ExtractionStage) Name() string { return "ExtractionStage" }

func (s *ExtractionStage) Completes() audit.EventType { return audit.OCRComplete }

func (s *ExtractionStage) Run(ctx context.Context, pc *Context) (Report, error) {
	// Defaults stamped by the extractor come from the run start so identical
	// documents in one claim extract identically.
	fields := billing.NewExtractor(common.FixedTime{At: pc.StartedAt}, s.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, doc := range pc.Documents {
		if doc.Status != StatusPending {
			continue
		}
		g.Go(func() error {
			s.process(gctx, fields, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("extracting documents: %w", err)
	}

	completed := pc.CountByStatus(StatusCompleted)
	failed := pc.CountByStatus(StatusFailed)
	return Report{
		Message: fmt.Sprintf("Extracted %d of %d documents", completed, len(pc.Documents)),
		Metadata: map[string]any{
			"completed": completed,
			"failed":    failed,
		},
	}, nil
}

// process handles one document. It only touches doc.
func (s *ExtractionStage) process(ctx context.Context, fields *billing.Extractor, doc *Document) {
	doc.Status = StatusProcessing
	defer func() {
		now := s.clock.Now()
		doc.ProcessedAt = &now
	}()

	data, err := s.resolver.Resolve(ctx, doc.SourceLink)
	if err != nil {
		s.logger.Error("Failed to resolve document", "document_id", doc.ID, "link", doc.SourceLink, "error", err)
		doc.fail(fmt.Errorf("resolving document: %w", err))
		return
	}
	doc.SizeBytes = len(data)

	pages, err := s.text.Extract(ctx, data, doc.FileName, doc.ContentType)
	if err != nil {
		s.logger.Error("Failed to extract text",
			"document_id", doc.ID,
			"content_type", doc.ContentType,
			"file_size", len(data),
			"error", err,
		)
		doc.fail(fmt.Errorf("extracting text: %w", err))
		return
	}

	bill := fields.ExtractPages(pages)
	if err := billing.Validate(bill); err != nil {
		s.logger.Warn("Invalid bill structure", "document_id", doc.ID, "error", err)
		doc.fail(err)
		return
	}

	doc.Extraction = &bill
	doc.Status = StatusCompleted
	s.logger.Info("extraction completed", "document_id", doc.ID, "items", len(bill.Items))
}
