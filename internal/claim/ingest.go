package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/zombor/bill-itemizer/internal/audit"
	"github.com/zombor/bill-itemizer/internal/gcs"
)

var (
	ErrMissingClaimID = errors.New("claim id is required")
	ErrMissingLinks   = errors.New("at least one document link is required")
)

const defaultContentType = "application/octet-stream"

// IngestionStage turns the claim's links into document records.
// Reads: ClaimID, Links. Writes: Documents.
type IngestionStage struct {
	logger *slog.Logger
}

func NewIngestionStage(logger *slog.Logger) *IngestionStage {
	return &IngestionStage{logger: logger}
}

func (s *IngestionStage) Name() string { return "IngestionStage" }

func (s *IngestionStage) Completes() audit.EventType { return audit.IngestionComplete }

func (s *IngestionStage) Run(_ context.Context, pc *Context) (Report, error) {
	if strings.TrimSpace(pc.ClaimID) == "" {
		return Report{}, ErrMissingClaimID
	}
	if len(pc.Links) == 0 {
		return Report{}, ErrMissingLinks
	}

	s.logger.Info("ingesting documents", "claim_id", pc.ClaimID, "links", len(pc.Links))

	documents := make([]*Document, 0, len(pc.Links))
	for i, link := range pc.Links {
		doc := &Document{
			ClaimID:    pc.ClaimID,
			SourceLink: link,
			Status:     StatusPending,
			Type:       TypeUnknown,
			IngestedAt: pc.StartedAt,
		}

		_, object, err := gcs.ParseLink(link)
		if err != nil {
			doc.FileName = path.Base(strings.TrimSpace(link))
			doc.ID = documentID(pc.ClaimID, i+1, doc.FileName)
			doc.ContentType = defaultContentType
			doc.fail(err)
			s.logger.Warn("invalid document link", "claim_id", pc.ClaimID, "link", link, "error", err)
			documents = append(documents, doc)
			continue
		}

		doc.FileName = path.Base(object)
		doc.ID = documentID(pc.ClaimID, i+1, doc.FileName)
		doc.ContentType = contentTypeFor(doc.FileName)
		s.logger.Debug("ingested document", "document_id", doc.ID, "content_type", doc.ContentType)
		documents = append(documents, doc)
	}
	pc.Documents = documents

	failed := pc.CountByStatus(StatusFailed)
	return Report{
		Message: fmt.Sprintf("Ingested %d documents", len(documents)-failed),
		Metadata: map[string]any{
			"document_count": len(documents),
			"invalid_links":  failed,
		},
	}, nil
}

func documentID(claimID string, position int, fileName string) string {
	return fmt.Sprintf("%s_doc_%d_%s", claimID, position, fileName)
}

func contentTypeFor(fileName string) string {
	ct := mime.TypeByExtension(strings.ToLower(path.Ext(fileName)))
	if ct == "" {
		return defaultContentType
	}
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return ct
}
