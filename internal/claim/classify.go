package claim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/bill-itemizer/internal/audit"
)

// Classifier assigns a document type to a processed document
type Classifier interface {
	Classify(d *Document) DocumentType
}

// RuleClassifier labels completed documents with items and a total as
// bills. Other completed documents are supporting documents.
//
// TODO: replace with a trained classifier once labelled claim documents are available.
type RuleClassifier struct{}

func (RuleClassifier) Classify(d *Document) DocumentType {
	if d.Status != StatusCompleted {
		return TypeUnknown
	}
	if d.Extraction.HasItems() && d.Extraction.HasTotal() {
		return TypeBill
	}
	return TypeSupportingDoc
}

// ClassificationStage applies a Classifier to every document.
// Reads: Documents. Writes: Document Type.
type ClassificationStage struct {
	classifier Classifier
	logger     *slog.Logger
}

func NewClassificationStage(classifier Classifier, logger *slog.Logger) *ClassificationStage {
	if classifier == nil {
		classifier = RuleClassifier{}
	}
	return &ClassificationStage{classifier: classifier, logger: logger}
}

func (s *ClassificationStage) Name() string { return "ClassificationStage" }

func (s *ClassificationStage) Completes() audit.EventType { return audit.ClassificationComplete }

func (s *ClassificationStage) Run(_ context.Context, pc *Context) (Report, error) {
	for _, doc := range pc.Documents {
		doc.Type = s.classifier.Classify(doc)
		s.logger.Debug("classified document", "document_id", doc.ID, "type", doc.Type)
	}

	bills := pc.CountByType(TypeBill)
	supporting := pc.CountByType(TypeSupportingDoc)
	s.logger.Info("classification complete", "claim_id", pc.ClaimID, "bills", bills, "supporting_docs", supporting)

	return Report{
		Message: fmt.Sprintf("Classified %d bills and %d supporting documents", bills, supporting),
		Metadata: map[string]any{
			"bills":           bills,
			"supporting_docs": supporting,
			"unknown":         pc.CountByType(TypeUnknown),
		},
	}, nil
}
