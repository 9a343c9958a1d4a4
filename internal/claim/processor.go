package claim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/bill-itemizer/internal/audit"
	"github.com/zombor/bill-itemizer/internal/billing"
	"github.com/zombor/bill-itemizer/internal/common"
)

// Config holds processor configuration
type Config struct {
	Workers       int    // concurrent document extractions per claim
	HashAlgorithm string // sha256 or sha512
}

// Processor runs the claim pipeline. It holds no per-claim state, so
// ProcessClaim may be called concurrently for different claims.
type Processor struct {
	pipeline *Pipeline
	clock    common.TimeSource
	logger   *slog.Logger
}

// NewProcessor creates a Processor with the rule classifier, random event
// ids and the system clock
func NewProcessor(cfg Config, resolver LinkResolver, text TextExtractor, logger *slog.Logger) (*Processor, error) {
	return NewProcessorWithDeps(cfg, resolver, text, RuleClassifier{}, common.UUIDGenerator{}, common.SystemTime{}, logger)
}

// NewProcessorWithDeps creates a Processor with custom dependencies for testing
func NewProcessorWithDeps(cfg Config, resolver LinkResolver, text TextExtractor, classifier Classifier, ids common.IDGenerator, clock common.TimeSource, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fingerprinter, err := billing.NewFingerprinter(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("creating fingerprinter: %w", err)
	}

	trail := audit.NewTrailWithDeps(ids, clock, logger)
	pipeline := NewPipeline(trail, logger,
		NewIngestionStage(logger),
		NewExtractionStage(resolver, text, clock, cfg.Workers, logger),
		NewClassificationStage(classifier, logger),
		NewDuplicateStage(fingerprinter, logger),
		NewSelectionStage(logger),
	)

	return &Processor{pipeline: pipeline, clock: clock, logger: logger}, nil
}

// ProcessClaim runs the full pipeline for one claim. It never panics on
// stage failures: they come back as a FAILED result carrying the audit log.
func (p *Processor) ProcessClaim(ctx context.Context, claimID string, links []string) *Result {
	p.logger.Info("processing claim", "claim_id", claimID, "links", len(links))

	pc := NewContext(claimID, links, p.clock.Now().UTC())
	if err := p.pipeline.Run(ctx, pc); err != nil {
		p.logger.Error("Claim processing failed", "claim_id", claimID, "error", err)
		return &Result{
			ClaimID:   claimID,
			Status:    ResultFailed,
			Outputs:   &Outputs{AuditLogs: pc.AuditLog},
			Error:     err.Error(),
			ErrorCode: common.Code(err),
			Documents: pc.Documents,
		}
	}

	p.logger.Info("claim processed", "claim_id", claimID, "bill_id", pc.FinalBill.Metadata.BillID)
	return &Result{
		ClaimID: claimID,
		Status:  ResultSuccess,
		Outputs: &Outputs{
			FinalBill:        pc.FinalBill,
			BillItemList:     pc.BillItemList,
			SupportingDocMap: pc.SupportingDocMap,
			AuditLogs:        pc.AuditLog,
		},
		FinalBillID: pc.FinalBill.Metadata.BillID,
		Documents:   pc.Documents,
	}
}
