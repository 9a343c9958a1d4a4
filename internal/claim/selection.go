package claim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/bill-itemizer/internal/audit"
	"github.com/zombor/bill-itemizer/internal/common"
)

// SelectBill picks the authoritative bill among completed, non-duplicate
// bills: the one with the most line items, earliest first on ties.
func SelectBill(documents []*Document) (*Document, error) {
	var selected *Document
	for _, d := range documents {
		if !d.IsCompletedBill() || d.Extraction == nil {
			continue
		}
		if selected == nil || len(d.Extraction.Items) > len(selected.Extraction.Items) {
			selected = d
		}
	}
	if selected == nil {
		return nil, common.ErrNoValidBillFound
	}
	return selected, nil
}

// BuildOutputs shapes the selected document into the run's output records.
// The supporting document index covers every SUPPORTING_DOC in the claim.
func BuildOutputs(pc *Context, selected *Document) (*FinalBill, *BillItemList, *SupportingDocMapping) {
	bill := selected.Extraction
	at := pc.StartedAt.UTC()

	var flags DuplicateFlags
	for _, g := range pc.DuplicateGroups {
		if g.Primary == selected.ID {
			flags = DuplicateFlags{
				HasDuplicates:  true,
				DuplicateCount: len(g.Duplicates),
				Duplicates:     g.Duplicates,
			}
		}
	}

	summary := BillSummary{
		Subtotal:    bill.Subtotal,
		TaxTotal:    bill.TaxTotal,
		TotalAmount: *bill.TotalAmount,
		Currency:    bill.Currency,
		ItemCount:   len(bill.Items),
	}

	final := &FinalBill{
		Metadata: BillMetadata{
			BillID:        "BILL_" + selected.ID,
			ClaimID:       pc.ClaimID,
			DocumentID:    selected.ID,
			BillDate:      parseBillDate(bill.BillDate),
			VendorName:    bill.VendorName,
			BillNumber:    bill.InvoiceNumber,
			InvoiceNumber: bill.InvoiceNumber,
		},
		Summary:             summary,
		Items:               bill.Items,
		SelectedReason:      fmt.Sprintf("Selected based on highest item count (%d)", len(bill.Items)),
		DuplicateFlags:      flags,
		ExtractionTimestamp: at,
	}

	items := &BillItemList{
		ClaimID:     pc.ClaimID,
		BillID:      final.Metadata.BillID,
		Items:       bill.Items,
		Summary:     summary,
		ExtractedAt: at,
	}

	supporting := NewSupportingDocMapping(pc.ClaimID)
	for _, d := range pc.Documents {
		if d.Type == TypeSupportingDoc {
			supporting.Add(d)
		}
	}

	return final, items, supporting
}

// SelectionStage chooses the final bill and builds the outputs.
// Reads: Documents, DuplicateGroups. Writes: Selected, FinalBill,
// BillItemList, SupportingDocMap.
type SelectionStage struct {
	logger *slog.Logger
}

func NewSelectionStage(logger *slog.Logger) *SelectionStage {
	return &SelectionStage{logger: logger}
}

func (s *SelectionStage) Name() string { return "SelectionStage" }

func (s *SelectionStage) Completes() audit.EventType { return audit.FinalBillSelection }

func (s *SelectionStage) Run(_ context.Context, pc *Context) (Report, error) {
	selected, err := SelectBill(pc.Documents)
	if err != nil {
		return Report{}, err
	}

	pc.Selected = selected
	pc.FinalBill, pc.BillItemList, pc.SupportingDocMap = BuildOutputs(pc, selected)

	s.logger.Info("final bill selected",
		"claim_id", pc.ClaimID,
		"bill_id", pc.FinalBill.Metadata.BillID,
		"items", len(pc.FinalBill.Items),
		"supporting_docs", pc.SupportingDocMap.DocumentCount,
	)

	return Report{
		Message: fmt.Sprintf("Selected %s", pc.FinalBill.Metadata.BillID),
		Metadata: map[string]any{
			"bill_id":         pc.FinalBill.Metadata.BillID,
			"item_count":      len(pc.FinalBill.Items),
			"supporting_docs": pc.SupportingDocMap.DocumentCount,
		},
	}, nil
}
