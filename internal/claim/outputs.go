package claim

import (
	"strings"
	"time"

	"github.com/zombor/bill-itemizer/internal/audit"
	"github.com/zombor/bill-itemizer/internal/billing"
)

// BillMetadata identifies the selected bill
type BillMetadata struct {
	BillID        string     `json:"bill_id"`
	ClaimID       string     `json:"claim_id"`
	DocumentID    string     `json:"document_id"`
	BillDate      *time.Time `json:"bill_date"`
	DueDate       *time.Time `json:"due_date"`
	VendorName    string     `json:"vendor_name"`
	VendorAddress *string    `json:"vendor_address"`
	BillNumber    string     `json:"bill_number"`
	InvoiceNumber string     `json:"invoice_number"`
}

// BillSummary holds the totals of the selected bill
type BillSummary struct {
	Subtotal      billing.Cents `json:"subtotal"`
	TaxTotal      billing.Cents `json:"tax_total"`
	DiscountTotal billing.Cents `json:"discount_total"`
	TotalAmount   billing.Cents `json:"total_amount"`
	Currency      string        `json:"currency"`
	ItemCount     int           `json:"item_count"`
}

// DuplicateFlags describes the duplicates found for the selected bill.
// It encodes as an empty object when there are none.
type DuplicateFlags struct {
	HasDuplicates  bool           `json:"has_duplicates,omitempty"`
	DuplicateCount int            `json:"duplicate_count,omitempty"`
	Duplicates     []DuplicateRef `json:"duplicates,omitempty"`
}

// FinalBill is the single authoritative bill chosen for a claim
type FinalBill struct {
	Metadata            BillMetadata       `json:"metadata"`
	Summary             BillSummary        `json:"summary"`
	Items               []billing.LineItem `json:"items"`
	SelectedReason      string             `json:"selected_reason"`
	DuplicateFlags      DuplicateFlags     `json:"duplicate_flags"`
	ExtractionTimestamp time.Time          `json:"extraction_timestamp"`
}

// BillItemList is the itemized output for the selected bill
type BillItemList struct {
	ClaimID     string             `json:"claim_id"`
	BillID      string             `json:"bill_id"`
	Items       []billing.LineItem `json:"items"`
	Summary     BillSummary        `json:"summary"`
	ExtractedAt time.Time          `json:"extracted_at"`
}

// SupportingDoc is one entry of the supporting document index
type SupportingDoc struct {
	DocumentID    string `json:"document_id"`
	FileName      string `json:"file_name"`
	GCSPath       string `json:"gcs_path"`
	ContentType   string `json:"content_type"`
	FileSizeBytes int    `json:"file_size_bytes"`
}

// SupportingDocMapping indexes the documents classified as supporting
type SupportingDocMapping struct {
	ClaimID             string          `json:"claim_id"`
	SupportingDocuments []SupportingDoc `json:"supporting_documents"`
	DocumentCount       int             `json:"document_count"`
}

// NewSupportingDocMapping creates an empty mapping for claimID
func NewSupportingDocMapping(claimID string) *SupportingDocMapping {
	return &SupportingDocMapping{ClaimID: claimID, SupportingDocuments: []SupportingDoc{}}
}

// Add appends a document and keeps the count in sync
func (m *SupportingDocMapping) Add(d *Document) {
	m.SupportingDocuments = append(m.SupportingDocuments, SupportingDoc{
		DocumentID:    d.ID,
		FileName:      d.FileName,
		GCSPath:       d.SourceLink,
		ContentType:   d.ContentType,
		FileSizeBytes: d.SizeBytes,
	})
	m.DocumentCount = len(m.SupportingDocuments)
}

// Outputs are the artifacts of a claim run
type Outputs struct {
	FinalBill        *FinalBill            `json:"final_bill,omitempty"`
	BillItemList     *BillItemList         `json:"bill_item_list,omitempty"`
	SupportingDocMap *SupportingDocMapping `json:"supporting_doc_map,omitempty"`
	AuditLogs        *audit.Log            `json:"audit_logs"`
}

// ResultStatus is the overall outcome of a claim run
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultFailed  ResultStatus = "FAILED"
)

// Result is what ProcessClaim returns for every run, successful or not
type Result struct {
	ClaimID     string       `json:"claim_id"`
	Status      ResultStatus `json:"status"`
	Outputs     *Outputs     `json:"outputs,omitempty"`
	Error       string       `json:"error,omitempty"`
	ErrorCode   string       `json:"error_code,omitempty"`
	FinalBillID string       `json:"final_bill_id,omitempty"`
	Documents   []*Document  `json:"documents,omitempty"`
}

var billDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06",
	"1/2/06",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// parseBillDate interprets the raw date text captured during extraction.
// Unrecognized text yields nil.
func parseBillDate(raw string) *time.Time {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ".", ""))
	if raw == "" {
		return nil
	}
	for _, layout := range billDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
