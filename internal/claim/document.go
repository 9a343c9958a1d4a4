package claim

import (
	"time"

	"github.com/zombor/bill-itemizer/internal/billing"
	"github.com/zombor/bill-itemizer/internal/common"
)

// DocumentStatus is the processing state of one document
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
	StatusDuplicate  DocumentStatus = "DUPLICATE"
)

// DocumentType is the classification assigned to a document
type DocumentType string

const (
	TypeBill          DocumentType = "BILL"
	TypeSupportingDoc DocumentType = "SUPPORTING_DOC"
	TypeUnknown       DocumentType = "UNKNOWN"
)

// Document is one file referenced by a claim. Documents are never removed
// from a run; failed and duplicate documents keep their terminal status.
type Document struct {
	ID          string            `json:"document_id"`
	ClaimID     string            `json:"claim_id"`
	SourceLink  string            `json:"gcs_path"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	SizeBytes   int               `json:"file_size_bytes"`
	Status      DocumentStatus    `json:"status"`
	Type        DocumentType      `json:"document_type"`
	Extraction  *billing.BillData `json:"extracted_data,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Error       string            `json:"error_message,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
	DuplicateOf string            `json:"duplicate_of,omitempty"`
	IngestedAt  time.Time         `json:"ingested_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
}

// IsCompletedBill reports whether d is a bill that finished extraction and
// is not a duplicate
func (d *Document) IsCompletedBill() bool {
	return d.Type == TypeBill && d.Status == StatusCompleted
}

func (d *Document) fail(err error) {
	d.Status = StatusFailed
	d.Error = err.Error()
	d.ErrorCode = common.Code(err)
}

// DuplicateRef identifies a document that duplicates a group's primary
type DuplicateRef struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
}

// DuplicateGroup is a cluster of bills with identical fingerprints.
// Primary is the earliest member in input order.
type DuplicateGroup struct {
	Primary     string         `json:"primary"`
	Fingerprint string         `json:"fingerprint"`
	Duplicates  []DuplicateRef `json:"duplicates"`
}
