package claim

import (
	"time"

	"github.com/zombor/bill-itemizer/internal/audit"
)

// Context carries the state of one claim run between stages. It is owned by
// a single run and never shared across claims.
type Context struct {
	ClaimID   string
	Links     []string
	StartedAt time.Time

	// Written by IngestionStage, updated in place by later stages.
	Documents []*Document

	// Written by DuplicateStage.
	DuplicateGroups []DuplicateGroup

	// Written by SelectionStage.
	Selected         *Document
	FinalBill        *FinalBill
	BillItemList     *BillItemList
	SupportingDocMap *SupportingDocMapping

	AuditLog *audit.Log
}

// NewContext creates the context for a run of claimID over links
func NewContext(claimID string, links []string, startedAt time.Time) *Context {
	return &Context{
		ClaimID:   claimID,
		Links:     links,
		StartedAt: startedAt,
		AuditLog:  audit.NewLog(claimID),
	}
}

// Document returns the document with the given id, or nil
func (c *Context) Document(id string) *Document {
	for _, d := range c.Documents {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// CountByStatus returns how many documents have status s
func (c *Context) CountByStatus(s DocumentStatus) int {
	n := 0
	for _, d := range c.Documents {
		if d.Status == s {
			n++
		}
	}
	return n
}

// CountByType returns how many documents have type t
func (c *Context) CountByType(t DocumentType) int {
	n := 0
	for _, d := range c.Documents {
		if d.Type == t {
			n++
		}
	}
	return n
}
