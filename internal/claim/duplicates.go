package claim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zombor/bill-itemizer/internal/audit"
	"github.com/zombor/bill-itemizer/internal/billing"
)

// DetectDuplicates groups completed bills by fingerprint. Within a group the
// earliest document in input order stays primary and every later one is
// marked DUPLICATE. Fewer than two bills produce no groups.
func DetectDuplicates(documents []*Document, fingerprinter *billing.Fingerprinter) []DuplicateGroup {
	candidates := make([]*Document, 0, len(documents))
	for _, d := range documents {
		if d.IsCompletedBill() && d.Extraction != nil {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) < 2 {
		return []DuplicateGroup{}
	}

	type cluster struct {
		primary    *Document
		duplicates []*Document
	}
	byFingerprint := make(map[string]*cluster, len(candidates))
	order := make([]string, 0, len(candidates))

	for _, d := range candidates {
		d.Fingerprint = fingerprinter.Fingerprint(*d.Extraction)
		c, ok := byFingerprint[d.Fingerprint]
		if !ok {
			byFingerprint[d.Fingerprint] = &cluster{primary: d}
			order = append(order, d.Fingerprint)
			continue
		}
		d.Status = StatusDuplicate
		d.DuplicateOf = c.primary.ID
		c.duplicates = append(c.duplicates, d)
	}

	groups := make([]DuplicateGroup, 0)
	for _, fp := range order {
		c := byFingerprint[fp]
		if len(c.duplicates) == 0 {
			continue
		}
		group := DuplicateGroup{Primary: c.primary.ID, Fingerprint: fp}
		for _, d := range c.duplicates {
			group.Duplicates = append(group.Duplicates, DuplicateRef{DocumentID: d.ID, FileName: d.FileName})
		}
		groups = append(groups, group)
	}
	return groups
}

// DuplicateStage marks exact duplicate bills.
// Reads: Documents. Writes: DuplicateGroups, Document Status,
// Fingerprint, DuplicateOf.
type DuplicateStage struct {
	fingerprinter *billing.Fingerprinter
	logger        *slog.Logger
}

func NewDuplicateStage(fingerprinter *billing.Fingerprinter, logger *slog.Logger) *DuplicateStage {
	return &DuplicateStage{fingerprinter: fingerprinter, logger: logger}
}

func (s *DuplicateStage) Name() string { return "DuplicateStage" }

func (s *DuplicateStage) Completes() audit.EventType { return audit.DuplicateCheckComplete }

func (s *DuplicateStage) Run(_ context.Context, pc *Context) (Report, error) {
	pc.DuplicateGroups = DetectDuplicates(pc.Documents, s.fingerprinter)

	duplicates := 0
	for _, g := range pc.DuplicateGroups {
		duplicates += len(g.Duplicates)
		for _, ref := range g.Duplicates {
			s.logger.Info("duplicate detected", "document_id", ref.DocumentID, "duplicate_of", g.Primary)
		}
	}

	return Report{
		Message: fmt.Sprintf("Found %d duplicate group(s)", len(pc.DuplicateGroups)),
		Metadata: map[string]any{
			"groups":     len(pc.DuplicateGroups),
			"duplicates": duplicates,
		},
	}, nil
}
