package billing

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
	"strings"
)

const (
	HashSHA256 = "sha256"
	HashSHA512 = "sha512"
)

// Fingerprinter computes a digest over the fields that identify a bill.
// Bills with equal fingerprints are treated as exact duplicates.
type Fingerprinter struct {
	newHash func() hash.Hash
}

// NewFingerprinter creates a Fingerprinter for the named hash algorithm.
// An empty name selects sha256.
func NewFingerprinter(algorithm string) (*Fingerprinter, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", HashSHA256:
		return &Fingerprinter{newHash: sha256.New}, nil
	case HashSHA512:
		return &Fingerprinter{newHash: sha512.New}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// Fingerprint returns the hex digest of the canonical form of b
func (f *Fingerprinter) Fingerprint(b BillData) string {
	h := f.newHash()
	h.Write(canonicalize(b))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize encodes the identifying fields as JSON. encoding/json writes
// map keys in sorted order, so the output does not depend on field order.
func canonicalize(b BillData) []byte {
	itemTotals := make([]string, 0, len(b.Items))
	for _, item := range b.Items {
		itemTotals = append(itemTotals, item.TotalPrice.String())
	}
	sort.Strings(itemTotals)

	total := ""
	if b.TotalAmount != nil {
		total = b.TotalAmount.String()
	}

	fields := map[string]any{
		"vendor":         strings.ToLower(strings.TrimSpace(b.VendorName)),
		"invoice_number": strings.ToLower(strings.TrimSpace(b.InvoiceNumber)),
		"bill_date":      b.BillDate,
		"total_amount":   total,
		"item_count":     len(b.Items),
		"item_totals":    itemTotals,
	}

	// Only strings, ints and string slices are marshaled here.
	data, _ := json.Marshal(fields)
	return data
}
