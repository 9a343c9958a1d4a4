package billing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zombor/bill-itemizer/internal/common"
)

const (
	defaultVendor      = "Unknown Vendor"
	defaultCurrency    = "USD"
	placeholderItem    = "Service/Product"
	maxVendorLength    = 100
	maxRawTextLength   = 1000
	maxLineItems       = 50
	vendorScanLines    = 5
	minItemLineLength  = 5
	invoiceStampLayout = "20060102150405"
)

var (
	vendorLabelRe = regexp.MustCompile(`^(invoice|bill|receipt|date|total|qty)`)
	vendorJunkRe  = regexp.MustCompile(`^[\d\s[:punct:]]+$`)

	// Tokens must start alphanumeric and carry a digit so words like "Number"
	// or "Billing" are not mistaken for the identifier itself.
	invoicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:invoice|inv|bill|receipt)\b[\s#:.]*(?:(?:number|no)\b\.?[\s#:.]*)?(\d[A-Z0-9\-]*|[A-Z0-9][A-Z0-9\-]*\d[A-Z0-9\-]*)`),
		regexp.MustCompile(`(?i)(?:\bnumber|\bno|#)[\s:.]*([A-Z0-9\-]*\d[A-Z0-9\-]*)`),
		regexp.MustCompile(`(?i)(?:\bref|\breference)[\s:.]*([A-Z0-9\-]*\d[A-Z0-9\-]*)`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})\b`),
		regexp.MustCompile(`\b(\d{4}[/\-]\d{1,2}[/\-]\d{1,2})\b`),
		regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{4})\b`),
	}

	itemWithQuantityRe = regexp.MustCompile(`([A-Za-z][A-Za-z\s]{2,50})\s+(\d+(?:\.\d+)?)\s+\$?([\d,]+\.?\d*)`)
	itemPriceOnlyRe    = regexp.MustCompile(`([A-Za-z][A-Za-z\s]{5,50})\s+\$?([\d,]+\.\d{2})`)

	totalRe    = regexp.MustCompile(`(?i)\b(?:grand\s*total|total|amount\s*due)[\s:]*\$?([\d,]+\.?\d*)`)
	subtotalRe = regexp.MustCompile(`(?i)\b(?:subtotal|sub\s+total)[\s:]*\$?([\d,]+\.?\d*)`)
	taxRe      = regexp.MustCompile(`(?i)\b(?:tax|vat|gst)\b[\s:]*\$?([\d,]+\.?\d*)`)
	amountRe   = regexp.MustCompile(`\$?([\d,]+\.\d{2})`)
)

// Extractor turns raw OCR text into structured bill fields using ordered
// heuristic rules. It never fails: anything it cannot find gets a default.
type Extractor struct {
	timeSource common.TimeSource
	logger     *slog.Logger
}

// NewExtractor creates an Extractor. Default invoice numbers and bill dates
// are stamped from timeSource.
func NewExtractor(timeSource common.TimeSource, logger *slog.Logger) *Extractor {
	if timeSource == nil {
		timeSource = common.SystemTime{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{timeSource: timeSource, logger: logger}
}

// ExtractPages joins per-page text with newlines and extracts from the result
func (e *Extractor) ExtractPages(pages []string) BillData {
	return e.Extract(strings.Join(pages, "\n"))
}

// Extract extracts bill fields from text
func (e *Extractor) Extract(text string) BillData {
	now := e.timeSource.Now()
	totals := extractTotals(text)

	data := BillData{
		VendorName:    extractVendorName(text),
		InvoiceNumber: extractInvoiceNumber(text, now),
		BillDate:      extractDate(text, now),
		Items:         extractLineItems(text),
		Subtotal:      totals.subtotal,
		TaxTotal:      totals.tax,
		TotalAmount:   totals.total,
		Currency:      totals.currency,
		RawText:       truncateRunes(text, maxRawTextLength),
	}

	e.logger.Debug("extracted bill fields",
		"vendor", data.VendorName,
		"invoice", data.InvoiceNumber,
		"date", data.BillDate,
		"items", len(data.Items),
		"has_total", data.TotalAmount != nil,
	)
	return data
}

func extractVendorName(text string) string {
	seen := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen++
		if seen > vendorScanLines {
			break
		}
		if utf8.RuneCountInString(line) <= 2 || vendorJunkRe.MatchString(line) {
			continue
		}
		if vendorLabelRe.MatchString(strings.ToLower(line)) {
			continue
		}
		return truncateRunes(line, maxVendorLength)
	}
	return defaultVendor
}

func extractInvoiceNumber(text string, now time.Time) string {
	for _, re := range invoicePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return "INV-" + now.Format(invoiceStampLayout)
}

func extractDate(text string, now time.Time) string {
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return now.Format(time.RFC3339)
}

func extractLineItems(text string) []LineItem {
	items := make([]LineItem, 0)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < minItemLineLength {
			continue
		}

		var description, quantity, price string
		if m := itemWithQuantityRe.FindStringSubmatch(line); m != nil {
			description, quantity, price = m[1], m[2], m[3]
		} else if m := itemPriceOnlyRe.FindStringSubmatch(line); m != nil {
			description, quantity, price = m[1], "1", m[2]
		} else {
			continue
		}

		qty, err := strconv.ParseFloat(quantity, 64)
		if err != nil {
			qty = 1
		}
		unit, _ := ParseCents(price)

		n := len(items) + 1
		items = append(items, LineItem{
			ItemID:      itemID(n),
			Description: strings.TrimSpace(description),
			Quantity:    qty,
			UnitPrice:   unit,
			TotalPrice:  unit.Times(qty),
			LineNumber:  n,
		})

		if len(items) >= maxLineItems {
			break
		}
	}

	if len(items) == 0 {
		items = append(items, LineItem{
			ItemID:      itemID(1),
			Description: placeholderItem,
			Quantity:    1,
			LineNumber:  1,
		})
	}
	return items
}

type totals struct {
	total    *Cents
	subtotal Cents
	tax      Cents
	currency string
}

func extractTotals(text string) totals {
	t := totals{currency: defaultCurrency}

	if v, ok := firstAmount(totalRe, text); ok {
		t.total = v.Ptr()
	}
	if v, ok := firstAmount(subtotalRe, text); ok {
		t.subtotal = v
	}
	if v, ok := firstAmount(taxRe, text); ok {
		t.tax = v
	}

	if t.total == nil {
		var maxAmount *Cents
		for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
			v, ok := ParseCents(m[1])
			if !ok {
				continue
			}
			if maxAmount == nil || v > *maxAmount {
				maxAmount = v.Ptr()
			}
		}
		t.total = maxAmount
	}

	switch {
	case strings.Contains(text, "$"):
		t.currency = "USD"
	case strings.Contains(text, "€"):
		t.currency = "EUR"
	case strings.Contains(text, "£"):
		t.currency = "GBP"
	}
	return t
}

func firstAmount(re *regexp.Regexp, text string) (Cents, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return ParseCents(m[1])
}

func itemID(n int) string {
	return fmt.Sprintf("ITEM-%03d", n)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
