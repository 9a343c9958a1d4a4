package billing

import (
	"fmt"

	"github.com/zombor/bill-itemizer/internal/common"
)

// LineItem is one itemized charge on a bill
type LineItem struct {
	ItemID         string  `json:"item_id"`
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      Cents   `json:"unit_price"`
	TotalPrice     Cents   `json:"total_price"`
	Category       string  `json:"category,omitempty"`
	TaxAmount      *Cents  `json:"tax_amount,omitempty"`
	DiscountAmount *Cents  `json:"discount_amount,omitempty"`
	LineNumber     int     `json:"line_number"`
}

// BillData is the structured result of field extraction.
// A nil TotalAmount means no total could be discovered in the text.
type BillData struct {
	VendorName    string     `json:"vendor_name"`
	InvoiceNumber string     `json:"invoice_number"`
	BillDate      string     `json:"bill_date"`
	Items         []LineItem `json:"items"`
	Subtotal      Cents      `json:"subtotal"`
	TaxTotal      Cents      `json:"tax_total"`
	TotalAmount   *Cents     `json:"total_amount"`
	Currency      string     `json:"currency"`
	RawText       string     `json:"raw_text,omitempty"`
}

// HasItems reports whether at least one line item is present
func (b *BillData) HasItems() bool {
	return b != nil && len(b.Items) > 0
}

// HasTotal reports whether a total amount is present
func (b *BillData) HasTotal() bool {
	return b != nil && b.TotalAmount != nil
}

// Validate checks that extracted bill data has the fields every bill needs
func Validate(b BillData) error {
	if b.Items == nil {
		return fmt.Errorf("%w: missing required field: items", common.ErrValidationFailure)
	}
	if b.TotalAmount == nil {
		return fmt.Errorf("%w: missing required field: total_amount", common.ErrValidationFailure)
	}
	if len(b.Items) == 0 {
		return fmt.Errorf("%w: bill must have at least one item", common.ErrValidationFailure)
	}
	return nil
}
