package archive

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/bill-itemizer/internal/billing"
	"github.com/zombor/bill-itemizer/internal/claim"
)

// ItemsSheet is the worksheet holding the exported line items
const ItemsSheet = "Items"

var itemHeaders = []string{
	"Item ID",
	"Line",
	"Description",
	"Quantity",
	"Unit Price",
	"Total Price",
	"Category",
}

// ExportItemsXLSX renders an item list as a spreadsheet: one row per line
// item followed by the bill totals.
func ExportItemsXLSX(list *claim.BillItemList) ([]byte, error) {
	if list == nil {
		return nil, fmt.Errorf("xlsx export: no item list")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ItemsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}

	w := &sheetWriter{f: f, sheet: ItemsSheet, money: money, row: 1}
	for i, h := range itemHeaders {
		w.write(i+1, h)
	}
	w.row++

	for _, item := range list.Items {
		w.write(1, item.ItemID)
		w.write(2, item.LineNumber)
		w.write(3, item.Description)
		w.write(4, item.Quantity)
		w.amount(5, item.UnitPrice)
		w.amount(6, item.TotalPrice)
		w.write(7, item.Category)
		w.row++
	}

	w.row++
	totals := []struct {
		label string
		value billing.Cents
	}{
		{"Subtotal", list.Summary.Subtotal},
		{"Tax", list.Summary.TaxTotal},
		{"Discount", list.Summary.DiscountTotal},
		{"Total (" + list.Summary.Currency + ")", list.Summary.TotalAmount},
	}
	for _, t := range totals {
		w.write(5, t.label)
		w.amount(6, t.value)
		w.row++
	}
	if w.err != nil {
		return nil, w.err
	}

	widths := []struct {
		from, to string
		width    float64
	}{
		{"A", "B", 10},
		{"C", "C", 48},
		{"D", "D", 10},
		{"E", "F", 16},
		{"G", "G", 20},
	}
	for _, cw := range widths {
		if err := f.SetColWidth(ItemsSheet, cw.from, cw.to, cw.width); err != nil {
			return nil, fmt.Errorf("xlsx column width %s: %w", cw.from, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter fills one row at a time and keeps the first cell error.
// Later writes are skipped once an error is recorded.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	money int
	row   int
	err   error
}

func (w *sheetWriter) write(col int, v any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, w.row)
	if err == nil {
		err = w.f.SetCellValue(w.sheet, cell, v)
	}
	if err != nil {
		w.err = fmt.Errorf("xlsx cell %d,%d: %w", col, w.row, err)
	}
}

func (w *sheetWriter) amount(col int, c billing.Cents) {
	w.write(col, float64(c)/100)
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, w.row)
	if err == nil {
		err = w.f.SetCellStyle(w.sheet, cell, cell, w.money)
	}
	if err != nil {
		w.err = fmt.Errorf("xlsx style %d,%d: %w", col, w.row, err)
	}
}
