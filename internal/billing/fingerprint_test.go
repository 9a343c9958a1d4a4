package billing

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-itemizer/internal/common"
)

var _ = Describe("Fingerprinter", func() {
	var (
		fingerprinter *Fingerprinter
		bill          BillData
	)

	BeforeEach(func() {
		var err error
		fingerprinter, err = NewFingerprinter("")
		Expect(err).NotTo(HaveOccurred())

		bill = BillData{
			VendorName:    "Acme Co",
			InvoiceNumber: "INV-001",
			BillDate:      "2024-03-15",
			Items: []LineItem{
				{ItemID: "ITEM-001", Description: "Widget", Quantity: 1, TotalPrice: 6000},
				{ItemID: "ITEM-002", Description: "Gadget", Quantity: 1, TotalPrice: 4000},
			},
			TotalAmount: Cents(10000).Ptr(),
			Currency:    "USD",
		}
	})

	It("produces a sha256 hex digest by default", func() {
		Expect(fingerprinter.Fingerprint(bill)).To(MatchRegexp(`^[0-9a-f]{64}$`))
	})

	It("is stable for the same bill", func() {
		Expect(fingerprinter.Fingerprint(bill)).To(Equal(fingerprinter.Fingerprint(bill)))
	})

	It("ignores case and whitespace in vendor and invoice number", func() {
		other := bill
		other.VendorName = "  ACME CO "
		other.InvoiceNumber = "inv-001\t"
		Expect(fingerprinter.Fingerprint(other)).To(Equal(fingerprinter.Fingerprint(bill)))
	})

	It("ignores item order", func() {
		other := bill
		other.Items = []LineItem{bill.Items[1], bill.Items[0]}
		Expect(fingerprinter.Fingerprint(other)).To(Equal(fingerprinter.Fingerprint(bill)))
	})

	It("ignores fields outside the identifying set", func() {
		other := bill
		other.Currency = "EUR"
		other.RawText = "something else"
		other.Subtotal = 9999
		Expect(fingerprinter.Fingerprint(other)).To(Equal(fingerprinter.Fingerprint(bill)))
	})

	It("changes when the total changes", func() {
		other := bill
		other.TotalAmount = Cents(10001).Ptr()
		Expect(fingerprinter.Fingerprint(other)).NotTo(Equal(fingerprinter.Fingerprint(bill)))
	})

	It("changes when an item total changes", func() {
		other := bill
		other.Items = []LineItem{bill.Items[0], {ItemID: "ITEM-002", TotalPrice: 3999}}
		Expect(fingerprinter.Fingerprint(other)).NotTo(Equal(fingerprinter.Fingerprint(bill)))
	})

	It("distinguishes a missing total from a zero total", func() {
		missing := bill
		missing.TotalAmount = nil
		zero := bill
		zero.TotalAmount = Cents(0).Ptr()
		Expect(fingerprinter.Fingerprint(missing)).NotTo(Equal(fingerprinter.Fingerprint(zero)))
	})

	When("sha512 is configured", func() {
		It("produces a longer digest", func() {
			f, err := NewFingerprinter("SHA512")
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Fingerprint(bill)).To(MatchRegexp(`^[0-9a-f]{128}$`))
		})
	})

	When("an unknown algorithm is configured", func() {
		It("returns an error", func() {
			_, err := NewFingerprinter("md5")
			Expect(err).To(MatchError(ContainSubstring("unsupported hash algorithm")))
		})
	})

	When("two documents carry the same bill text", func() {
		It("extracts to equal fingerprints within one run", func() {
			text := "Acme Co\nInvoice #: INV-001\nWidget x1 $100.00\nTotal: $100.00"
			extractor := NewExtractor(common.FixedTime{At: time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)}, nil)

			first := extractor.Extract(text)
			second := extractor.Extract(text)

			Expect(first.VendorName).To(Equal("Acme Co"))
			Expect(first.InvoiceNumber).To(Equal("INV-001"))
			Expect(*first.TotalAmount).To(Equal(Cents(10000)))
			Expect(fingerprinter.Fingerprint(first)).To(Equal(fingerprinter.Fingerprint(second)))
		})
	})
})
