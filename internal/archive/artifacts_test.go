package archive

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-itemizer/internal/claim"
)

var _ = Describe("ArtifactWriter", func() {
	var (
		basePath string
		writer   *ArtifactWriter
		outputs  *claim.Outputs
		claimID  string
		paths    []string
		err      error
	)

	BeforeEach(func() {
		basePath = GinkgoT().TempDir()
		storage, storageErr := NewLocalStorage(basePath)
		Expect(storageErr).NotTo(HaveOccurred())
		writer, err = NewArtifactWriter(storage, nil)
		Expect(err).NotTo(HaveOccurred())
		claimID = "CLM-100"
	})

	JustBeforeEach(func() {
		paths, err = writer.Write(claimID, outputs)
	})

	When("the run succeeded", func() {
		BeforeEach(func() {
			outputs = successfulRun(claimID).Outputs
		})

		It("writes all four artifacts under the claim directory", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(Equal([]string{
				filepath.Join(basePath, "CLM-100", FinalBillArtifact),
				filepath.Join(basePath, "CLM-100", BillItemListArtifact),
				filepath.Join(basePath, "CLM-100", SupportingDocMapArtifact),
				filepath.Join(basePath, "CLM-100", AuditLogsArtifact),
			}))
		})

		It("writes the final bill as JSON", func() {
			data, readErr := os.ReadFile(filepath.Join(basePath, "CLM-100", FinalBillArtifact))
			Expect(readErr).NotTo(HaveOccurred())

			var bill claim.FinalBill
			Expect(json.Unmarshal(data, &bill)).To(Succeed())
			Expect(bill.Metadata.BillID).To(Equal("BILL_CLM-100_doc_1_bill.pdf"))
			Expect(bill.Items).To(HaveLen(2))
		})
	})

	When("the run failed", func() {
		BeforeEach(func() {
			outputs = failedRun(claimID).Outputs
		})

		It("writes only the audit log", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(Equal([]string{filepath.Join(basePath, "CLM-100", AuditLogsArtifact)}))
		})
	})

	When("the claim id is not a safe directory name", func() {
		BeforeEach(func() {
			claimID = "../CLM/100"
			outputs = failedRun(claimID).Outputs
		})

		It("keeps the artifacts inside the output directory", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(paths).To(HaveLen(1))
			Expect(paths[0]).To(HavePrefix(basePath))
		})
	})

	When("an artifact breaks its contract", func() {
		BeforeEach(func() {
			outputs = successfulRun(claimID).Outputs
			outputs.FinalBill.SelectedReason = ""
		})

		It("returns a schema error and writes nothing", func() {
			Expect(err).To(MatchError(ContainSubstring("final_bill.json does not match schema")))
			_, statErr := os.Stat(filepath.Join(basePath, "CLM-100"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})
	})

	When("there are no outputs", func() {
		BeforeEach(func() {
			outputs = nil
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("ArtifactWriter.WriteItemsXLSX", func() {
	It("stores the spreadsheet next to the JSON artifacts", func() {
		basePath := GinkgoT().TempDir()
		storage, err := NewLocalStorage(basePath)
		Expect(err).NotTo(HaveOccurred())
		writer, err := NewArtifactWriter(storage, nil)
		Expect(err).NotTo(HaveOccurred())

		p, err := writer.WriteItemsXLSX("CLM-100", successfulRun("CLM-100").Outputs.BillItemList)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(filepath.Join(basePath, "CLM-100", ItemsXLSXArtifact)))
		Expect(p).To(BeAnExistingFile())
	})
})

var _ = Describe("ArtifactWriter.Validate", func() {
	var writer *ArtifactWriter

	BeforeEach(func() {
		var err error
		writer, err = NewArtifactWriter(nil, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	DescribeTable("bill item lists",
		func(doc string, valid bool) {
			err := writer.Validate(BillItemListArtifact, []byte(doc))
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(HaveOccurred())
			}
		},
		Entry("complete", `{
			"claim_id": "C", "bill_id": "BILL_C_doc_1_a.pdf", "extracted_at": "2024-01-01T00:00:00Z",
			"items": [{"item_id": "ITEM-001", "description": "Visit", "quantity": 1, "unit_price": "10.00", "total_price": "10.00", "line_number": 1}],
			"summary": {"subtotal": "10.00", "tax_total": "0.00", "discount_total": "0.00", "total_amount": "10.00", "currency": "USD", "item_count": 1}
		}`, true),
		Entry("numeric amount", `{
			"claim_id": "C", "bill_id": "BILL_C_doc_1_a.pdf", "extracted_at": "2024-01-01T00:00:00Z",
			"items": [{"item_id": "ITEM-001", "description": "Visit", "quantity": 1, "unit_price": 10, "total_price": "10.00", "line_number": 1}],
			"summary": {"subtotal": "10.00", "tax_total": "0.00", "discount_total": "0.00", "total_amount": "10.00", "currency": "USD", "item_count": 1}
		}`, false),
		Entry("no items", `{
			"claim_id": "C", "bill_id": "BILL_C_doc_1_a.pdf", "extracted_at": "2024-01-01T00:00:00Z",
			"items": [],
			"summary": {"subtotal": "10.00", "tax_total": "0.00", "discount_total": "0.00", "total_amount": "10.00", "currency": "USD", "item_count": 0}
		}`, false),
		Entry("bad bill id", `{
			"claim_id": "C", "bill_id": "C_doc_1", "extracted_at": "2024-01-01T00:00:00Z",
			"items": [{"item_id": "ITEM-001", "description": "Visit", "quantity": 1, "unit_price": "10.00", "total_price": "10.00", "line_number": 1}],
			"summary": {"subtotal": "10.00", "tax_total": "0.00", "discount_total": "0.00", "total_amount": "10.00", "currency": "USD", "item_count": 1}
		}`, false),
		Entry("not json", `{`, false),
	)

	It("rejects unknown artifacts", func() {
		Expect(writer.Validate("other.json", []byte(`{}`))).To(MatchError(ContainSubstring("no schema")))
	})
})
