package archive

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-itemizer/internal/claim"
	"github.com/zombor/bill-itemizer/internal/common"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		clock  *steppingClock
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "runs.db")
		clock = &steppingClock{t: runStarted}
		var err error
		db, err = NewBoltDBWithDeps(dbPath, clock, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveResult", func() {
		var (
			result *claim.Result
			record *Record
			err    error
		)

		BeforeEach(func() {
			result = successfulRun("CLM-100")
		})

		JustBeforeEach(func() {
			record, err = db.SaveResult(result)
		})

		It("stamps the archive time", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(record.ArchivedAt).To(BeTemporally("==", runStarted.Add(time.Minute)))
		})

		It("round-trips the result", func() {
			saved, getErr := db.GetResult("CLM-100")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved.Result.Status).To(Equal(claim.ResultSuccess))
			Expect(saved.Result.FinalBillID).To(Equal("BILL_CLM-100_doc_1_bill.pdf"))
			Expect(saved.Result.Outputs.FinalBill.Summary.TotalAmount).To(Equal(result.Outputs.FinalBill.Summary.TotalAmount))
			Expect(saved.Result.Outputs.FinalBill.Items).To(Equal(result.Outputs.FinalBill.Items))
			Expect(saved.Result.Outputs.AuditLogs.TotalEvents()).To(Equal(7))
			Expect(saved.Result.Documents).To(HaveLen(1))
		})

		It("indexes the final bill", func() {
			found, findErr := db.FindByBillID("BILL_CLM-100_doc_1_bill.pdf")
			Expect(findErr).NotTo(HaveOccurred())
			Expect(found.Result.ClaimID).To(Equal("CLM-100"))
		})

		When("the claim is rerun and fails", func() {
			JustBeforeEach(func() {
				_, err = db.SaveResult(failedRun("CLM-100"))
			})

			It("replaces the earlier run", func() {
				Expect(err).NotTo(HaveOccurred())
				saved, getErr := db.GetResult("CLM-100")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Result.Status).To(Equal(claim.ResultFailed))
				Expect(saved.Result.ErrorCode).To(Equal(common.CodeNoValidBillFound))
			})

			It("drops the stale bill index entry", func() {
				_, findErr := db.FindByBillID("BILL_CLM-100_doc_1_bill.pdf")
				Expect(findErr).To(MatchError(common.ErrNotFound))
			})
		})

		When("the result has no claim id", func() {
			BeforeEach(func() {
				result = &claim.Result{}
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(claim.ErrMissingClaimID))
			})
		})
	})

	Describe("GetResult", func() {
		When("the claim was never archived", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetResult("nope")
				Expect(err).To(MatchError(common.ErrNotFound))
				Expect(common.Code(err)).To(Equal(common.CodeNotFound))
			})
		})
	})

	Describe("ListResults", func() {
		When("the archive is empty", func() {
			It("returns an empty slice", func() {
				records, err := db.ListResults()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(BeEmpty())
			})
		})

		When("several runs are archived", func() {
			BeforeEach(func() {
				for _, r := range []*claim.Result{successfulRun("CLM-A"), failedRun("CLM-B"), successfulRun("CLM-C")} {
					_, err := db.SaveResult(r)
					Expect(err).NotTo(HaveOccurred())
				}
			})

			It("returns them newest first", func() {
				records, err := db.ListResults()
				Expect(err).NotTo(HaveOccurred())
				var ids []string
				for _, r := range records {
					ids = append(ids, r.Result.ClaimID)
				}
				Expect(ids).To(Equal([]string{"CLM-C", "CLM-B", "CLM-A"}))
			})
		})
	})

	Describe("DeleteResult", func() {
		BeforeEach(func() {
			_, err := db.SaveResult(successfulRun("CLM-100"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes the run and its index entry", func() {
			Expect(db.DeleteResult("CLM-100")).To(Succeed())
			_, err := db.GetResult("CLM-100")
			Expect(err).To(MatchError(common.ErrNotFound))
			_, err = db.FindByBillID("BILL_CLM-100_doc_1_bill.pdf")
			Expect(err).To(MatchError(common.ErrNotFound))
		})

		It("ignores unknown claims", func() {
			Expect(db.DeleteResult("nope")).To(Succeed())
		})
	})

	Describe("reopening", func() {
		It("keeps archived runs", func() {
			_, err := db.SaveResult(successfulRun("CLM-100"))
			Expect(err).NotTo(HaveOccurred())
			Expect(db.Close()).To(Succeed())

			db, err = NewBoltDB(dbPath, nil)
			Expect(err).NotTo(HaveOccurred())
			saved, err := db.GetResult("CLM-100")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Result.ClaimID).To(Equal("CLM-100"))
		})
	})
})
