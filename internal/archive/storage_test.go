package archive

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		basePath string
		storage  *LocalStorage
	)

	BeforeEach(func() {
		basePath = filepath.Join(GinkgoT().TempDir(), "artifacts")
		var err error
		storage, err = NewLocalStorage(basePath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the base directory", func() {
		info, err := os.Stat(basePath)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	Describe("Save", func() {
		It("creates parent directories and returns the full path", func() {
			path, err := storage.Save("CLM-1/final_bill.json", []byte(`{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal(filepath.Join(basePath, "CLM-1", "final_bill.json")))

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(`{}`))
		})

		It("refuses paths outside the base directory", func() {
			_, err := storage.Save("../escape.json", []byte(`{}`))
			Expect(err).To(MatchError(ContainSubstring("invalid artifact path")))
		})
	})

	Describe("Get", func() {
		It("reads back saved data", func() {
			_, err := storage.Save("a/b.json", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get("a/b.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("data")))
		})

		It("fails for missing files", func() {
			_, err := storage.Get("missing.json")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes the file", func() {
			_, err := storage.Save("a.json", []byte("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("a.json")).To(Succeed())
			_, err = storage.Get("a.json")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("safeName", func() {
	DescribeTable("claim ids",
		func(input, expected string) {
			Expect(safeName(input)).To(Equal(expected))
		},
		Entry("plain id", "CLM-100", "CLM-100"),
		Entry("slashes", "claims/2024/1", "claims_2024_1"),
		Entry("traversal", "../../etc", "_._etc"),
		Entry("spaces", " claim 7 ", "claim_7"),
		Entry("empty", "", "claim"),
		Entry("only dots", "...", "claim"),
	)
})
