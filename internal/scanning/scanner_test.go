package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/zombor/bill-itemizer/internal/common"
)

type mockTranscriber struct {
	text   string
	err    error
	images [][]byte
}

func (m *mockTranscriber) Transcribe(_ context.Context, png []byte) (string, error) {
	m.images = append(m.images, png)
	return m.text, m.err
}

func (m *mockTranscriber) Close() error { return nil }

type mockPDF struct {
	pages  []string
	closed bool
}

func (m *mockPDF) NumPage() int { return len(m.pages) }

func (m *mockPDF) Text(page int) (string, error) { return m.pages[page], nil }

func (m *mockPDF) Image(int) (*image.RGBA, error) { return testImage(), nil }

func (m *mockPDF) Close() error {
	m.closed = true
	return nil
}

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	return img
}

func encodeWith(encode func(*bytes.Buffer, image.Image) error) []byte {
	var buf bytes.Buffer
	Expect(encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Extractor", func() {
	var (
		transcriber *mockTranscriber
		pdf         *mockPDF
		openErr     error
		cfg         Config
		extractor   *Extractor
		data        []byte
		fileName    string
		mimeType    string
		pages       []string
		err         error
	)

	BeforeEach(func() {
		transcriber = &mockTranscriber{text: "Acme Co\nTotal: $10.00"}
		pdf = &mockPDF{}
		openErr = nil
		cfg = Config{}
		data = encodeWith(func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) })
		fileName = "bill.png"
		mimeType = "image/png"
	})

	JustBeforeEach(func() {
		opener := func([]byte) (pdfDocument, error) {
			if openErr != nil {
				return nil, openErr
			}
			return pdf, nil
		}
		extractor = newExtractorWithDeps(transcriber, cfg, opener, nil)
		pages, err = extractor.Extract(context.Background(), data, fileName, mimeType)
	})

	When("given a PNG", func() {
		It("transcribes it as a single page", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(Equal([]string{"Acme Co\nTotal: $10.00"}))
		})

		It("passes the PNG through unchanged", func() {
			Expect(transcriber.images).To(HaveLen(1))
			Expect(transcriber.images[0]).To(Equal(data))
		})
	})

	When("given a BMP", func() {
		BeforeEach(func() {
			data = encodeWith(func(b *bytes.Buffer, img image.Image) error { return bmp.Encode(b, img) })
			fileName = "scan.bmp"
			mimeType = "image/bmp"
		})

		It("converts it to PNG before transcribing", func() {
			Expect(err).NotTo(HaveOccurred())
			_, format, decodeErr := image.Decode(bytes.NewReader(transcriber.images[0]))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("given a TIFF", func() {
		BeforeEach(func() {
			data = encodeWith(func(b *bytes.Buffer, img image.Image) error { return tiff.Encode(b, img, nil) })
			fileName = "scan.TIF"
			mimeType = "image/tiff"
		})

		It("converts it to PNG before transcribing", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(transcriber.images).To(HaveLen(1))
			Expect(pages).To(HaveLen(1))
		})
	})

	When("the image bytes are corrupt", func() {
		BeforeEach(func() {
			data = []byte("not an image")
			fileName = "bill.jpg"
			mimeType = "image/jpeg"
		})

		It("returns ErrExtractionFailure", func() {
			Expect(err).To(MatchError(common.ErrExtractionFailure))
		})
	})

	When("the extension is not supported", func() {
		BeforeEach(func() {
			fileName = "notes.docx"
			mimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		})

		It("returns ErrUnsupportedFormat", func() {
			Expect(err).To(MatchError(common.ErrUnsupportedFormat))
			Expect(transcriber.images).To(BeEmpty())
		})
	})

	When("the file name has no extension but the mime type is known", func() {
		BeforeEach(func() {
			fileName = "upload"
		})

		It("uses the mime type", func() {
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the payload exceeds the synchronous ceiling", func() {
		BeforeEach(func() {
			cfg.MaxSyncBytes = 8
		})

		It("returns ErrPayloadTooLarge", func() {
			Expect(err).To(MatchError(common.ErrPayloadTooLarge))
			Expect(transcriber.images).To(BeEmpty())
		})
	})

	When("the transcription backend fails", func() {
		BeforeEach(func() {
			transcriber.err = errors.New("quota exceeded")
		})

		It("returns ErrExtractionFailure", func() {
			Expect(err).To(MatchError(common.ErrExtractionFailure))
			Expect(err.Error()).To(ContainSubstring("quota exceeded"))
		})
	})

	Context("PDF documents", func() {
		BeforeEach(func() {
			data = []byte("%PDF-1.7")
			fileName = "bill.pdf"
			mimeType = "application/pdf"
		})

		When("every page has a text layer", func() {
			BeforeEach(func() {
				pdf.pages = []string{"Acme Co\r\nInvoice 12", "Total: $20.00  "}
			})

			It("reads the text without transcribing", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(pages).To(Equal([]string{"Acme Co\nInvoice 12", "Total: $20.00"}))
				Expect(transcriber.images).To(BeEmpty())
			})

			It("closes the document", func() {
				Expect(pdf.closed).To(BeTrue())
			})
		})

		When("a page is scanned", func() {
			BeforeEach(func() {
				pdf.pages = []string{"Acme Co", "   "}
				transcriber.text = "Widget 1 $5.00"
			})

			It("transcribes only that page", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(pages).To(Equal([]string{"Acme Co", "Widget 1 $5.00"}))
				Expect(transcriber.images).To(HaveLen(1))
			})
		})

		When("the PDF has more pages than allowed", func() {
			BeforeEach(func() {
				cfg.MaxPages = 2
				pdf.pages = []string{"one", "two", "three"}
			})

			It("stops at the page limit", func() {
				Expect(pages).To(Equal([]string{"one", "two"}))
			})
		})

		When("the PDF cannot be opened", func() {
			BeforeEach(func() {
				openErr = errors.New("no objects found")
			})

			It("returns ErrExtractionFailure", func() {
				Expect(err).To(MatchError(common.ErrExtractionFailure))
			})
		})
	})
})

var _ = Describe("Extractor without a transcriber", func() {
	It("fails on images", func() {
		extractor := NewExtractor(nil, Config{}, nil)
		_, err := extractor.Extract(context.Background(),
			encodeWith(func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) }),
			"bill.png", "image/png")
		Expect(err).To(MatchError(common.ErrExtractionFailure))
	})
})

var _ = Describe("Supported", func() {
	DescribeTable("formats",
		func(fileName, mimeType string, expected bool) {
			Expect(Supported(fileName, mimeType)).To(Equal(expected))
		},
		Entry("pdf", "a.pdf", "", true),
		Entry("upper case jpeg", "A.JPEG", "", true),
		Entry("heic", "photo.heic", "", true),
		Entry("tif", "scan.tif", "", true),
		Entry("gif", "anim.gif", "image/gif", false),
		Entry("text", "notes.txt", "text/plain", false),
		Entry("no extension pdf mime", "upload", "application/pdf", true),
	)
})

var _ = Describe("toPNG", func() {
	It("converts BMP scans to PNG", func() {
		out, err := toPNG(encodeWith(func(b *bytes.Buffer, img image.Image) error { return bmp.Encode(b, img) }), "image/bmp")
		Expect(err).NotTo(HaveOccurred())

		_, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("has no decoder for GIF images", func() {
		_, err := toPNG([]byte("GIF89a\x04\x00\x04\x00\x80\x00\x00"), "image/gif")
		Expect(err).To(MatchError(image.ErrFormat))
	})
})
