package extraction

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-extractor/internal/extraction/extractiontest"
	"github.com/zombor/invoice-extractor/internal/tasklog"
)

// mockOCR is a mock implementation of OCR
type mockOCR struct {
	pages []string
	err   error
	block bool
	calls int
}

func (m *mockOCR) Text(ctx context.Context, png []byte) (string, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.err != nil {
		return "", m.err
	}
	if len(png) == 0 {
		return "", errors.New("empty image")
	}
	if m.calls > len(m.pages) {
		return "", nil
	}
	return m.pages[m.calls-1], nil
}

func (m *mockOCR) Close() error {
	return nil
}

var _ = Describe("Extractor", func() {
	var (
		ocr       *mockOCR
		extractor *Extractor
		cfg       Config
		ctx       context.Context
		data      []byte
		log       tasklog.Log
		text      string
	)

	BeforeEach(func() {
		ocr = &mockOCR{}
		cfg = Config{DPI: 36}
		ctx = context.Background()
		log = tasklog.New()
	})

	JustBeforeEach(func() {
		extractor = NewExtractor(cfg, ocr, nil)
		text = extractor.Extract(ctx, data, log)
	})

	When("the PDF has a text layer", func() {
		BeforeEach(func() {
			data = extractiontest.PDF("INVOICE INV-1 TOTAL 100.00", "PAGE TWO")
		})

		It("returns the native text in page order", func() {
			Expect(text).To(ContainSubstring("INVOICE INV-1 TOTAL 100.00"))
			Expect(text).To(ContainSubstring("PAGE TWO"))
			Expect(strings.Index(text, "INV-1")).To(BeNumerically("<", strings.Index(text, "PAGE TWO")))
		})

		It("records the native method", func() {
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodNative))
		})

		It("does not run OCR", func() {
			Expect(ocr.calls).To(BeZero())
			Expect(log).NotTo(HaveKey(OCRPageKey(1)))
		})
	})

	When("the PDF has no text layer", func() {
		BeforeEach(func() {
			data = extractiontest.PDF("", "")
			ocr.pages = []string{"Invoice No: 42\n", "Total: 99.00\n"}
		})

		It("returns the OCR text in page order", func() {
			Expect(text).To(Equal("Invoice No: 42\nTotal: 99.00\n"))
		})

		It("records the ocr method", func() {
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodOCR))
		})

		It("records a preview per page", func() {
			Expect(log).To(HaveKeyWithValue(OCRPageKey(1), "Invoice No: 42\n"))
			Expect(log).To(HaveKeyWithValue(OCRPageKey(2), "Total: 99.00\n"))
		})

		It("does not record a native error", func() {
			Expect(log).NotTo(HaveKey(tasklog.KeyNativeError))
		})
	})

	When("a page's OCR text is long", func() {
		BeforeEach(func() {
			data = extractiontest.PDF("")
			ocr.pages = []string{strings.Repeat("x", 250)}
		})

		It("truncates the preview to 100 characters", func() {
			Expect(log.String(OCRPageKey(1))).To(HaveLen(100))
		})

		It("returns the full text", func() {
			Expect(text).To(HaveLen(250))
		})
	})

	When("MaxPages is set", func() {
		BeforeEach(func() {
			cfg.MaxPages = 2
			data = extractiontest.PDF("", "", "")
			ocr.pages = []string{"one", "two", "three"}
		})

		It("only recognizes the first pages", func() {
			Expect(ocr.calls).To(Equal(2))
			Expect(text).To(Equal("onetwo"))
			Expect(log).NotTo(HaveKey(OCRPageKey(3)))
		})
	})

	When("OCR yields only whitespace", func() {
		BeforeEach(func() {
			data = extractiontest.PDF("")
			ocr.pages = []string{"  \n\t"}
		})

		It("returns an empty string", func() {
			Expect(text).To(BeEmpty())
		})

		It("records the none method", func() {
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodNone))
		})
	})

	When("the OCR engine fails", func() {
		BeforeEach(func() {
			data = extractiontest.PDF("")
			ocr.err = errors.New("tesseract crashed")
		})

		It("returns an empty string", func() {
			Expect(text).To(BeEmpty())
		})

		It("records the OCR error", func() {
			Expect(log.String(tasklog.KeyOCRError)).To(ContainSubstring("tesseract crashed"))
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodNone))
		})
	})

	When("the upload is not a document", func() {
		BeforeEach(func() {
			data = []byte("this is not a pdf")
		})

		It("returns an empty string", func() {
			Expect(text).To(BeEmpty())
		})

		It("records both errors", func() {
			Expect(log).To(HaveKey(tasklog.KeyNativeError))
			Expect(log).To(HaveKey(tasklog.KeyOCRError))
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodNone))
		})

		It("does not call the OCR engine", func() {
			Expect(ocr.calls).To(BeZero())
		})
	})

	When("the upload is an image", func() {
		BeforeEach(func() {
			data = extractiontest.PNG(40, 20)
			ocr.pages = []string{"RECEIPT 12.00"}
		})

		It("recognizes the image as a single page", func() {
			Expect(text).To(Equal("RECEIPT 12.00"))
			Expect(ocr.calls).To(Equal(1))
			Expect(log).To(HaveKeyWithValue(OCRPageKey(1), "RECEIPT 12.00"))
		})

		It("records why the text layer was skipped", func() {
			Expect(log.String(tasklog.KeyNativeError)).To(ContainSubstring("image/png"))
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodOCR))
		})
	})

	When("the context is cancelled", func() {
		BeforeEach(func() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithCancel(context.Background())
			cancel()
			data = extractiontest.PDF("")
			ocr.pages = []string{"never"}
		})

		It("stops before recognizing pages", func() {
			Expect(ocr.calls).To(BeZero())
			Expect(log.String(tasklog.KeyOCRError)).To(ContainSubstring(context.Canceled.Error()))
			Expect(text).To(BeEmpty())
		})
	})

	When("OCR exceeds its timeout", func() {
		BeforeEach(func() {
			cfg.Timeout = 50 * time.Millisecond
			data = extractiontest.PDF("")
			ocr.block = true
		})

		It("records the deadline and returns an empty string", func() {
			Expect(text).To(BeEmpty())
			Expect(log.String(tasklog.KeyOCRError)).To(ContainSubstring(context.DeadlineExceeded.Error()))
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodNone))
		})
	})

	When("no OCR engine is configured", func() {
		BeforeEach(func() {
			data = extractiontest.PDF("")
		})

		JustBeforeEach(func() {
			log = tasklog.New()
			text = NewExtractor(cfg, nil, nil).Extract(ctx, data, log)
		})

		It("records the none method", func() {
			Expect(text).To(BeEmpty())
			Expect(log.String(tasklog.KeyOCRError)).To(ContainSubstring("no OCR engine"))
			Expect(log.String(tasklog.KeyMethod)).To(Equal(MethodNone))
		})
	})
})

var _ = Describe("preview", func() {
	It("keeps short text intact", func() {
		Expect(preview("abc")).To(Equal("abc"))
	})

	It("counts characters, not bytes", func() {
		Expect([]rune(preview(strings.Repeat("é", 150)))).To(HaveLen(100))
	})
})
