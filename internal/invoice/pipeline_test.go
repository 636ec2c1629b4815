package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/extraction/extractiontest"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

// fakeOCR returns the same text for every page
type fakeOCR struct {
	text  string
	calls int
}

func (f *fakeOCR) Text(ctx context.Context, png []byte) (string, error) {
	f.calls++
	return f.text, nil
}

func (f *fakeOCR) Close() error {
	return nil
}

var _ = Describe("Pipeline", func() {
	var (
		llm      *ghttp.Server
		ocr      *fakeOCR
		ghServer *ghttp.Server
		content  string
		upload   []byte
		resp     *http.Response
		body     map[string]any
	)

	BeforeEach(func() {
		llm = ghttp.NewServer()
		ocr = &fakeOCR{text: "INVOICE INV-9 TOTAL 250.00"}
		content = "```json\n{\"invoice_number\":\"INV-9\",\"total_amount\":250,\"notes\":\"ignored\"}\n```"
	})

	JustBeforeEach(func() {
		llm.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/v1/chat/completions"),
			ghttp.VerifyHeaderKV("Authorization", "Bearer secret"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
			}),
		))

		client, err := scanning.NewChatCompletions(scanning.ChatConfig{
			URL:    llm.URL() + "/v1/chat/completions",
			APIKey: "secret",
			Model:  "test-model",
		}, nil)
		Expect(err).NotTo(HaveOccurred())
		validator, err := scanning.NewValidator(scanning.ValidatorConfig{
			RequiredFields: []string{"invoice_number", "total_amount"},
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		extractor := extraction.NewExtractor(extraction.Config{DPI: 36}, ocr, nil)
		server := NewServer(NewService(extractor, client, validator), "test")
		ghServer = ghttp.NewServer()
		ghServer.AppendHandlers(server.ServeHTTP)

		body = nil
		resp, err = http.Post(ghServer.URL()+"/extract-invoice", "application/pdf", bytes.NewReader(upload))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(raw, &body)).To(Succeed())
	})

	AfterEach(func() {
		llm.Close()
		ghServer.Close()
	})

	When("the PDF has a text layer", func() {
		BeforeEach(func() {
			upload = extractiontest.PDF("INVOICE INV-9 TOTAL 250.00")
		})

		It("returns the validated invoice", func() {
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(map[string]any{"invoice_number": "INV-9", "total_amount": float64(250)}))
		})

		It("sends the native text to the LLM without OCR", func() {
			Expect(llm.ReceivedRequests()).To(HaveLen(1))
			Expect(ocr.calls).To(BeZero())
		})
	})

	When("the PDF is scanned", func() {
		BeforeEach(func() {
			upload = extractiontest.PDF("")
		})

		It("falls back to OCR and returns the invoice", func() {
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(ocr.calls).To(Equal(1))
			Expect(body).To(HaveKeyWithValue("invoice_number", "INV-9"))
		})
	})

	When("no text can be extracted", func() {
		BeforeEach(func() {
			upload = extractiontest.PDF("")
			ocr.text = ""
		})

		It("returns the no text error without calling the LLM", func() {
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKeyWithValue("error", "No text extracted from PDF."))
			Expect(body).To(HaveKeyWithValue("task_log", HaveKeyWithValue("text_extraction_method", "none")))
			Expect(llm.ReceivedRequests()).To(BeEmpty())
		})
	})

	When("the LLM answers with prose", func() {
		BeforeEach(func() {
			upload = extractiontest.PDF("INVOICE INV-9 TOTAL 250.00")
			content = "Sorry, I cannot help with that."
		})

		It("returns the extraction error with diagnostics", func() {
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKeyWithValue("error", "Failed to extract invoice fields."))
			Expect(body).To(HaveKeyWithValue("task_log", And(
				HaveKeyWithValue("text_extraction_method", "native"),
				HaveKey("llm_payload"),
				HaveKeyWithValue("llm_raw_response", content),
			)))
		})
	})
})
