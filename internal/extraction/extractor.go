// Package extraction turns uploaded invoice documents into plain text.
//
// Text is taken from the PDF's embedded text layer when it has one. Scanned
// documents fall back to OCR: every page is rendered, binarized with Otsu's
// method and passed to an OCR engine. Failures never escape Extract; they are
// written to the task log and an empty string signals that no text could be
// obtained.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"

	"github.com/zombor/invoice-extractor/internal/tasklog"
)

// Extraction methods recorded under tasklog.KeyMethod.
const (
	MethodNative = "native"
	MethodOCR    = "ocr"
	MethodNone   = "none"
)

const previewLength = 100

// Config controls the OCR tier.
type Config struct {
	DPI      float64       // page rasterization DPI, default 300
	MaxPages int           // 0 = no limit
	Timeout  time.Duration // bounds the whole OCR tier, 0 = no limit
}

// Extractor implements the two-tier text extraction.
type Extractor struct {
	cfg    Config
	ocr    OCR
	logger *slog.Logger
}

// NewExtractor creates an Extractor that uses engine for the OCR tier.
func NewExtractor(cfg Config, engine OCR, logger *slog.Logger) *Extractor {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, ocr: engine, logger: logger}
}

// OCRPageKey is the task log key holding the preview of a page's OCR text.
// Pages are numbered from 1.
func OCRPageKey(page int) string {
	return fmt.Sprintf("ocr_page_%d", page)
}

// Extract returns the text of the uploaded document, or "" if neither the
// text layer nor OCR produced anything. The extraction method is recorded
// in log exactly once.
func (e *Extractor) Extract(ctx context.Context, data []byte, log tasklog.Log) string {
	contentType := sniffUpload(data)

	if isImageType(contentType) {
		log.Set(tasklog.KeyNativeError, fmt.Sprintf("upload is %s, no text layer", contentType))
		e.logger.Info("skipping native text extraction", "content_type", contentType)
	} else {
		text, err := e.nativeText(data)
		if err != nil {
			e.logger.Error("Failed to open PDF", "error", err)
			log.Set(tasklog.KeyNativeError, fmt.Sprintf("Failed to open PDF: %v", err))
		} else if strings.TrimSpace(text) != "" {
			log.Set(tasklog.KeyMethod, MethodNative)
			return text
		}
	}

	text, err := e.ocrText(ctx, data, contentType, log)
	if err != nil {
		e.logger.Error("OCR extraction failed", "error", err)
		log.Set(tasklog.KeyOCRError, fmt.Sprintf("OCR extraction failed: %v", err))
	} else if strings.TrimSpace(text) != "" {
		log.Set(tasklog.KeyMethod, MethodOCR)
		return text
	}

	log.Set(tasklog.KeyMethod, MethodNone)
	return ""
}

// nativeText concatenates the text layer of every page in page order
func (e *Extractor) nativeText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("reading text of page %d: %w", i+1, err)
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// ocrText runs the OCR engine over every page and concatenates the results in
// page order. A preview of each page is recorded as it is recognized.
func (e *Extractor) ocrText(ctx context.Context, data []byte, contentType string, log tasklog.Log) (string, error) {
	if e.ocr == nil {
		return "", errors.New("no OCR engine configured")
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	pages, err := e.openPages(data, contentType)
	if err != nil {
		return "", err
	}
	defer pages.close()

	count := pages.count
	if e.cfg.MaxPages > 0 && count > e.cfg.MaxPages {
		e.logger.Warn("limiting OCR pages", "pages", count, "max_pages", e.cfg.MaxPages)
		count = e.cfg.MaxPages
	}

	var b strings.Builder
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}

		img, err := pages.render(i)
		if err != nil {
			return "", fmt.Errorf("rendering page %d: %w", i+1, err)
		}
		processed, err := encodePNG(preprocessPage(img))
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}

		text, err := e.ocr.Text(ctx, processed)
		if err != nil {
			return "", fmt.Errorf("recognizing page %d: %w", i+1, err)
		}
		b.WriteString(text)
		log.Set(OCRPageKey(i+1), preview(text))
	}
	return b.String(), nil
}

type pageSource struct {
	count  int
	render func(page int) (image.Image, error)
	close  func()
}

// openPages yields the page images for the OCR tier: every page of a PDF,
// or the upload itself when it is a single raster image.
func (e *Extractor) openPages(data []byte, contentType string) (*pageSource, error) {
	if isImageType(contentType) {
		img, err := decodeImage(data, contentType)
		if err != nil {
			return nil, err
		}
		return &pageSource{
			count:  1,
			render: func(int) (image.Image, error) { return img, nil },
			close:  func() {},
		}, nil
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	return &pageSource{
		count: doc.NumPage(),
		render: func(page int) (image.Image, error) {
			return doc.ImageDPI(page, e.cfg.DPI)
		},
		close: func() { doc.Close() },
	}, nil
}

// preview returns the first previewLength characters of text
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength])
}
