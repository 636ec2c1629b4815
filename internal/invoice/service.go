package invoice

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/invoice-extractor/internal/scanning"
	"github.com/zombor/invoice-extractor/internal/tasklog"
)

var (
	// ErrEmptyFile is returned for uploads without content
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrNoText is returned when neither the text layer nor OCR produced text
	ErrNoText = errors.New("no text extracted")
	// ErrExtractionFailed is returned when the LLM call or validation failed
	ErrExtractionFailed = errors.New("failed to extract invoice fields")
)

// TextExtractor turns document bytes into plain text. An empty result means
// no text could be extracted.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, log tasklog.Log) string
}

// ResponseValidator turns an LLM response into an invoice, or nil
type ResponseValidator interface {
	Validate(resp *scanning.Response, log tasklog.Log) scanning.Invoice
}

// IDGenerator generates task IDs
type IDGenerator interface {
	Generate() string
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Service runs the extraction pipeline for a single upload
type Service struct {
	extractor   TextExtractor
	client      scanning.Client
	validator   ResponseValidator
	idGenerator IDGenerator
	logger      *slog.Logger
}

// NewService creates a new Service with a UUID task ID generator
func NewService(extractor TextExtractor, client scanning.Client, validator ResponseValidator) *Service {
	return NewServiceWithDeps(extractor, client, validator, uuidGenerator{}, nil)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(extractor TextExtractor, client scanning.Client, validator ResponseValidator, idGen IDGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractor:   extractor,
		client:      client,
		validator:   validator,
		idGenerator: idGen,
		logger:      logger,
	}
}

// Extract runs text extraction, the LLM call and validation over data. The
// task log is returned on every path for diagnostics.
func (s *Service) Extract(ctx context.Context, data []byte) (scanning.Invoice, tasklog.Log, error) {
	log := tasklog.New()
	taskID := s.idGenerator.Generate()
	log.Set(tasklog.KeyTaskID, taskID)

	if len(data) == 0 {
		return nil, log, ErrEmptyFile
	}

	text := s.extractor.Extract(ctx, data, log)
	s.logger.Info("Extracted text",
		"task_id", taskID,
		"method", log.String(tasklog.KeyMethod),
		"chars", len(text),
	)
	if strings.TrimSpace(text) == "" {
		return nil, log, ErrNoText
	}

	resp := s.client.Complete(ctx, text, log)
	invoice := s.validator.Validate(resp, log)
	if len(invoice) == 0 {
		s.logger.Error("Failed to extract invoice fields",
			"task_id", taskID,
			"llm_error", log.String(tasklog.KeyLLMError),
		)
		return nil, log, ErrExtractionFailed
	}

	s.logger.Info("Extracted invoice", "task_id", taskID, "fields", len(invoice))
	return invoice, log, nil
}
