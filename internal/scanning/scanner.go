package scanning

import (
	"context"

	"github.com/zombor/invoice-extractor/internal/tasklog"
)

// Response is the chat completion payload returned by the LLM service.
// Only the fields the validator reads are decoded.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice is a single completion alternative
type Choice struct {
	Message Message `json:"message"`
}

// Message is a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Invoice maps required field names to the values extracted by the LLM.
type Invoice map[string]any

// Client defines the interface for LLM-backed invoice extraction
type Client interface {
	// Complete sends the extraction prompt for text and returns the raw
	// response, or nil if the call failed. Failures are recorded in log.
	Complete(ctx context.Context, text string, log tasklog.Log) *Response
	// Close closes the client and releases resources
	Close() error
}
