package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zombor/invoice-extractor/internal/tasklog"
)

// Temperature is the sampling temperature used for extraction requests.
const Temperature = 0.2

// ChatConfig configures an OpenAI-compatible chat completions endpoint.
type ChatConfig struct {
	URL     string        // full endpoint URL, e.g. https://api.groq.com/openai/v1/chat/completions
	APIKey  string        // sent as a bearer token
	Model   string        // model identifier
	Timeout time.Duration // http client timeout, default 60s
}

// ChatCompletions implements the Client interface against any
// OpenAI-compatible chat completions API (OpenAI, Groq, Ollama's /v1).
type ChatCompletions struct {
	cfg    ChatConfig
	client *http.Client
	logger *slog.Logger
}

// NewChatCompletions creates a new ChatCompletions client
func NewChatCompletions(cfg ChatConfig, logger *slog.Logger) (*ChatCompletions, error) {
	if cfg.URL == "" {
		return nil, errors.New("llm url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ChatCompletions{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// chatRequest represents the request body for the chat completions API
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Complete sends the invoice prompt for text and returns the decoded response.
func (c *ChatCompletions) Complete(ctx context.Context, text string, log tasklog.Log) *Response {
	resp, err := c.complete(ctx, text, log)
	if err != nil {
		c.logger.Error("Error calling LLM API", "task_id", log.String(tasklog.KeyTaskID), "error", err)
		log.Set(tasklog.KeyLLMError, err.Error())
		return nil
	}
	return resp
}

func (c *ChatCompletions) complete(ctx context.Context, text string, log tasklog.Log) (*Response, error) {
	prompt, err := json.Marshal(BuildInvoicePrompt(text))
	if err != nil {
		return nil, fmt.Errorf("marshaling prompt: %w", err)
	}

	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []Message{{Role: "user", Content: string(prompt)}},
		Temperature: Temperature,
	}
	log.Set(tasklog.KeyLLMPayload, reqBody)

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling LLM API: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Info("LLM API responded",
		"task_id", log.String(tasklog.KeyTaskID),
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp Response
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &chatResp, nil
}

// Close closes the client (no-op for HTTP client)
func (c *ChatCompletions) Close() error {
	return nil
}
