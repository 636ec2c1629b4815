package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/invoice-extractor/internal/tasklog"
)

// Gemini implements the Client interface using Google Gemini. Responses are
// reshaped into a single chat choice so validation does not depend on the
// provider.
type Gemini struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGemini creates a new Gemini client instance
func NewGemini(apiKey string, modelName string, timeout time.Duration, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(Temperature)

	return &Gemini{
		client:    client,
		model:     model,
		modelName: modelName,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Complete sends the invoice prompt for text to Gemini
func (g *Gemini) Complete(ctx context.Context, text string, log tasklog.Log) *Response {
	resp, err := g.complete(ctx, text, log)
	if err != nil {
		g.logger.Error("Error calling Gemini API", "task_id", log.String(tasklog.KeyTaskID), "error", err)
		log.Set(tasklog.KeyLLMError, err.Error())
		return nil
	}
	return resp
}

func (g *Gemini) complete(ctx context.Context, text string, log tasklog.Log) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt, err := json.Marshal(BuildInvoicePrompt(text))
	if err != nil {
		return nil, fmt.Errorf("marshaling prompt: %w", err)
	}
	log.Set(tasklog.KeyLLMPayload, chatRequest{
		Model:       g.modelName,
		Messages:    []Message{{Role: "user", Content: string(prompt)}},
		Temperature: Temperature,
	})

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			responseText.WriteString(string(t))
		}
	}

	return &Response{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: responseText.String()}}},
	}, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
