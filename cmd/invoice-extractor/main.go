package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-extractor/internal/extraction"
	"github.com/zombor/invoice-extractor/internal/extraction/tesseract"
	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// envFallback returns value, or the first non-empty environment variable
// among names when value is empty.
func envFallback(value string, names ...string) string {
	if value != "" {
		return value
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-extractor")
	var (
		port           = fs.IntLong("port", 8000, "HTTP server port")
		provider       = fs.StringLong("provider", "openai", "LLM provider: 'openai' (any OpenAI-compatible endpoint) or 'gemini'")
		llmURL         = fs.StringLong("llm-url", "", "Chat completions endpoint URL (or set GROQ_API_URL env var)")
		llmKey         = fs.StringLong("llm-key", "", "LLM API key (or set GROQ_API_KEY env var)")
		llmModel       = fs.StringLong("llm-model", "", "LLM model name (or set LLMMODEL env var)")
		llmTimeout     = fs.DurationLong("llm-timeout", 60*time.Second, "Timeout for a single LLM call")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		requiredFields = fs.StringLong("required-fields", "", "Comma separated list of fields kept in the result (or set REQUIRED_FIELDS env var)")
		strictRequired = fs.BoolLong("strict-required", "Reject results missing any required field")
		ocrDPI         = fs.IntLong("ocr-dpi", 300, "Rasterization DPI for OCR")
		ocrMaxPages    = fs.IntLong("ocr-max-pages", 0, "Maximum pages to OCR (0 = all)")
		ocrTimeout     = fs.DurationLong("ocr-timeout", 2*time.Minute, "Timeout for OCR of a whole document")
		tessdata       = fs.StringLong("tessdata-prefix", "", "Tesseract tessdata directory (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	fields := scanning.ParseRequiredFields(envFallback(*requiredFields, "REQUIRED_FIELDS"))
	if len(fields) == 0 {
		slog.Warn("No required fields configured; every result will be empty")
	}

	// Initialize LLM client based on provider
	var client scanning.Client
	var err error
	switch *provider {
	case "openai":
		cfg := scanning.ChatConfig{
			URL:     envFallback(*llmURL, "GROQ_API_URL"),
			APIKey:  envFallback(*llmKey, "GROQ_API_KEY"),
			Model:   envFallback(*llmModel, "LLMMODEL"),
			Timeout: *llmTimeout,
		}
		slog.Info("Initializing chat completions client...", "url", cfg.URL, "model", cfg.Model)
		client, err = scanning.NewChatCompletions(cfg, nil)
		if err != nil {
			slog.Error("Failed to initialize LLM client", "error", err)
			os.Exit(1)
		}
	case "gemini":
		apiKey := envFallback(*geminiKey, "GEMINI_API_KEY")
		model := envFallback(*llmModel, "LLMMODEL")
		slog.Info("Initializing Gemini client...", "model", model)
		client, err = scanning.NewGemini(apiKey, model, *llmTimeout, nil)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid provider", "provider", *provider, "valid", "openai or gemini")
		os.Exit(1)
	}
	defer client.Close()

	validator, err := scanning.NewValidator(scanning.ValidatorConfig{
		RequiredFields: fields,
		Strict:         *strictRequired,
	}, nil)
	if err != nil {
		slog.Error("Failed to initialize validator", "error", err)
		os.Exit(1)
	}

	engine := tesseract.New(tesseract.Config{TessdataPrefix: *tessdata})
	defer engine.Close()

	extractor := extraction.NewExtractor(extraction.Config{
		DPI:      float64(*ocrDPI),
		MaxPages: *ocrMaxPages,
		Timeout:  *ocrTimeout,
	}, engine, nil)

	service := invoice.NewService(extractor, client, validator)
	server := invoice.NewServer(service, version)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "required_fields", fields)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
