package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/invoice-extractor/internal/tasklog"
)

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

// ValidatorConfig configures response validation.
type ValidatorConfig struct {
	// RequiredFields is the allow-list of keys kept in the result
	RequiredFields []string
	// Strict rejects results that lack any of the required fields. By default
	// partial results are returned.
	Strict bool
}

// Validator turns an LLM response into an Invoice restricted to the
// configured required fields. A Validator is immutable and safe for
// concurrent use.
type Validator struct {
	fields  []string
	allowed map[string]struct{}
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

// NewValidator creates a Validator. In strict mode a JSON schema requiring
// every field is compiled up front.
func NewValidator(cfg ValidatorConfig, logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := &Validator{
		fields:  append([]string(nil), cfg.RequiredFields...),
		allowed: make(map[string]struct{}, len(cfg.RequiredFields)),
		logger:  logger,
	}
	for _, f := range cfg.RequiredFields {
		v.allowed[f] = struct{}{}
	}

	if cfg.Strict {
		schema, err := requiredSchema(v.fields)
		if err != nil {
			return nil, err
		}
		v.schema = schema
	}
	return v, nil
}

// ParseRequiredFields splits a comma separated field list, trimming
// whitespace and dropping empty entries.
func ParseRequiredFields(list string) []string {
	var fields []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// requiredSchema compiles an object schema that requires every field
func requiredSchema(fields []string) (*jsonschema.Schema, error) {
	required := fields
	if required == nil {
		required = []string{}
	}
	b, err := json.Marshal(map[string]any{
		"type":     "object",
		"required": required,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("required.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("required.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Validate extracts the invoice from resp. It returns nil if the response is
// missing, is not valid JSON, or (in strict mode) lacks required fields.
func (v *Validator) Validate(resp *Response, log tasklog.Log) Invoice {
	if resp == nil || len(resp.Choices) == 0 {
		v.logger.Error("Invalid response from LLM API", "task_id", log.String(tasklog.KeyTaskID), "response", resp)
		return nil
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	cleaned := StripJSONCodeBlock(text)

	parsed, err := parseInvoiceJSON(cleaned)
	if err != nil {
		v.logger.Error("LLM JSON parse error", "task_id", log.String(tasklog.KeyTaskID), "error", err)
		log.Set(tasklog.KeyLLMRawResponse, cleaned)
		log.Set(tasklog.KeyLLMError, err.Error())
		return nil
	}

	filtered := v.FilterRequiredFields(parsed)

	if v.schema != nil {
		if err := v.schema.Validate(map[string]any(filtered)); err != nil {
			v.logger.Error("Missing required fields in LLM response", "task_id", log.String(tasklog.KeyTaskID), "error", err)
			log.Set(tasklog.KeyLLMRawResponse, cleaned)
			log.Set(tasklog.KeyLLMError, fmt.Sprintf("missing required fields: %v", err))
			return nil
		}
	}

	log.Set(tasklog.KeyLLMResponse, filtered)
	return filtered
}

// FilterRequiredFields returns a new Invoice holding only the allowed keys of
// parsed. Keys outside the allow-list are dropped silently.
func (v *Validator) FilterRequiredFields(parsed map[string]any) Invoice {
	filtered := make(Invoice, len(v.allowed))
	for k, val := range parsed {
		if _, ok := v.allowed[k]; ok {
			filtered[k] = val
		}
	}
	return filtered
}

// StripJSONCodeBlock removes a wrapping ```json ... ``` fence. Only the exact
// fence tokens are removed, never other leading or trailing characters.
func StripJSONCodeBlock(text string) string {
	if len(text) < len(fenceOpen)+len(fenceClose) ||
		!strings.HasPrefix(text, fenceOpen) || !strings.HasSuffix(text, fenceClose) {
		return text
	}
	inner := text[len(fenceOpen) : len(text)-len(fenceClose)]
	return strings.TrimSpace(inner)
}

// parseInvoiceJSON parses the cleaned response text as a JSON object
func parseInvoiceJSON(text string) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("response is not a JSON object")
	}
	return obj, nil
}
