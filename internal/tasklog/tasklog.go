// Package tasklog holds the per-request diagnostic record that every
// pipeline stage writes to.
package tasklog

// Log maps diagnostic keys to values. A Log belongs to exactly one request
// and must not be shared between requests.
type Log map[string]any

// Well-known keys written by the pipeline stages.
const (
	KeyTaskID         = "task_id"
	KeyMethod         = "text_extraction_method"
	KeyNativeError    = "native_error"
	KeyOCRError       = "ocr_error"
	KeyLLMPayload     = "llm_payload"
	KeyLLMError       = "llm_error"
	KeyLLMResponse    = "llm_response"
	KeyLLMRawResponse = "llm_raw_response"
)

// New returns an empty Log.
func New() Log {
	return make(Log)
}

// Set records a value. Calling Set on a nil Log is a no-op so that stages
// can run without a caller-provided log.
func (l Log) Set(key string, value any) {
	if l == nil {
		return
	}
	l[key] = value
}

// Get returns the value stored under key.
func (l Log) Get(key string) (any, bool) {
	v, ok := l[key]
	return v, ok
}

// String returns the value under key if it is a string.
func (l Log) String(key string) string {
	s, _ := l[key].(string)
	return s
}
