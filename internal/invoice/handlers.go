package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/zombor/invoice-extractor/internal/tasklog"
)

// maxUploadSize bounds the accepted request body
const maxUploadSize = int64(50 << 20) // 50MB

// errorMessages are the user-facing messages for pipeline failures
var errorMessages = map[error]string{
	ErrEmptyFile:        "Uploaded file is empty.",
	ErrNoText:           "No text extracted from PDF.",
	ErrExtractionFailed: "Failed to extract invoice fields.",
}

// errorResponse is the body of every failed extraction
type errorResponse struct {
	Error   string      `json:"error"`
	TaskLog tasklog.Log `json:"task_log,omitempty"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleExtractInvoice extracts an invoice from an uploaded document. The
// document is either the "file" field of a multipart form or the raw body.
func (s *Server) handleExtractInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	data, err := readUpload(r)
	if err != nil {
		slog.Error("Error reading upload", "error", err)
		errorMsg := "Error reading file. Please try again."
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			errorMsg = "File is too large. Maximum size is 50MB."
		} else if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file provided."
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorMsg})
		return
	}

	invoice, log, err := s.service.Extract(r.Context(), data)
	if err != nil {
		msg, ok := errorMessages[err]
		if !ok {
			msg = err.Error()
		}
		resp := errorResponse{Error: msg}
		// the empty-file error carries no diagnostics
		if !errors.Is(err, ErrEmptyFile) {
			resp.TaskLog = log
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}

// readUpload returns the uploaded document bytes
func readUpload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, err
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
