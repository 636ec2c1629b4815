package extraction

import "context"

// OCR recognizes text in a single page image.
type OCR interface {
	// Text returns the text found in a PNG encoded image
	Text(ctx context.Context, png []byte) (string, error)
	// Close releases the engine's resources
	Close() error
}
