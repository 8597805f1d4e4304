// Package export renders message digests for download as PDF.
package export

import "errors"

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrEmptyDigest indicates the requested bucket has no messages to export.
	ErrEmptyDigest = errors.New("export digest empty")
)
