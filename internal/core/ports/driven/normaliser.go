package driven

import (
	"context"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// Normaliser extracts plain text from one family of file formats.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	// An entry of the form "text/*" matches any subtype.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers return 50-89, fallbacks 1-9.
	Priority() int

	// Normalise extracts the text of a raw document. Headings are kept as
	// markdown "#" lines so structural splitting still works.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult is the text extracted from a raw document.
type NormaliseResult struct {
	// Title is the document's own title (HTML <title>, front matter,
	// email subject), or a name derived from the URI. May be empty.
	Title string

	// Text is the extracted content.
	Text string

	// MediaType describes Text, usually "text/markdown" or "text/plain".
	MediaType string
}
