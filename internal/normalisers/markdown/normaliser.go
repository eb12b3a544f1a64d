// Package markdown provides a Normaliser for Markdown documents. The body
// is kept as markdown so headings drive structural splitting; YAML front
// matter is removed and supplies the title.
package markdown

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise strips front matter and returns the markdown body.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")
	meta, body := splitFrontMatter(text)

	title := meta.Title
	if title == "" {
		title = firstHeading(body)
	}

	return &driven.NormaliseResult{
		Title:     title,
		Text:      body,
		MediaType: "text/markdown",
	}, nil
}

// frontMatter holds the front matter keys we read.
type frontMatter struct {
	Title string `yaml:"title"`
}

// splitFrontMatter separates a leading "---" YAML block from the body.
// Malformed front matter is left in the body.
func splitFrontMatter(text string) (frontMatter, string) {
	var meta frontMatter
	if !strings.HasPrefix(text, "---\n") {
		return meta, text
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, text
	}
	after := rest[end+len("\n---"):]
	if after != "" && after[0] != '\n' {
		return meta, text
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), &meta); err != nil {
		logger.Debug("Ignoring malformed front matter: %v", err)
		return frontMatter{}, text
	}
	meta.Title = strings.TrimSpace(meta.Title)
	return meta, strings.TrimLeft(after, "\n")
}

// firstHeading returns the text of the first level one ATX heading.
func firstHeading(body string) string {
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if !inFence && strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimRight(trimmed[2:], "# "))
		}
	}
	return ""
}
