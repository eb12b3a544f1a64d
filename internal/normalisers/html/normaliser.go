// Package html provides a Normaliser for HTML documents. Readable text is
// extracted with headings rewritten as markdown so split ingestion can
// follow the page structure.
package html

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise converts an HTML page to markdown-flavoured text.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	title, text, err := extract(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidInput, err)
	}
	return &driven.NormaliseResult{
		Title:     title,
		Text:      text,
		MediaType: "text/markdown",
	}, nil
}

// skipped elements contribute no text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"svg": true, "template": true, "iframe": true,
}

// blocks start a new paragraph.
var blocks = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true, "tr": true,
	"table": true, "section": true, "article": true, "blockquote": true,
	"pre": true, "ul": true, "ol": true, "header": true, "footer": true,
	"main": true, "nav": true, "aside": true, "dd": true, "dt": true,
	"figure": true, "figcaption": true,
}

// extractor accumulates paragraphs while tokenizing.
type extractor struct {
	paragraphs []string
	cur        strings.Builder
	prefix     string
	firstH1    string
}

func (e *extractor) flush() {
	text := strings.Join(strings.Fields(e.cur.String()), " ")
	if text != "" {
		if e.prefix == "# " && e.firstH1 == "" {
			e.firstH1 = text
		}
		e.paragraphs = append(e.paragraphs, e.prefix+text)
	}
	e.cur.Reset()
	e.prefix = ""
}

// extract returns the page title (from <title>, else the first <h1>) and
// its text. Headings become "#" lines and list items "- " lines.
func extract(r io.Reader) (string, string, error) {
	z := html.NewTokenizer(r)
	e := &extractor{}
	var title strings.Builder
	skip := 0
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", "", err
			}
			e.flush()
			t := strings.Join(strings.Fields(title.String()), " ")
			if t == "" {
				t = e.firstH1
			}
			return t, strings.Join(e.paragraphs, "\n\n"), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipped[tag]:
				if tt == html.StartTagToken {
					skip++
				}
			case tag == "title":
				inTitle = tt == html.StartTagToken
			case headingLevel(tag) > 0:
				e.flush()
				e.prefix = strings.Repeat("#", headingLevel(tag)) + " "
			case tag == "li":
				e.flush()
				e.prefix = "- "
			case blocks[tag]:
				e.flush()
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipped[tag]:
				if skip > 0 {
					skip--
				}
			case tag == "title":
				inTitle = false
			case headingLevel(tag) > 0, tag == "li", blocks[tag]:
				e.flush()
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			if inTitle {
				title.Write(z.Text())
				continue
			}
			e.cur.Write(z.Text())
		}
	}
}

// headingLevel returns 1-6 for h1-h6 and 0 otherwise.
func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}
