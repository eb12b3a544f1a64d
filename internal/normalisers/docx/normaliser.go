// Package docx provides a Normaliser for Word documents. Paragraphs styled
// as headings become markdown headings.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxPartSize bounds how much of one archive member is read.
const maxPartSize = 64 << 20

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise extracts the paragraphs of word/document.xml and the title
// from docProps/core.xml.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a docx archive: %v", domain.ErrInvalidInput, err)
	}

	body, err := readPart(reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	text, err := parseDocument(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse document.xml: %v", domain.ErrInvalidInput, err)
	}

	return &driven.NormaliseResult{
		Title:     extractTitle(reader),
		Text:      text,
		MediaType: "text/markdown",
	}, nil
}

// readPart returns the named archive member, or nil when it is absent.
func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", domain.ErrInvalidInput, name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidInput, name, err)
		}
		return data, nil
	}
	return nil, nil
}

// parseDocument streams the document XML, emitting one block per
// paragraph including those inside tables.
func parseDocument(content []byte) (string, error) {
	if len(content) == 0 {
		return "", nil
	}
	dec := xml.NewDecoder(bytes.NewReader(content))

	var (
		blocks []string
		para   strings.Builder
		style  string
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if text != "" {
					blocks = append(blocks, headingPrefix(style)+text)
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingPrefix maps Word's built-in heading styles to markdown.
func headingPrefix(style string) string {
	if style == "Title" {
		return "# "
	}
	level, ok := strings.CutPrefix(style, "Heading")
	if !ok || len(level) != 1 || level[0] < '1' || level[0] > '6' {
		return ""
	}
	return strings.Repeat("#", int(level[0]-'0')) + " "
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

// extractTitle reads the title property, returning "" when absent.
func extractTitle(reader *zip.Reader) string {
	content, err := readPart(reader, "docProps/core.xml")
	if err != nil || content == nil {
		return ""
	}
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
