// Package eml provides a Normaliser for RFC 822 email messages. The
// subject becomes the title; the plain text body is preferred over HTML.
package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/normalisers/html"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxNesting bounds multipart recursion.
const maxNesting = 8

// Normaliser handles EML (email) documents.
type Normaliser struct {
	html *html.Normaliser
}

// New creates a new EML normaliser.
func New() *Normaliser {
	return &Normaliser{html: html.New()}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"message/rfc822"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise renders the message as a header block followed by its body.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: parse message: %v", domain.ErrInvalidInput, err)
	}

	subject := decodeHeader(msg.Header.Get("Subject"))
	body, err := n.body(ctx, textproto.MIMEHeader(msg.Header), msg.Body, 0)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, h := range []string{"From", "To", "Date", "Subject"} {
		if v := decodeHeader(msg.Header.Get(h)); v != "" {
			fmt.Fprintf(&content, "%s: %s\n", h, v)
		}
	}
	content.WriteString("\n")
	content.WriteString(body)

	return &driven.NormaliseResult{
		Title:     subject,
		Text:      strings.TrimSpace(content.String()),
		MediaType: "text/plain",
	}, nil
}

// decodeHeader decodes RFC 2047 encoded words, keeping the original on
// failure.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// body extracts the readable text of one MIME entity.
func (n *Normaliser) body(ctx context.Context, header textproto.MIMEHeader, r io.Reader, depth int) (string, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxNesting {
			return "", nil
		}
		return n.multipart(ctx, r, params["boundary"], mediaType, depth)
	}

	data, err := io.ReadAll(decodeTransfer(header.Get("Content-Transfer-Encoding"), r))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err)
	}
	switch mediaType {
	case "text/html":
		result, err := n.html.Normalise(ctx, &domain.RawDocument{MIMEType: mediaType, Content: data})
		if err != nil {
			return "", err
		}
		return result.Text, nil
	case "text/plain":
		return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
	default:
		return "", nil
	}
}

// multipart prefers text/plain alternatives and concatenates mixed parts.
// Attachments are skipped.
func (n *Normaliser) multipart(ctx context.Context, r io.Reader, boundary, mediaType string, depth int) (string, error) {
	if boundary == "" {
		return "", nil
	}
	mr := multipart.NewReader(r, boundary)

	var plain, rich []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Keep what was read before a truncated part.
			break
		}
		if disp, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disp == "attachment" {
			continue
		}
		text, err := n.body(ctx, part.Header, part, depth+1)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if partType == "text/html" {
			rich = append(rich, text)
		} else {
			plain = append(plain, text)
		}
	}

	if mediaType == "multipart/alternative" {
		if len(plain) > 0 {
			return plain[0], nil
		}
		if len(rich) > 0 {
			return rich[0], nil
		}
		return "", nil
	}
	if len(plain) == 0 {
		plain = rich
	}
	return strings.Join(plain, "\n\n"), nil
}

// decodeTransfer undoes base64 and quoted-printable transfer encodings.
// multipart.Reader already decodes quoted-printable parts.
func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// newlineStripper drops CR and LF bytes so base64 bodies split across
// lines decode.
type newlineStripper struct {
	r io.Reader
}

func (s newlineStripper) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	out := p[:0]
	for _, b := range p[:n] {
		if b != '\r' && b != '\n' {
			out = append(out, b)
		}
	}
	return len(out), err
}
