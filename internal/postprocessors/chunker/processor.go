// Package chunker provides a recursive, offset-preserving text splitter.
//
// Text is cut at the coarsest separator level that occurs in it (paragraph,
// line, sentence, clause, word) and pieces that are still too large are cut
// again at the next level down, finally falling back to fixed-size slices.
// Pieces are then merged into chunks of at most the configured size, and
// each chunk after the first starts overlap bytes before the end of the
// previous one.
package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// DefaultChunkSize is the default maximum number of bytes per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping bytes.
const DefaultChunkOverlap = 200

// DefaultMinChunkSize is the default minimum trimmed length of a kept chunk.
const DefaultMinChunkSize = 20

// DefaultSeparators are the separator levels from coarsest to finest.
// The empty level means fixed-size slicing.
var DefaultSeparators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{"; ", ", "},
	{" "},
	{""},
}

// Processor splits text into overlapping chunks.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize  int
	overlap    int
	minSize    int
	separators [][]string
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the maximum chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in bytes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithMinSize sets the minimum trimmed length below which chunks are dropped.
func WithMinSize(size int) Option {
	return func(p *Processor) {
		if size >= 0 {
			p.minSize = size
		}
	}
}

// WithSeparators replaces the separator levels.
func WithSeparators(levels [][]string) Option {
	return func(p *Processor) {
		if len(levels) > 0 {
			p.separators = levels
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		minSize:    DefaultMinChunkSize,
		separators: DefaultSeparators,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "recursive"
}

// ChunkSize returns the configured maximum chunk size.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int { return p.overlap }

// Process splits text into chunks. When earlier processors produced chunks,
// each one longer than the chunk size is split in place and the rest pass
// through; metadata of a split chunk is copied onto its parts.
func (p *Processor) Process(_ context.Context, text string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if chunks == nil {
		return p.Split(text), nil
	}

	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Len() <= p.chunkSize {
			out = append(out, c)
			continue
		}
		for i, sub := range p.SplitRange(text, c.StartOffset, c.EndOffset) {
			sub.Metadata = inherit(c.Metadata, i)
			out = append(out, sub)
		}
	}
	return out, nil
}

// Split cuts the whole text into chunks.
func (p *Processor) Split(text string) []domain.Chunk {
	return p.SplitRange(text, 0, len(text))
}

// SplitRange cuts text[start:end] into chunks whose offsets refer to text.
func (p *Processor) SplitRange(text string, start, end int) []domain.Chunk {
	if start < 0 || end > len(text) || start >= end {
		return nil
	}
	if strings.TrimSpace(text[start:end]) == "" {
		return nil
	}

	limit := p.chunkSize - p.overlap
	pieces := p.pieces(text, span{start, end}, 0, limit)
	spans := p.merge(text, pieces, start)

	chunks := make([]domain.Chunk, 0, len(spans))
	for _, s := range spans {
		body := text[s.start:s.end]
		if len(strings.TrimSpace(body)) < p.minSize {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Text:        body,
			StartOffset: s.start,
			EndOffset:   s.end,
			Metadata:    map[string]any{"strategy": "recursive", "index": len(chunks)},
		})
	}
	return chunks
}

type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// pieces returns contiguous spans covering s, each at most limit bytes.
func (p *Processor) pieces(text string, s span, level, limit int) []span {
	if s.len() <= limit {
		return []span{s}
	}

	for i := level; i < len(p.separators); i++ {
		seps := p.separators[i]
		if len(seps) == 1 && seps[0] == "" {
			return hardSlice(text, s, limit)
		}

		parts := splitKeep(text, s, seps)
		if len(parts) < 2 {
			continue
		}

		out := make([]span, 0, len(parts))
		for _, part := range parts {
			if part.len() <= limit {
				out = append(out, part)
				continue
			}
			out = append(out, p.pieces(text, part, i+1, limit)...)
		}
		return out
	}

	return hardSlice(text, s, limit)
}

// merge packs contiguous pieces into chunk spans of at most chunkSize bytes.
// Every span after the first starts overlap bytes before the previous end.
func (p *Processor) merge(text string, pieces []span, floor int) []span {
	if len(pieces) == 0 {
		return nil
	}

	var out []span
	cur := pieces[0]
	for _, pc := range pieces[1:] {
		if pc.end-cur.start <= p.chunkSize {
			cur.end = pc.end
			continue
		}
		out = append(out, cur)

		next := cur.end - p.overlap
		if next < floor {
			next = floor
		}
		for next < cur.end && !utf8.RuneStart(text[next]) {
			next++
		}
		cur = span{next, pc.end}
	}
	return append(out, cur)
}

// splitKeep cuts s after every occurrence of any separator. Separators stay
// attached to the part they end, so the parts concatenate back to s.
func splitKeep(text string, s span, seps []string) []span {
	var parts []span
	pos := s.start
	for pos < s.end {
		idx, width := -1, 0
		window := text[pos:s.end]
		for _, sep := range seps {
			if sep == "" {
				continue
			}
			if i := strings.Index(window, sep); i >= 0 && (idx < 0 || i < idx) {
				idx, width = i, len(sep)
			}
		}
		if idx < 0 {
			break
		}
		cut := pos + idx + width
		parts = append(parts, span{pos, cut})
		pos = cut
	}
	if pos < s.end {
		parts = append(parts, span{pos, s.end})
	}
	return parts
}

// hardSlice cuts s into fixed-size spans aligned to rune boundaries.
func hardSlice(text string, s span, limit int) []span {
	if limit <= 0 {
		limit = 1
	}
	var out []span
	pos := s.start
	for pos < s.end {
		cut := pos + limit
		if cut >= s.end {
			out = append(out, span{pos, s.end})
			break
		}
		for cut > pos && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == pos {
			cut = pos + limit
			for cut < s.end && !utf8.RuneStart(text[cut]) {
				cut++
			}
		}
		out = append(out, span{pos, cut})
		pos = cut
	}
	return out
}

func inherit(meta map[string]any, part int) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["part"] = part
	return out
}
