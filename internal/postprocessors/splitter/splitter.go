// Package splitter provides structural splitting of long documents into
// node-sized sections.
//
// Strategies are tried in a fixed order and the first accepted one wins:
//
//  1. table of contents: entries listed under a "Contents" heading are
//     located in the body and the text is sliced between them
//  2. page markers such as "--- Page 3 ---" or "[Page 3]"
//  3. markdown headers, H1 first, then H2, then H3
//  4. horizontal rules
//
// Every strategy must produce at least two segments. Header and rule
// strategies must also stay under a maximum segment count and keep the
// average segment length above a minimum. When nothing is accepted the
// text is returned as a single section.
package splitter

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// Strategy names the rule that produced a split.
type Strategy string

// Splitting strategies in priority order.
const (
	StrategyTOC     Strategy = "toc"
	StrategyPages   Strategy = "pages"
	StrategyHeaders Strategy = "headers"
	StrategyRules   Strategy = "rules"
	StrategyNone    Strategy = "none"
)

// DefaultMaxSegments caps header and rule splits.
const DefaultMaxSegments = 50

// DefaultMinAverageLength is the minimum mean trimmed segment length for
// header and rule splits.
const DefaultMinAverageLength = 100

const maxTitleLength = 80

var (
	tocHeadingRe = regexp.MustCompile(`(?im)^[ \t]*(?:#+[ \t]*)?(?:table of contents|contents)[ \t]*:?[ \t]*$`)
	tocEntryRe   = regexp.MustCompile(`^[ \t]*(?:[-*][ \t]+)?(\S.*?)(?:[ \t]*\.{2,}[ \t]*|[ \t]+)(\d{1,4})[ \t]*$`)
	pageMarkerRe = regexp.MustCompile(`(?im)^[ \t]*(?:-{2,}[ \t]*)?\[?page[ \t]+(\d+)(?:[ \t]+of[ \t]+\d+)?\]?(?:[ \t]*-{2,})?[ \t]*$`)
	ruleRe       = regexp.MustCompile(`(?m)^[ \t]*(?:(?:-[ \t]*){3,}|(?:\*[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	fenceRe      = regexp.MustCompile("(?m)^[ \t]*```")
	headerRes    = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^#[ \t]+(\S.*?)[ \t#]*$`),
		regexp.MustCompile(`(?m)^##[ \t]+(\S.*?)[ \t#]*$`),
		regexp.MustCompile(`(?m)^###[ \t]+(\S.*?)[ \t#]*$`),
	}
)

// Splitter detects document structure.
// It implements the PostProcessor interface.
type Splitter struct {
	maxSegments int
	minAvgLen   int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithMaxSegments sets the segment cap for header and rule strategies.
func WithMaxSegments(n int) Option {
	return func(s *Splitter) {
		if n > 1 {
			s.maxSegments = n
		}
	}
}

// WithMinAverageLength sets the minimum average segment length for header
// and rule strategies.
func WithMinAverageLength(n int) Option {
	return func(s *Splitter) {
		if n >= 0 {
			s.minAvgLen = n
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		maxSegments: DefaultMaxSegments,
		minAvgLen:   DefaultMinAverageLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the processor name.
func (s *Splitter) Name() string {
	return "structural"
}

// Process returns the structural sections of text. Input chunks are ignored.
func (s *Splitter) Process(_ context.Context, text string, _ []domain.Chunk) ([]domain.Chunk, error) {
	chunks, _ := s.Split(text)
	return chunks, nil
}

// Split returns the sections of text and the strategy that produced them.
// Blank text yields no sections.
func (s *Splitter) Split(text string) ([]domain.Chunk, Strategy) {
	if strings.TrimSpace(text) == "" {
		return nil, StrategyNone
	}

	if segs := splitTOC(text); len(segs) >= 2 {
		return finish(text, segs, StrategyTOC), StrategyTOC
	}
	if segs := splitPages(text); len(segs) >= 2 {
		return finish(text, segs, StrategyPages), StrategyPages
	}
	if segs, ok := splitHeaders(text); ok && s.accept(segs) {
		return finish(text, segs, StrategyHeaders), StrategyHeaders
	}
	if segs := splitRules(text); s.accept(segs) {
		return finish(text, segs, StrategyRules), StrategyRules
	}

	start, end := trimSpan(text, 0, len(text))
	whole := []segment{{start: start, end: end}}
	return finish(text, whole, StrategyNone), StrategyNone
}

func (s *Splitter) accept(segs []segment) bool {
	if len(segs) < 2 || len(segs) > s.maxSegments {
		return false
	}
	total := 0
	for _, seg := range segs {
		total += seg.end - seg.start
	}
	return total/len(segs) >= s.minAvgLen
}

type segment struct {
	start, end int
	title      string
	page       int
}

func finish(text string, segs []segment, strategy Strategy) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(segs))
	for i, seg := range segs {
		title := seg.title
		if title == "" {
			title = firstLine(text[seg.start:seg.end])
		}
		meta := map[string]any{
			"title":    title,
			"strategy": string(strategy),
			"index":    i,
		}
		if seg.page > 0 {
			meta["page"] = seg.page
		}
		chunks = append(chunks, domain.Chunk{
			Text:        text[seg.start:seg.end],
			StartOffset: seg.start,
			EndOffset:   seg.end,
			Metadata:    meta,
		})
	}
	return chunks
}

// slice turns ordered boundaries into trimmed, non-empty segments. Each
// segment runs from its boundary to the next one or to end.
func slice(text string, bounds []segment, end int) []segment {
	var out []segment
	for i, b := range bounds {
		stop := end
		if i+1 < len(bounds) {
			stop = bounds[i+1].start
		}
		st, en := trimSpan(text, b.start, stop)
		if st >= en {
			continue
		}
		out = append(out, segment{start: st, end: en, title: b.title, page: b.page})
	}
	return out
}

func splitTOC(text string) []segment {
	loc := tocHeadingRe.FindStringIndex(text)
	if loc == nil {
		return nil
	}

	type entry struct {
		title string
		page  int
	}
	var entries []entry
	bodyStart := loc[1]
	pos := loc[1]
	for pos < len(text) {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		next := len(text)
		if lineEnd >= 0 {
			next = pos + lineEnd + 1
		}
		line := strings.TrimRight(text[pos:next], "\r\n")
		pos = next

		if strings.TrimSpace(line) == "" {
			continue
		}
		m := tocEntryRe.FindStringSubmatch(line)
		if m == nil {
			break
		}
		page, _ := strconv.Atoi(m[2])
		entries = append(entries, entry{title: strings.TrimSpace(m[1]), page: page})
		bodyStart = pos
	}
	if len(entries) < 2 {
		return nil
	}

	lower := strings.ToLower(text)
	var bounds []segment
	cursor := bodyStart
	for _, e := range entries {
		at := findLineStart(lower, strings.ToLower(e.title), cursor)
		if at < 0 {
			continue
		}
		bounds = append(bounds, segment{start: at, title: e.title, page: e.page})
		cursor = at + len(e.title)
	}
	if len(bounds) < 2 {
		return nil
	}
	return slice(text, bounds, len(text))
}

// findLineStart returns the start of the first line at or after from whose
// content (after indentation and '#' marks) begins with needle.
func findLineStart(haystack, needle string, from int) int {
	for from < len(haystack) {
		i := strings.Index(haystack[from:], needle)
		if i < 0 {
			return -1
		}
		at := from + i
		ls := strings.LastIndexByte(haystack[:at], '\n') + 1
		prefix := strings.TrimLeft(haystack[ls:at], " \t#")
		if prefix == "" {
			return ls
		}
		from = at + len(needle)
	}
	return -1
}

func splitPages(text string) []segment {
	matches := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < 2 {
		return nil
	}

	var segs []segment
	if st, en := trimSpan(text, 0, matches[0][0]); st < en {
		segs = append(segs, segment{start: st, end: en, title: "Preamble"})
	}
	for i, m := range matches {
		stop := len(text)
		if i+1 < len(matches) {
			stop = matches[i+1][0]
		}
		page, _ := strconv.Atoi(text[m[2]:m[3]])
		st, en := trimSpan(text, m[1], stop)
		if st >= en {
			continue
		}
		segs = append(segs, segment{start: st, end: en, title: fmt.Sprintf("Page %d", page), page: page})
	}
	return segs
}

// splitHeaders uses the first header level with at least two matches.
// ok is false when no level qualifies.
func splitHeaders(text string) ([]segment, bool) {
	fenced := fencedRanges(text)
	for _, re := range headerRes {
		var bounds []segment
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if inRanges(fenced, m[0]) {
				continue
			}
			bounds = append(bounds, segment{start: m[0], title: text[m[2]:m[3]]})
		}
		if len(bounds) < 2 {
			continue
		}
		if st, en := trimSpan(text, 0, bounds[0].start); st < en {
			bounds = append([]segment{{start: st, title: "Preamble"}}, bounds...)
		}
		return slice(text, bounds, len(text)), true
	}
	return nil, false
}

func splitRules(text string) []segment {
	matches := ruleRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var segs []segment
	prev := 0
	for _, m := range matches {
		if st, en := trimSpan(text, prev, m[0]); st < en {
			segs = append(segs, segment{start: st, end: en})
		}
		prev = m[1]
	}
	if st, en := trimSpan(text, prev, len(text)); st < en {
		segs = append(segs, segment{start: st, end: en})
	}
	return segs
}

func fencedRanges(text string) [][2]int {
	locs := fenceRe.FindAllStringIndex(text, -1)
	var out [][2]int
	for i := 0; i+1 < len(locs); i += 2 {
		out = append(out, [2]int{locs[i][0], locs[i+1][1]})
	}
	return out
}

func inRanges(ranges [][2]int, pos int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// trimSpan narrows [start,end) to exclude surrounding whitespace.
func trimSpan(text string, start, end int) (int, int) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && isSpace(text[end-1]) {
		end--
	}
	return start, end
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimLeft(s, "#"))
	if len(s) > maxTitleLength {
		cut := maxTitleLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut]) + "…"
	}
	return s
}
