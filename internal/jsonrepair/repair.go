// Package jsonrepair recovers JSON from language model replies.
//
// Replies often wrap JSON in markdown fences, surround it with prose, double
// the quotes around keys or leave trailing commas. Extract runs a fixed
// sequence of stages over the reply:
//
//	fence-strip -> bracket-bound -> quote-fix -> trailing-comma-strip
//
// and Decode parses the result. Failures are *domain.OracleParseError.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// Stage names reported in OracleParseError.
const (
	StageFence         = "fence-strip"
	StageBracket       = "bracket-bound"
	StageQuote         = "quote-fix"
	StageTrailingComma = "trailing-comma-strip"
	StageParse         = "parse"
)

var (
	fenceRe      = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\n?(.*?)```")
	doubledKeyRe = regexp.MustCompile(`""([^"\n]+)""(\s*:)`)
	smartQuotes  = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// Decode extracts JSON from raw and unmarshals it into v.
func Decode(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if json.Unmarshal([]byte(trimmed), v) == nil {
		return nil
	}
	cleaned, err := Extract(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &domain.OracleParseError{Stage: StageParse, Raw: raw, Err: err}
	}
	return nil
}

// Extract runs the repair stages and returns the candidate JSON text.
func Extract(raw string) (string, error) {
	s := StripFences(raw)
	s, ok := BracketBound(s)
	if !ok {
		return "", &domain.OracleParseError{Stage: StageBracket, Raw: raw}
	}
	s = FixQuotes(s)
	s = StripTrailingCommas(s)
	return s, nil
}

// StripFences returns the contents of the first markdown code fence, or the
// input unchanged when there is none.
func StripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// An unterminated opening fence is common when the reply was cut short.
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			return strings.TrimSpace(rest[nl+1:])
		}
	}
	return strings.TrimSpace(s)
}

// BracketBound returns the span from the first '{' or '[' to the last
// matching closer of the same kind.
func BracketBound(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", false
	}
	return s[start : end+1], true
}

// FixQuotes normalises typographic quotes and collapses doubled quoting
// around object keys (""key"": -> "key":).
func FixQuotes(s string) string {
	s = smartQuotes.Replace(s)
	return doubledKeyRe.ReplaceAllString(s, `"$1"$2`)
}

// StripTrailingCommas removes commas that directly precede a closing
// bracket or brace, ignoring commas inside string literals.
func StripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
