package jsonrepair

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

type selection struct {
	NodeIDs []string `json:"nodeIds"`
	Reason  string   `json:"reason"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want selection
	}{
		{
			name: "plain",
			raw:  `{"nodeIds": ["a", "b"], "reason": "ok"}`,
			want: selection{NodeIDs: []string{"a", "b"}, Reason: "ok"},
		},
		{
			name: "fenced",
			raw:  "Here you go:\n```json\n{\"nodeIds\": [\"a\"], \"reason\": \"fenced\"}\n```\nThanks!",
			want: selection{NodeIDs: []string{"a"}, Reason: "fenced"},
		},
		{
			name: "prose around object",
			raw:  `I think the answer is {"nodeIds": ["x"], "reason": "prose"} hope that helps`,
			want: selection{NodeIDs: []string{"x"}, Reason: "prose"},
		},
		{
			name: "doubled key quotes",
			raw:  `{""nodeIds"": ["q"], ""reason"": "doubled"}`,
			want: selection{NodeIDs: []string{"q"}, Reason: "doubled"},
		},
		{
			name: "trailing commas",
			raw:  "{\"nodeIds\": [\"a\", \"b\",], \"reason\": \"commas\",\n}",
			want: selection{NodeIDs: []string{"a", "b"}, Reason: "commas"},
		},
		{
			name: "smart quotes",
			raw:  "{“nodeIds”: [“z”], “reason”: “smart”}",
			want: selection{NodeIDs: []string{"z"}, Reason: "smart"},
		},
		{
			name: "unterminated fence",
			raw:  "```json\n{\"nodeIds\": [], \"reason\": \"cut\"}",
			want: selection{NodeIDs: []string{}, Reason: "cut"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got selection
			require.NoError(t, Decode(tt.raw, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Array(t *testing.T) {
	var ids []string
	require.NoError(t, Decode("The ids are: [\"n1\", \"n2\",]", &ids))
	assert.Equal(t, []string{"n1", "n2"}, ids)
}

func TestDecode_NoJSON(t *testing.T) {
	var got selection
	err := Decode("I cannot help with that.", &got)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOracleFailure))

	var pe *domain.OracleParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StageBracket, pe.Stage)
	assert.Equal(t, "I cannot help with that.", pe.Raw)
}

func TestDecode_Unparseable(t *testing.T) {
	var got selection
	err := Decode(`{"nodeIds": [a, b]}`, &got)

	var pe *domain.OracleParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StageParse, pe.Stage)
}

func TestStripTrailingCommas_IgnoresStrings(t *testing.T) {
	in := `{"text": "a, ]", "list": [1, 2, ],}`
	assert.Equal(t, `{"text": "a, ]", "list": [1, 2 ]}`, StripTrailingCommas(in))
}

func TestStripTrailingCommas_EscapedQuote(t *testing.T) {
	in := `{"text": "say \",}\"",}`
	assert.Equal(t, `{"text": "say \",}\""}`, StripTrailingCommas(in))
}

func TestBracketBound(t *testing.T) {
	got, ok := BracketBound(`noise {"a": {"b": 1}} trailing }`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}} trailing }`, got)

	_, ok = BracketBound("nothing")
	assert.False(t, ok)

	_, ok = BracketBound("} before {")
	assert.False(t, ok)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("  {\"a\":1}  "))
}
