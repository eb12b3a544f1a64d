package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

func normalise(t *testing.T, page string) (string, string) {
	t.Helper()
	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:      "/path/to/document.html",
		MIMEType: "text/html",
		Content:  []byte(page),
	})
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", result.MediaType)
	return result.Title, result.Text
}

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()

	assert.ElementsMatch(t, []string{"text/html", "application/xhtml+xml"}, mimeTypes)
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	title, text := normalise(t, "<html><head><title>Test Page</title></head><body><p>Hello World</p></body></html>")

	assert.Equal(t, "Test Page", title)
	assert.Equal(t, "Hello World", text)
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	title, text := normalise(t, "")

	assert.Empty(t, title)
	assert.Empty(t, text)
}

func TestNormalise_TitleExtraction(t *testing.T) {
	tests := []struct {
		name  string
		page  string
		title string
	}{
		{"title tag", "<title>  Spaced\n Title </title><h1>Heading</h1>", "Spaced Title"},
		{"entities", "<title>Q&amp;A</title>", "Q&A"},
		{"falls back to h1", "<body><h2>Sub</h2><h1>Main <em>Heading</em></h1></body>", "Main Heading"},
		{"none", "<p>text</p>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, _ := normalise(t, tt.page)
			assert.Equal(t, tt.title, title)
		})
	}
}

func TestNormalise_HeadingsBecomeMarkdown(t *testing.T) {
	page := `<body>
<h1>Guide</h1>
<p>Intro paragraph.</p>
<h2>Install</h2>
<p>Run the <code>installer</code>.</p>
<h3>Linux</h3><p>Use apt.</p>
</body>`

	_, text := normalise(t, page)

	assert.Equal(t, "# Guide\n\nIntro paragraph.\n\n## Install\n\nRun the installer.\n\n### Linux\n\nUse apt.", text)
}

func TestNormalise_ListsAndBreaks(t *testing.T) {
	_, text := normalise(t, "<ul><li>one</li><li>two <b>bold</b></li></ul>line<br>next<hr/>after")

	assert.Equal(t, "- one\n\n- two bold\n\nline\n\nnext\n\nafter", text)
}

func TestNormalise_SkipsScriptsAndStyles(t *testing.T) {
	page := `<head><style>p{color:red}</style><script>alert("x")</script></head>
<body><noscript>enable js</noscript><svg><text>logo</text></svg><p>Visible</p>
<!-- hidden comment --></body>`

	_, text := normalise(t, page)

	assert.Equal(t, "Visible", text)
}

func TestNormalise_DecodesEntities(t *testing.T) {
	_, text := normalise(t, "<p>Tom &amp; Jerry &lt;3 &quot;cheese&quot;</p>")

	assert.Equal(t, `Tom & Jerry <3 "cheese"`, text)
}

func TestNormalise_MalformedHTML(t *testing.T) {
	_, text := normalise(t, "<p>unclosed <div>nested<p>more")

	assert.Equal(t, "unclosed\n\nnested\n\nmore", text)
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 1, headingLevel("h1"))
	assert.Equal(t, 6, headingLevel("h6"))
	assert.Zero(t, headingLevel("h7"))
	assert.Zero(t, headingLevel("hr"))
	assert.Zero(t, headingLevel("header"))
}
