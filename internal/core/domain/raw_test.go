package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawDocument_Fields(t *testing.T) {
	raw := RawDocument{
		URI:      "file:///notes/index.html",
		MIMEType: "text/html; charset=utf-8",
		Content:  []byte("<p>hi</p>"),
	}

	assert.Equal(t, "file:///notes/index.html", raw.URI)
	assert.Equal(t, "text/html; charset=utf-8", raw.MIMEType)
	assert.Equal(t, []byte("<p>hi</p>"), raw.Content)
}
