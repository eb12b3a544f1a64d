package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()

	assert.Contains(t, mimeTypes, "text/*")
	assert.Contains(t, mimeTypes, "application/json")
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 5, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	raw := &domain.RawDocument{
		URI:      "/path/to/document.txt",
		MIMEType: "text/plain",
		Content:  []byte("This is plain text content."),
	}

	result, err := New().Normalise(context.Background(), raw)

	require.NoError(t, err)
	assert.Equal(t, "This is plain text content.", result.Text)
	assert.Equal(t, "text/plain", result.MediaType)
	assert.Empty(t, result.Title)
}

func TestNormalise_UnifiesLineEndings(t *testing.T) {
	raw := &domain.RawDocument{Content: []byte("\xef\xbb\xbfone\r\ntwo\rthree\n")}

	result, err := New().Normalise(context.Background(), raw)

	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", result.Text)
}

func TestNormalise_ReplacesInvalidUTF8(t *testing.T) {
	raw := &domain.RawDocument{Content: []byte("caf\xe9 au lait")}

	result, err := New().Normalise(context.Background(), raw)

	require.NoError(t, err)
	assert.Equal(t, "caf� au lait", result.Text)
}

func TestNormalise_RejectsBinary(t *testing.T) {
	raw := &domain.RawDocument{Content: []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}}

	_, err := New().Normalise(context.Background(), raw)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalise_NilDocument(t *testing.T) {
	_, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalise_EmptyContent(t *testing.T) {
	result, err := New().Normalise(context.Background(), &domain.RawDocument{})

	require.NoError(t, err)
	assert.Empty(t, result.Text)
}
