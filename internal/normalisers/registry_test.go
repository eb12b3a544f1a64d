package normalisers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

type stubNormaliser struct {
	name     string
	types    []string
	priority int
	title    string
}

func (s *stubNormaliser) SupportedMIMETypes() []string { return s.types }
func (s *stubNormaliser) Priority() int                { return s.priority }

func (s *stubNormaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	return &driven.NormaliseResult{Title: s.title, Text: s.name + ":" + string(raw.Content)}, nil
}

func TestRegistry_PicksExactMatchOverWildcard(t *testing.T) {
	r := NewRegistry(
		&stubNormaliser{name: "fallback", types: []string{"text/*"}, priority: 5},
		&stubNormaliser{name: "html", types: []string{"text/html"}, priority: 50},
	)

	result, err := r.Normalise(context.Background(), &domain.RawDocument{MIMEType: "text/html; charset=utf-8", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "html:x", result.Text)

	result, err = r.Normalise(context.Background(), &domain.RawDocument{MIMEType: "text/x-go", Content: []byte("y")})
	require.NoError(t, err)
	assert.Equal(t, "fallback:y", result.Text)
}

func TestRegistry_HigherPriorityWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubNormaliser{name: "low", types: []string{"text/markdown"}, priority: 10})
	r.Register(&stubNormaliser{name: "high", types: []string{"text/markdown"}, priority: 60})

	result, err := r.Normalise(context.Background(), &domain.RawDocument{MIMEType: "TEXT/Markdown"})

	require.NoError(t, err)
	assert.Equal(t, "high:", result.Text)
}

func TestRegistry_UnsupportedType(t *testing.T) {
	r := NewRegistry(&stubNormaliser{types: []string{"text/*"}})

	_, err := r.Normalise(context.Background(), &domain.RawDocument{MIMEType: "image/png"})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorContains(t, err, "image/png")
}

func TestRegistry_NilDocument(t *testing.T) {
	_, err := NewRegistry().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistry_TitleFallsBackToURI(t *testing.T) {
	r := NewRegistry(&stubNormaliser{types: []string{"text/plain"}})

	result, err := r.Normalise(context.Background(), &domain.RawDocument{
		URI:      "file:///home/sam/meeting-notes_2024.txt",
		MIMEType: "text/plain",
	})

	require.NoError(t, err)
	assert.Equal(t, "meeting notes 2024", result.Title)
}

func TestRegistry_KeepsNormaliserTitle(t *testing.T) {
	r := NewRegistry(&stubNormaliser{types: []string{"text/plain"}, title: "Own Title"})

	result, err := r.Normalise(context.Background(), &domain.RawDocument{URI: "file:///x.txt", MIMEType: "text/plain"})

	require.NoError(t, err)
	assert.Equal(t, "Own Title", result.Title)
}

func TestRegistry_SupportedMIMETypes(t *testing.T) {
	r := NewRegistry(
		&stubNormaliser{types: []string{"text/plain", "text/*"}},
		&stubNormaliser{types: []string{"text/html", "text/plain"}},
	)

	assert.Equal(t, []string{"text/*", "text/html", "text/plain"}, r.SupportedMIMETypes())
}

func TestTitleFromURI(t *testing.T) {
	assert.Equal(t, "release notes v2", TitleFromURI("/docs/release-notes_v2.md"))
	assert.Equal(t, "README", TitleFromURI("file:///repo/README"))
	assert.Empty(t, TitleFromURI(""))
}
