package postprocessors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// registryMockProcessor is a simple mock for testing registry functionality.
type registryMockProcessor struct {
	name string
}

func (m *registryMockProcessor) Name() string { return m.name }
func (m *registryMockProcessor) Process(_ context.Context, _ string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	return chunks, nil
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if len(r.builders) != 0 {
		t.Errorf("expected empty builders, got %d", len(r.builders))
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	builder := func(_ map[string]any) (driven.PostProcessor, error) {
		return &registryMockProcessor{name: "test"}, nil
	}

	r.Register("test", builder)

	if !r.Has("test") {
		t.Error("expected 'test' to be registered")
	}
}

func TestRegistry_Build_Success(t *testing.T) {
	r := NewRegistry()

	builder := func(cfg map[string]any) (driven.PostProcessor, error) {
		name := "default"
		if n, ok := cfg["name"].(string); ok {
			name = n
		}
		return &registryMockProcessor{name: name}, nil
	}

	r.Register("test", builder)

	proc, err := r.Build("test", map[string]any{"name": "custom"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if proc.Name() != "custom" {
		t.Errorf("expected name 'custom', got %q", proc.Name())
	}
}

func TestRegistry_Build_UnknownProcessor(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build("unknown", nil)
	if err == nil {
		t.Error("expected error for unknown processor")
	}
}

func TestRegistry_Has(t *testing.T) {
	r := NewRegistry()

	if r.Has("nonexistent") {
		t.Error("expected Has to return false for nonexistent processor")
	}

	r.Register("exists", func(_ map[string]any) (driven.PostProcessor, error) {
		return &registryMockProcessor{name: "exists"}, nil
	})

	if !r.Has("exists") {
		t.Error("expected Has to return true for registered processor")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()

	names := r.Names()
	if len(names) != 0 {
		t.Errorf("expected 0 names, got %d", len(names))
	}

	r.Register("alpha", func(_ map[string]any) (driven.PostProcessor, error) {
		return &registryMockProcessor{name: "alpha"}, nil
	})
	r.Register("beta", func(_ map[string]any) (driven.PostProcessor, error) {
		return &registryMockProcessor{name: "beta"}, nil
	})

	names = r.Names()
	if len(names) != 2 {
		t.Errorf("expected 2 names, got %d", len(names))
	}

	// Check both names are present (order may vary)
	nameSet := make(map[string]bool)
	for _, n := range names {
		nameSet[n] = true
	}
	if !nameSet["alpha"] || !nameSet["beta"] {
		t.Errorf("expected names alpha and beta, got %v", names)
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	for _, name := range []string{"recursive", "structural"} {
		if !r.Has(name) {
			t.Errorf("expected %q to be registered after RegisterDefaults", name)
		}
	}
	if names := r.Names(); len(names) != 2 || names[0] != "recursive" {
		t.Errorf("unexpected sorted names: %v", names)
	}
}

func TestBuildChunker_WithConfig(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	cfg := map[string]any{
		"chunk_size": 100,
		"overlap":    int64(10),
		"min_size":   float64(0),
	}

	proc, err := r.Build("recursive", cfg)
	if err != nil {
		t.Fatalf("Build chunker failed: %v", err)
	}
	if proc.Name() != "recursive" {
		t.Errorf("expected name 'recursive', got %q", proc.Name())
	}

	chunks, err := proc.Process(context.Background(), strings.Repeat("x", 250), nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(chunks) < 3 {
		t.Errorf("expected configured chunk size to apply, got %d chunks", len(chunks))
	}
}

func TestBuildChunker_WithNilConfig(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	proc, err := r.Build("recursive", nil)
	if err != nil {
		t.Fatalf("Build chunker with nil config failed: %v", err)
	}
	if proc.Name() != "recursive" {
		t.Errorf("expected name 'recursive', got %q", proc.Name())
	}
}

func TestBuildPipeline(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	settings := domain.DefaultSettings().Ingestion

	p, err := BuildPipeline(r, settings)
	if err != nil {
		t.Fatalf("BuildPipeline failed: %v", err)
	}
	if got := p.Names(); len(got) != 1 || got[0] != "recursive" {
		t.Errorf("unexpected recursive pipeline: %v", got)
	}

	settings.IndexStrategy = domain.IndexStructural
	p, err = BuildPipeline(r, settings)
	if err != nil {
		t.Fatalf("BuildPipeline failed: %v", err)
	}
	if got := p.Names(); len(got) != 2 || got[0] != "structural" || got[1] != "recursive" {
		t.Errorf("unexpected structural pipeline: %v", got)
	}

	settings.IndexStrategy = "semantic"
	if _, err := BuildPipeline(r, settings); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown strategy, got %v", err)
	}
}

func TestStructuralPipeline_SplitsLongSections(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	settings := domain.DefaultSettings().Ingestion
	settings.IndexStrategy = domain.IndexStructural
	settings.ChunkSize = 200
	settings.ChunkOverlap = 20

	text := "# Short\n" + strings.Repeat("brief words ", 12) + "\n# Long\n" + strings.Repeat("many words here ", 40)

	p, err := BuildPipeline(r, settings)
	if err != nil {
		t.Fatalf("BuildPipeline failed: %v", err)
	}
	chunks, err := p.Process(context.Background(), text)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected long section to be split, got %d chunks", len(chunks))
	}
	if chunks[0].Title() != "Short" {
		t.Errorf("expected first chunk title 'Short', got %q", chunks[0].Title())
	}
	for _, c := range chunks {
		if text[c.StartOffset:c.EndOffset] != c.Text {
			t.Errorf("chunk offsets do not match source")
		}
		if c.Len() > 200 {
			t.Errorf("chunk exceeds max size: %d", c.Len())
		}
	}
}

func TestGetIntFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      map[string]any
		key      string
		expected int
		ok       bool
	}{
		{"int value", map[string]any{"size": 100}, "size", 100, true},
		{"int64 value", map[string]any{"size": int64(200)}, "size", 200, true},
		{"float64 value", map[string]any{"size": float64(300)}, "size", 300, true},
		{"zero value", map[string]any{"size": 0}, "size", 0, true},
		{"string value", map[string]any{"size": "400"}, "size", 0, false},
		{"missing key", map[string]any{"other": 100}, "size", 0, false},
		{"nil config", nil, "size", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := getIntFromConfig(tt.cfg, tt.key)
			if result != tt.expected || ok != tt.ok {
				t.Errorf("expected (%d, %v), got (%d, %v)", tt.expected, tt.ok, result, ok)
			}
		})
	}
}
