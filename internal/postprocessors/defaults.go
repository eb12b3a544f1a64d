package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/postprocessors/chunker"
	"github.com/custodia-labs/fraktag/internal/postprocessors/splitter"
)

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("recursive", buildChunker)
	r.Register("structural", buildSplitter)
}

// StrategyProcessors returns the processor names that implement an index strategy.
func StrategyProcessors(strategy domain.IndexStrategy) ([]string, error) {
	switch strategy {
	case domain.IndexRecursive, "":
		return []string{"recursive"}, nil
	case domain.IndexStructural:
		return []string{"structural", "recursive"}, nil
	default:
		return nil, fmt.Errorf("unknown index strategy %q: %w", strategy, domain.ErrInvalidInput)
	}
}

// BuildPipeline assembles the indexing pipeline for the ingestion settings.
func BuildPipeline(r *Registry, s domain.IngestionSettings) (*Pipeline, error) {
	names, err := StrategyProcessors(s.IndexStrategy)
	if err != nil {
		return nil, err
	}

	cfg := map[string]any{
		"chunk_size": s.ChunkSize,
		"overlap":    s.ChunkOverlap,
		"min_size":   s.MinChunkSize,
	}

	pipeline := NewPipeline()
	for _, name := range names {
		proc, err := r.Build(name, cfg)
		if err != nil {
			return nil, err
		}
		pipeline.Add(proc)
	}
	return pipeline, nil
}

// buildChunker creates a recursive chunker from generic config.
// Supported config keys:
//   - chunk_size (int): Maximum bytes per chunk (default: 1000)
//   - overlap (int): Overlapping bytes between chunks (default: 200)
//   - min_size (int): Minimum trimmed chunk length (default: 20)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if size, ok := getIntFromConfig(cfg, "chunk_size"); ok {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	if minSize, ok := getIntFromConfig(cfg, "min_size"); ok {
		opts = append(opts, chunker.WithMinSize(minSize))
	}

	return chunker.New(opts...), nil
}

// buildSplitter creates a structural splitter from generic config.
// Supported config keys:
//   - max_segments (int): Segment cap for header and rule splits (default: 50)
//   - min_average_length (int): Minimum mean segment length (default: 100)
func buildSplitter(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []splitter.Option

	if n, ok := getIntFromConfig(cfg, "max_segments"); ok {
		opts = append(opts, splitter.WithMaxSegments(n))
	}
	if n, ok := getIntFromConfig(cfg, "min_average_length"); ok {
		opts = append(opts, splitter.WithMinAverageLength(n))
	}

	return splitter.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
