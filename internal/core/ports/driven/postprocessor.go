package driven

import (
	"context"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// PostProcessor turns text into chunks, or refines chunks produced by an
// earlier processor. Processors are chained in a pipeline.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process receives the source text and the chunks so far (nil for the
	// first processor) and returns the new chunk list. Offsets always refer
	// to the source text.
	Process(ctx context.Context, text string, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the text through all processors in order.
	Process(ctx context.Context, text string) ([]domain.Chunk, error)
}
