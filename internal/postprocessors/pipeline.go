// Package postprocessors assembles the chunking engine from named processors.
package postprocessors

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs processors in order. The first receives nil chunks and
// produces them; later ones refine what came before, so the structural
// splitter followed by the recursive chunker yields section-bounded chunks.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
}

// NewPipeline returns a pipeline running processors in the given order.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process chunks text, stopping at the first failing processor.
func (p *Pipeline) Process(ctx context.Context, text string) ([]domain.Chunk, error) {
	p.mu.RLock()
	procs := p.processors
	p.mu.RUnlock()

	var chunks []domain.Chunk
	for _, proc := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := proc.Process(ctx, text, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", proc.Name(), err)
		}
		chunks = out
	}
	return chunks, nil
}

// Add appends a processor.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processors = append(p.processors[:len(p.processors):len(p.processors)], processor)
}

// Replace swaps in the processors of next. Calls already running finish
// with the old processors.
func (p *Pipeline) Replace(next *Pipeline) {
	next.mu.RLock()
	procs := next.processors
	next.mu.RUnlock()
	p.mu.Lock()
	p.processors = procs
	p.mu.Unlock()
}

func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.processors)
}

// Names lists processor names in execution order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.processors))
	for _, proc := range p.processors {
		names = append(names, proc.Name())
	}
	return names
}
