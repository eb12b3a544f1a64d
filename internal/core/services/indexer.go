package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// nodeIndexer keeps a node's vector entries in step with its title, gist
// and content. Entry 0 is always "title\ngist"; content nodes add one entry
// per chunk produced by the pipeline, or the whole text when the pipeline
// yields nothing.
type nodeIndexer struct {
	index    *VectorIndex
	pipeline driven.PostProcessorPipeline
}

// texts returns the strings to embed for a node.
func (x *nodeIndexer) texts(ctx context.Context, n *domain.Node, content string) ([]string, []string) {
	texts := []string{n.Title + "\n" + n.Gist}
	var warnings []string
	if !n.Type.IsContent() || strings.TrimSpace(content) == "" {
		return texts, nil
	}
	var chunks []domain.Chunk
	if x.pipeline != nil {
		var err error
		chunks, err = x.pipeline.Process(ctx, content)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("chunking %s failed, indexing whole text: %v", n.ID, err))
			chunks = nil
		}
	}
	if len(chunks) == 0 {
		return append(texts, content), warnings
	}
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return texts, warnings
}

// reindex replaces the node's entries. Old entries are removed before the
// new ones are embedded, so the two sets never coexist. Embedding problems
// come back as warnings; storage problems come back as errors.
func (x *nodeIndexer) reindex(ctx context.Context, n *domain.Node, content string) ([]string, error) {
	if _, err := x.index.Remove(ctx, n.TreeID, n.ID); err != nil {
		return nil, err
	}
	texts, warnings := x.texts(ctx, n, content)
	if err := x.index.AddChunks(ctx, n.TreeID, n.ID, texts); err != nil {
		if errors.Is(err, domain.ErrStorageFailure) {
			return warnings, err
		}
		msg := fmt.Sprintf("node %s stored but not indexed: %v", n.ID, err)
		logger.Warn("%s", msg)
		warnings = append(warnings, msg)
	}
	return warnings, nil
}
