package driving

import (
	"context"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// RetrievalService answers queries against a tree.
type RetrievalService interface {
	// Retrieve runs vector seeding, a map scan and precision drilling.
	Retrieve(ctx context.Context, treeID, query string, opts domain.RetrieveOptions) (*domain.RetrieveResult, error)

	// Ask retrieves relevant nodes and synthesises a cited answer.
	Ask(ctx context.Context, treeID, query string, opts domain.RetrieveOptions) (*domain.Answer, error)
}
