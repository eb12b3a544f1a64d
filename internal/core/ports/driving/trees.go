package driving

import (
	"context"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// TreeService manages tree lifecycle and integrity.
type TreeService interface {
	CreateTree(ctx context.Context, req CreateTreeRequest) (*domain.Tree, error)
	ListTrees(ctx context.Context) ([]*domain.Tree, error)
	GetTree(ctx context.Context, treeID string) (*domain.Tree, error)

	// Nodes returns every node of the tree in depth-first order.
	Nodes(ctx context.Context, treeID string) ([]*domain.Node, error)

	// Node returns a single node and, for content nodes, its payload.
	Node(ctx context.Context, treeID, nodeID string) (*domain.Node, string, error)

	// RenderMap returns the indented id/title/gist map used by the oracle.
	RenderMap(ctx context.Context, treeID string) (string, error)

	Verify(ctx context.Context, treeID string) (*domain.VerifyReport, error)
	Audit(ctx context.Context, treeID string) (*domain.AuditReport, error)

	// Reset removes every node except the root and clears the index.
	Reset(ctx context.Context, treeID string, pruneContent bool) (*domain.ResetReport, error)

	// CollectGarbage prunes atoms not referenced by any node of any tree.
	CollectGarbage(ctx context.Context) (int, error)

	// History walks an atom's supersession chain, newest first.
	History(ctx context.Context, atomID string) ([]*domain.ContentAtom, error)
}

// CreateTreeRequest describes a new tree and its seed folders. It doubles
// as the schema of YAML tree definition files.
type CreateTreeRequest struct {
	ID                  string       `yaml:"id"`
	Name                string       `yaml:"name" validate:"required"`
	OrganizingPrinciple string       `yaml:"principle" validate:"required"`
	Seeds               []SeedFolder `yaml:"seeds" validate:"dive"`
}

// SeedFolder is a folder created with the tree. Children nest.
type SeedFolder struct {
	Title    string       `yaml:"title" validate:"required"`
	Gist     string       `yaml:"gist"`
	Children []SeedFolder `yaml:"children" validate:"dive"`
}
