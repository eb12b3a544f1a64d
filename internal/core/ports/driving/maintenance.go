package driving

import (
	"context"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// MaintenanceService performs structural repairs on a tree. Every method
// returns a human-readable summary of what changed.
type MaintenanceService interface {
	Cluster(ctx context.Context, treeID string, nodeIDs []string, folderName string) (*domain.ClusterResult, error)
	Prune(ctx context.Context, treeID, nodeID string) (string, error)
	Rename(ctx context.Context, treeID, nodeID, title string) (string, error)
	Move(ctx context.Context, treeID, nodeID, newParentID string) (string, error)

	// Apply dispatches a single audit operation.
	Apply(ctx context.Context, treeID string, op domain.Operation) (string, error)
}
