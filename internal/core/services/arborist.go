package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// Ensure Arborist implements the interface.
var _ driving.MaintenanceService = (*Arborist)(nil)

// Arborist performs structural repairs: cluster, prune, rename and move.
// Each operation is atomic per node; batches report per-node outcomes.
type Arborist struct {
	stores  *Stores
	indexer *nodeIndexer
}

// NewArborist creates a maintenance service. The pipeline is used when a
// rename re-indexes content.
func NewArborist(stores *Stores, pipeline driven.PostProcessorPipeline) *Arborist {
	return &Arborist{
		stores:  stores,
		indexer: &nodeIndexer{index: stores.Index, pipeline: pipeline},
	}
}

// Cluster creates a folder under the first node's parent and moves the
// nodes into it. Nodes that cannot move are reported in Failed.
func (a *Arborist) Cluster(
	ctx context.Context, treeID string, nodeIDs []string, folderName string,
) (*domain.ClusterResult, error) {
	folderName = strings.TrimSpace(folderName)
	if len(nodeIDs) == 0 || folderName == "" {
		return nil, fmt.Errorf("cluster needs nodes and a folder name: %w", domain.ErrInvalidInput)
	}
	unlock := a.stores.Lock(treeID)
	defer unlock()

	first, err := a.stores.Trees.Node(ctx, treeID, nodeIDs[0])
	if err != nil {
		return nil, err
	}
	if first.IsRoot() {
		return nil, domain.Violation(first.ID, "the tree root cannot be clustered")
	}

	titles := make([]string, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if n, err := a.stores.Trees.Node(ctx, treeID, id); err == nil {
			titles = append(titles, n.Title)
		}
	}
	gist := "Groups " + strings.Join(titles, ", ")

	folder, moved, failed, err := a.stores.Trees.Group(ctx, treeID, first.Parent(), folderName, gist, nodeIDs)
	result := &domain.ClusterResult{Moved: moved, Failed: failed}
	if folder != nil {
		result.FolderID = folder.ID
	}
	if err != nil {
		result.Summary = fmt.Sprintf("Cluster %q failed: %v", folderName, err)
		return result, err
	}

	warnings, err := a.indexer.reindex(ctx, folder, "")
	if err != nil {
		return result, err
	}
	for _, w := range warnings {
		logger.Warn("%s", w)
	}
	if err := a.stores.Index.Save(ctx, treeID); err != nil {
		return result, err
	}

	result.Summary = fmt.Sprintf("Created folder %q (%s) and moved %d node(s) into it", folderName, folder.ID, len(moved))
	if len(failed) > 0 {
		ids := make([]string, 0, len(failed))
		for id := range failed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = id + ": " + failed[id]
		}
		result.Summary += fmt.Sprintf("; %d rejected (%s)", len(failed), strings.Join(parts, "; "))
	}
	return result, nil
}

// Prune deletes a node with its descendants and their vector entries.
func (a *Arborist) Prune(ctx context.Context, treeID, nodeID string) (string, error) {
	unlock := a.stores.Lock(treeID)
	defer unlock()

	node, err := a.stores.Trees.Node(ctx, treeID, nodeID)
	if err != nil {
		return "", err
	}
	removed, err := a.stores.Trees.DeleteNode(ctx, treeID, nodeID)
	if err != nil {
		return "", err
	}
	entries := 0
	for _, n := range removed {
		c, err := a.stores.Index.Remove(ctx, treeID, n.ID)
		if err != nil {
			return "", err
		}
		entries += c
	}
	if err := a.stores.Index.Save(ctx, treeID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Pruned %q and %d descendant(s); removed %d index entries",
		node.Title, len(removed)-1, entries), nil
}

// Rename changes a node's title and re-indexes it under the new title.
func (a *Arborist) Rename(ctx context.Context, treeID, nodeID, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title is empty: %w", domain.ErrInvalidInput)
	}
	unlock := a.stores.Lock(treeID)
	defer unlock()

	node, err := a.stores.Trees.Node(ctx, treeID, nodeID)
	if err != nil {
		return "", err
	}
	old := node.Title
	node.Title = title
	if err := a.stores.Trees.SaveNode(ctx, node); err != nil {
		return "", err
	}

	var content string
	if node.Type.IsContent() {
		atom, err := a.stores.Content.Get(ctx, node.ContentID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return "", err
		}
		if atom != nil {
			content = atom.Payload
		}
	}
	warnings, err := a.indexer.reindex(ctx, node, content)
	if err != nil {
		return "", err
	}
	if err := a.stores.Index.Save(ctx, treeID); err != nil {
		return "", err
	}
	summary := fmt.Sprintf("Renamed %q to %q", old, title)
	if len(warnings) > 0 {
		summary += " (index not updated: " + strings.Join(warnings, "; ") + ")"
	}
	return summary, nil
}

// Move re-parents a node through the tree store's invariant checks.
func (a *Arborist) Move(ctx context.Context, treeID, nodeID, newParentID string) (string, error) {
	unlock := a.stores.Lock(treeID)
	defer unlock()

	node, err := a.stores.Trees.Node(ctx, treeID, nodeID)
	if err != nil {
		return "", err
	}
	parent, err := a.stores.Trees.Node(ctx, treeID, newParentID)
	if err != nil {
		return "", err
	}
	if _, err := a.stores.Trees.MoveNode(ctx, treeID, nodeID, newParentID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %q under %q", node.Title, parent.Title), nil
}

// Apply dispatches one audit operation.
func (a *Arborist) Apply(ctx context.Context, treeID string, op domain.Operation) (string, error) {
	first := func() (string, error) {
		if len(op.NodeIDs) == 0 {
			return "", fmt.Errorf("%s needs a node id: %w", op.Kind, domain.ErrInvalidInput)
		}
		return op.NodeIDs[0], nil
	}
	switch op.Kind {
	case domain.OpCluster:
		res, err := a.Cluster(ctx, treeID, op.NodeIDs, op.Name)
		if err != nil {
			return "", err
		}
		return res.Summary, nil
	case domain.OpPrune:
		if len(op.NodeIDs) == 0 {
			return "", fmt.Errorf("prune needs a node id: %w", domain.ErrInvalidInput)
		}
		var summaries []string
		for _, id := range op.NodeIDs {
			s, err := a.Prune(ctx, treeID, id)
			if err != nil {
				summaries = append(summaries, fmt.Sprintf("%s: %v", id, err))
				continue
			}
			summaries = append(summaries, s)
		}
		return strings.Join(summaries, "\n"), nil
	case domain.OpRename:
		id, err := first()
		if err != nil {
			return "", err
		}
		return a.Rename(ctx, treeID, id, op.Name)
	case domain.OpMove:
		id, err := first()
		if err != nil {
			return "", err
		}
		return a.Move(ctx, treeID, id, op.TargetID)
	default:
		return "", fmt.Errorf("unknown operation %q: %w", op.Kind, domain.ErrInvalidInput)
	}
}
