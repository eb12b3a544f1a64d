package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
	"github.com/custodia-labs/fraktag/internal/logger"
	"github.com/custodia-labs/fraktag/internal/validation"
)

// Ensure TreeService implements the interface.
var _ driving.TreeService = (*TreeService)(nil)

// TreeService manages tree lifecycle, integrity checks and content
// garbage collection.
type TreeService struct {
	stores  *Stores
	oracle  driven.Oracle
	indexer *nodeIndexer
}

// NewTreeService creates a tree service.
func NewTreeService(stores *Stores, oracle driven.Oracle) *TreeService {
	return &TreeService{
		stores:  stores,
		oracle:  oracle,
		indexer: &nodeIndexer{index: stores.Index},
	}
}

// CreateTree creates a tree and its seed folders. Seed folders without a
// gist use their title. Folder index entries that cannot be embedded are
// logged and skipped.
func (s *TreeService) CreateTree(ctx context.Context, req driving.CreateTreeRequest) (*domain.Tree, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	tree, err := s.stores.Trees.CreateTree(ctx, req.ID, req.Name, req.OrganizingPrinciple)
	if err != nil {
		return nil, err
	}
	unlock := s.stores.Lock(tree.ID)
	defer unlock()

	root, err := s.stores.Trees.Node(ctx, tree.ID, tree.RootNodeID)
	if err != nil {
		return nil, err
	}
	created := []*domain.Node{root}
	var seed func(parentID string, folders []driving.SeedFolder) error
	seed = func(parentID string, folders []driving.SeedFolder) error {
		for _, f := range folders {
			gist := f.Gist
			if gist == "" {
				gist = f.Title
			}
			n, err := s.stores.Trees.CreateFolder(ctx, tree.ID, parentID, f.Title, gist)
			if err != nil {
				return fmt.Errorf("seeding %q: %w", f.Title, err)
			}
			created = append(created, n)
			if err := seed(n.ID, f.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := seed(tree.RootNodeID, req.Seeds); err != nil {
		return tree, err
	}

	for _, n := range created {
		warnings, err := s.indexer.reindex(ctx, n, "")
		if err != nil {
			return tree, err
		}
		if len(warnings) > 0 {
			break
		}
	}
	if err := s.stores.Index.Save(ctx, tree.ID); err != nil {
		return tree, err
	}
	logger.Info("Created tree %s with %d folders", tree.ID, len(created))
	return tree, nil
}

// ListTrees returns every tree.
func (s *TreeService) ListTrees(ctx context.Context) ([]*domain.Tree, error) {
	return s.stores.Trees.Trees(ctx)
}

// GetTree returns a tree.
func (s *TreeService) GetTree(ctx context.Context, treeID string) (*domain.Tree, error) {
	return s.stores.Trees.Tree(ctx, treeID)
}

// Nodes returns the tree's nodes depth-first.
func (s *TreeService) Nodes(ctx context.Context, treeID string) ([]*domain.Node, error) {
	return s.stores.Trees.Nodes(ctx, treeID)
}

// Node returns a node and, for content nodes, its current payload.
func (s *TreeService) Node(ctx context.Context, treeID, nodeID string) (*domain.Node, string, error) {
	n, err := s.stores.Trees.Node(ctx, treeID, nodeID)
	if err != nil {
		return nil, "", err
	}
	if !n.Type.IsContent() {
		return n, "", nil
	}
	atom, err := s.stores.Content.Get(ctx, n.ContentID)
	if err != nil {
		return n, "", err
	}
	return n, atom.Payload, nil
}

// RenderMap returns the indented tree map.
func (s *TreeService) RenderMap(ctx context.Context, treeID string) (string, error) {
	return RenderMap(ctx, s.stores.Trees, treeID)
}

// Verify checks the tree for orphans, invariant violations, missing
// content references and unindexed nodes.
func (s *TreeService) Verify(ctx context.Context, treeID string) (*domain.VerifyReport, error) {
	orphans, violations, err := s.stores.Trees.Verify(ctx, treeID)
	if err != nil {
		return nil, err
	}
	nodes, err := s.stores.Trees.AllNodes(ctx, treeID)
	if err != nil {
		return nil, err
	}
	report := &domain.VerifyReport{
		TreeID:     treeID,
		NodeCount:  len(nodes),
		Orphans:    orphans,
		Violations: violations,
	}
	for _, n := range nodes {
		if n.ContentID != "" {
			if _, err := s.stores.Content.Get(ctx, n.ContentID); errors.Is(err, domain.ErrNotFound) {
				report.MissingContent = append(report.MissingContent, n.ID)
			} else if err != nil {
				return nil, err
			}
		}
		ok, err := s.stores.Index.Has(ctx, treeID, n.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.Unindexed = append(report.Unindexed, n.ID)
		}
	}
	return report, nil
}

// Audit asks the oracle to review the tree's structure and returns the
// operations it proposes. Operations of unknown kind are dropped. Oracle
// failure yields an empty report with a warning.
func (s *TreeService) Audit(ctx context.Context, treeID string) (*domain.AuditReport, error) {
	tree, err := s.stores.Trees.Tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	treeMap, err := s.RenderMap(ctx, treeID)
	if err != nil {
		return nil, err
	}
	report := &domain.AuditReport{TreeID: treeID, Operations: []domain.Operation{}}

	var reply struct {
		Operations []domain.Operation `json:"operations"`
	}
	if err := completeJSON(ctx, s.oracle, driven.PromptAudit, map[string]string{
		"principle": tree.OrganizingPrinciple,
		"map":       treeMap,
	}, &reply); err != nil {
		logger.Warn("Audit of %s failed: %v", treeID, err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("audit unavailable: %v", err))
		return report, nil
	}
	for _, op := range reply.Operations {
		if !op.Kind.IsValid() {
			report.Warnings = append(report.Warnings, fmt.Sprintf("ignored unknown operation %q", op.Kind))
			continue
		}
		report.Operations = append(report.Operations, op)
	}
	return report, nil
}

// Reset removes every node except the root, rebuilds the index with the
// root entry and optionally prunes atoms no tree references any more.
func (s *TreeService) Reset(ctx context.Context, treeID string, pruneContent bool) (*domain.ResetReport, error) {
	unlock := s.stores.Lock(treeID)
	tree, err := s.stores.Trees.Tree(ctx, treeID)
	if err != nil {
		unlock()
		return nil, err
	}
	children, err := s.stores.Trees.Children(ctx, treeID, tree.RootNodeID)
	if err != nil {
		unlock()
		return nil, err
	}
	report := &domain.ResetReport{TreeID: treeID}
	for _, c := range children {
		removed, err := s.stores.Trees.DeleteNode(ctx, treeID, c.ID)
		report.NodesRemoved += len(removed)
		if err != nil {
			unlock()
			return report, err
		}
	}

	s.stores.Index.Clear(treeID)
	root, err := s.stores.Trees.Node(ctx, treeID, tree.RootNodeID)
	if err == nil {
		_, err = s.indexer.reindex(ctx, root, "")
	}
	if err == nil {
		err = s.stores.Index.Save(ctx, treeID)
	}
	unlock()
	if err != nil {
		return report, err
	}

	if pruneContent {
		n, err := s.CollectGarbage(ctx)
		report.AtomsPruned = n
		if err != nil {
			return report, err
		}
	}
	logger.Info("Reset tree %s: %d nodes removed, %d atoms pruned", treeID, report.NodesRemoved, report.AtomsPruned)
	return report, nil
}

// CollectGarbage prunes every atom not referenced by a node of any tree.
func (s *TreeService) CollectGarbage(ctx context.Context) (int, error) {
	trees, err := s.stores.Trees.Trees(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[string]bool)
	for _, t := range trees {
		nodes, err := s.stores.Trees.AllNodes(ctx, t.ID)
		if err != nil {
			return 0, err
		}
		for _, n := range nodes {
			if n.ContentID != "" {
				live[n.ContentID] = true
			}
		}
	}
	return s.stores.Content.Prune(ctx, live)
}

// History walks an atom's version chain, newest first.
func (s *TreeService) History(ctx context.Context, atomID string) ([]*domain.ContentAtom, error) {
	return s.stores.Content.History(ctx, atomID)
}
