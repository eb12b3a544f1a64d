package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

const treesPrefix = "trees/"

func treePath(treeID string) string {
	return treesPrefix + treeID + "/tree.json"
}

func nodesPrefix(treeID string) string {
	return treesPrefix + treeID + "/nodes/"
}

func nodePath(treeID, nodeID string) string {
	return nodesPrefix(treeID) + nodeID + ".json"
}

// treeState is the cached node set of one tree.
type treeState struct {
	tree     *domain.Tree
	nodes    map[string]*domain.Node
	children map[string][]string
}

func (t *treeState) childNodes(parentID string) []*domain.Node {
	ids := t.children[parentID]
	out := make([]*domain.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := t.nodes[id]; ok {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *treeState) link(n *domain.Node) {
	if n.ParentID == nil {
		return
	}
	p := *n.ParentID
	for _, id := range t.children[p] {
		if id == n.ID {
			return
		}
	}
	t.children[p] = append(t.children[p], n.ID)
}

func (t *treeState) unlink(n *domain.Node) {
	if n.ParentID == nil {
		return
	}
	p := *n.ParentID
	ids := t.children[p]
	for i, id := range ids {
		if id == n.ID {
			t.children[p] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(t.children[p]) == 0 {
		delete(t.children, p)
	}
}

// isDescendant reports whether candidate lies in the subtree rooted at ancestor
// (ancestor itself included).
func (t *treeState) isDescendant(candidate, ancestor string) bool {
	seen := make(map[string]bool)
	for id := candidate; id != "" && !seen[id]; {
		if id == ancestor {
			return true
		}
		seen[id] = true
		n, ok := t.nodes[id]
		if !ok {
			return false
		}
		id = n.Parent()
	}
	return false
}

// TreeStore is the hierarchical node store. Every mutation re-validates the
// structural invariants before it is persisted.
type TreeStore struct {
	storage driven.Storage
	now     func() time.Time

	mu    sync.RWMutex
	trees map[string]*treeState
}

// NewTreeStore creates a tree store on top of storage.
func NewTreeStore(storage driven.Storage) *TreeStore {
	return &TreeStore{
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
		trees:   make(map[string]*treeState),
	}
}

func cloneNode(n *domain.Node) *domain.Node {
	c := *n
	if n.ParentID != nil {
		c.ParentID = domain.StringPtr(*n.ParentID)
	}
	return &c
}

// state returns the cached tree, loading it from storage on first use.
// Callers must hold s.mu for writing.
func (s *TreeStore) state(ctx context.Context, treeID string) (*treeState, error) {
	if st, ok := s.trees[treeID]; ok {
		return st, nil
	}
	if treeID == "" || strings.Contains(treeID, "/") {
		return nil, fmt.Errorf("tree %q: %w", treeID, domain.ErrNotFound)
	}
	data, err := s.storage.Read(ctx, treePath(treeID))
	if err != nil {
		return nil, fmt.Errorf("tree %s: %w", treeID, err)
	}
	var tree domain.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decoding tree %s: %w", treeID, errors.Join(domain.ErrStorageFailure, err))
	}
	st := &treeState{
		tree:     &tree,
		nodes:    make(map[string]*domain.Node),
		children: make(map[string][]string),
	}
	paths, err := s.storage.List(ctx, nodesPrefix(treeID))
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		raw, err := s.storage.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		var n domain.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decoding node %s: %w", p, errors.Join(domain.ErrStorageFailure, err))
		}
		st.nodes[n.ID] = &n
		st.link(&n)
	}
	s.trees[treeID] = st
	return st, nil
}

// readState takes the write lock because a cache miss populates the map.
func (s *TreeStore) readState(ctx context.Context, treeID string) (*treeState, func(), error) {
	s.mu.Lock()
	st, err := s.state(ctx, treeID)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, err
	}
	return st, s.mu.Unlock, nil
}

func (s *TreeStore) writeNode(ctx context.Context, n *domain.Node) error {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding node: %w", err)
	}
	if err := s.storage.Write(ctx, nodePath(n.TreeID, n.ID), data); err != nil {
		return fmt.Errorf("writing node %s: %w", n.ID, err)
	}
	return nil
}

// CreateTree creates a tree with a root folder titled after the tree.
func (s *TreeStore) CreateTree(ctx context.Context, id, name, principle string) (*domain.Tree, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tree name is empty: %w", domain.ErrInvalidInput)
	}
	if id == "" {
		id = uuid.New().String()
	}
	if strings.ContainsAny(id, "/\\") {
		return nil, fmt.Errorf("tree id %q: %w", id, domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.state(ctx, id); err == nil {
		return nil, fmt.Errorf("tree %s already exists: %w", id, domain.ErrInvalidInput)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	gist := strings.TrimSpace(principle)
	if gist == "" {
		gist = name
	}
	now := s.now()
	root := &domain.Node{
		ID:        id + "-root",
		TreeID:    id,
		Type:      domain.NodeFolder,
		Title:     name,
		Gist:      gist,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tree := &domain.Tree{
		ID:                  id,
		Name:                name,
		OrganizingPrinciple: principle,
		RootNodeID:          root.ID,
		CreatedAt:           now,
	}

	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tree: %w", err)
	}
	if err := s.writeNode(ctx, root); err != nil {
		return nil, err
	}
	if err := s.storage.Write(ctx, treePath(id), data); err != nil {
		return nil, fmt.Errorf("writing tree %s: %w", id, err)
	}

	s.trees[id] = &treeState{
		tree:     tree,
		nodes:    map[string]*domain.Node{root.ID: root},
		children: make(map[string][]string),
	}
	t := *tree
	return &t, nil
}

// Tree returns the tree record.
func (s *TreeStore) Tree(ctx context.Context, treeID string) (*domain.Tree, error) {
	st, unlock, err := s.readState(ctx, treeID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	t := *st.tree
	return &t, nil
}

// Trees lists every persisted tree ordered by id.
func (s *TreeStore) Trees(ctx context.Context) ([]*domain.Tree, error) {
	paths, err := s.storage.List(ctx, treesPrefix)
	if err != nil {
		return nil, err
	}
	var trees []*domain.Tree
	for _, p := range paths {
		rest := strings.TrimPrefix(p, treesPrefix)
		id, file, ok := strings.Cut(rest, "/")
		if !ok || file != "tree.json" {
			continue
		}
		t, err := s.Tree(ctx, id)
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, nil
}

// Node returns a copy of a node.
func (s *TreeStore) Node(ctx context.Context, treeID, nodeID string) (*domain.Node, error) {
	st, unlock, err := s.readState(ctx, treeID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	n, ok := st.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	return cloneNode(n), nil
}

// Children returns the children of parentID ordered by sort order.
func (s *TreeStore) Children(ctx context.Context, treeID, parentID string) ([]*domain.Node, error) {
	st, unlock, err := s.readState(ctx, treeID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if _, ok := st.nodes[parentID]; !ok {
		return nil, fmt.Errorf("node %s: %w", parentID, domain.ErrNotFound)
	}
	kids := st.childNodes(parentID)
	out := make([]*domain.Node, len(kids))
	for i, n := range kids {
		out[i] = cloneNode(n)
	}
	return out, nil
}

// Walk visits every node reachable from the root depth-first, passing the
// depth below the root. Returning false skips the node's subtree.
func (s *TreeStore) Walk(ctx context.Context, treeID string, fn func(n *domain.Node, depth int) bool) error {
	st, unlock, err := s.readState(ctx, treeID)
	if err != nil {
		return err
	}
	// Snapshot so fn may call back into the store.
	type item struct {
		node  *domain.Node
		depth int
	}
	var order []item
	seen := make(map[string]bool)
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		n, ok := st.nodes[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		order = append(order, item{cloneNode(n), depth})
		for _, c := range st.childNodes(id) {
			visit(c.ID, depth+1)
		}
	}
	visit(st.tree.RootNodeID, 0)
	unlock()

	skipBelow := -1
	for _, it := range order {
		if skipBelow >= 0 {
			if it.depth > skipBelow {
				continue
			}
			skipBelow = -1
		}
		if !fn(it.node, it.depth) {
			skipBelow = it.depth
		}
	}
	return nil
}

// Nodes returns every node reachable from the root in depth-first order.
func (s *TreeStore) Nodes(ctx context.Context, treeID string) ([]*domain.Node, error) {
	var out []*domain.Node
	err := s.Walk(ctx, treeID, func(n *domain.Node, _ int) bool {
		out = append(out, n)
		return true
	})
	return out, err
}

// AllNodes returns every stored node of the tree, reachable or not, ordered by id.
func (s *TreeStore) AllNodes(ctx context.Context, treeID string) ([]*domain.Node, error) {
	st, unlock, err := s.readState(ctx, treeID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := make([]*domain.Node, 0, len(st.nodes))
	for _, n := range st.nodes {
		out = append(out, cloneNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LeafFolders returns folders without folder children in depth-first order.
func (s *TreeStore) LeafFolders(ctx context.Context, treeID string) ([]*domain.Node, error) {
	var leaves []*domain.Node
	var walkErr error
	err := s.Walk(ctx, treeID, func(n *domain.Node, _ int) bool {
		if n.Type != domain.NodeFolder || walkErr != nil {
			return false
		}
		kids, err := s.Children(ctx, treeID, n.ID)
		if err != nil {
			walkErr = err
			return false
		}
		for _, c := range kids {
			if c.Type == domain.NodeFolder {
				return true
			}
		}
		leaves = append(leaves, n)
		return true
	})
	if err != nil {
		return nil, err
	}
	return leaves, walkErr
}

// checkPlacement enforces the parent/child typing rules for a child of
// childType placed under parentID. The node named by exclude is ignored
// among the siblings, so a node can be re-validated in place.
func checkPlacement(st *treeState, parentID string, childType domain.NodeType, exclude string) error {
	parent, ok := st.nodes[parentID]
	if !ok {
		return fmt.Errorf("parent %s: %w", parentID, domain.ErrNotFound)
	}
	switch parent.Type {
	case domain.NodeFragment:
		return domain.Violation(parentID, "fragments cannot have children")
	case domain.NodeDocument:
		if childType != domain.NodeFragment {
			return domain.Violation(parentID, "documents may only contain fragments, not %s", childType)
		}
		return nil
	}

	if childType == domain.NodeFragment {
		return domain.Violation(parentID, "fragments must be placed under a document")
	}
	wantFolder := childType == domain.NodeFolder
	for _, sib := range st.childNodes(parentID) {
		if sib.ID == exclude {
			continue
		}
		if (sib.Type == domain.NodeFolder) != wantFolder {
			if wantFolder {
				return domain.Violation(parentID, "folder already holds content; cannot add a folder")
			}
			return domain.Violation(parentID, "not a leaf folder; content must go under a folder without sub-folders")
		}
	}
	return nil
}

// CheckPlacement reports whether a node of the given type may be created
// under parentID.
func (s *TreeStore) CheckPlacement(ctx context.Context, treeID, parentID string, nodeType domain.NodeType) error {
	st, unlock, err := s.readState(ctx, treeID)
	if err != nil {
		return err
	}
	defer unlock()
	return checkPlacement(st, parentID, nodeType, "")
}

// CreateNode validates and stores a new node. Id, timestamps and sort order
// are assigned when unset.
func (s *TreeStore) CreateNode(ctx context.Context, n *domain.Node) (*domain.Node, error) {
	if n.ParentID == nil {
		return nil, domain.Violation(n.ID, "only the tree root may lack a parent")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.state(ctx, n.TreeID)
	if err != nil {
		return nil, err
	}
	node := cloneNode(n)
	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	if _, exists := st.nodes[node.ID]; exists {
		return nil, fmt.Errorf("node %s already exists: %w", node.ID, domain.ErrInvalidInput)
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	if err := checkPlacement(st, node.Parent(), node.Type, ""); err != nil {
		return nil, err
	}
	now := s.now()
	node.CreatedAt, node.UpdatedAt = now, now
	if node.SortOrder == 0 {
		node.SortOrder = len(st.children[node.Parent()])
	}
	if err := s.writeNode(ctx, node); err != nil {
		return nil, err
	}
	st.nodes[node.ID] = node
	st.link(node)
	return cloneNode(node), nil
}

// CreateFolder creates a folder under parentID.
func (s *TreeStore) CreateFolder(ctx context.Context, treeID, parentID, title, gist string) (*domain.Node, error) {
	return s.CreateNode(ctx, &domain.Node{
		TreeID:   treeID,
		ParentID: domain.StringPtr(parentID),
		Type:     domain.NodeFolder,
		Title:    title,
		Gist:     gist,
	})
}

// CreateDocument creates a document under a leaf folder.
func (s *TreeStore) CreateDocument(ctx context.Context, treeID, folderID, title, gist, contentID string) (*domain.Node, error) {
	return s.CreateNode(ctx, &domain.Node{
		TreeID:    treeID,
		ParentID:  domain.StringPtr(folderID),
		Type:      domain.NodeDocument,
		Title:     title,
		Gist:      gist,
		ContentID: contentID,
	})
}

// CreateFragment creates a fragment under a document.
func (s *TreeStore) CreateFragment(ctx context.Context, treeID, documentID, title, gist, contentID string) (*domain.Node, error) {
	return s.CreateNode(ctx, &domain.Node{
		TreeID:    treeID,
		ParentID:  domain.StringPtr(documentID),
		Type:      domain.NodeFragment,
		Title:     title,
		Gist:      gist,
		ContentID: contentID,
	})
}

// SaveNode upserts a node, re-validating every invariant that could be
// affected, including the position under its (possibly new) parent.
func (s *TreeStore) SaveNode(ctx context.Context, n *domain.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.state(ctx, n.TreeID)
	if err != nil {
		return err
	}
	old, exists := st.nodes[n.ID]
	if n.ParentID == nil {
		if n.ID != st.tree.RootNodeID {
			return domain.Violation(n.ID, "only the tree root may lack a parent")
		}
		if n.Type != domain.NodeFolder {
			return domain.Violation(n.ID, "the tree root must be a folder")
		}
	} else {
		if st.isDescendant(n.Parent(), n.ID) {
			return domain.Violation(n.ID, "cannot place a node under itself or its descendants")
		}
		if err := checkPlacement(st, n.Parent(), n.Type, n.ID); err != nil {
			return err
		}
	}
	if exists {
		if err := checkChildrenFit(st, n); err != nil {
			return err
		}
	}

	node := cloneNode(n)
	node.UpdatedAt = s.now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = node.UpdatedAt
	}
	if err := s.writeNode(ctx, node); err != nil {
		return err
	}
	if exists {
		st.unlink(old)
	}
	st.nodes[node.ID] = node
	st.link(node)
	return nil
}

// checkChildrenFit verifies an existing node's children remain valid if the
// node changes type.
func checkChildrenFit(st *treeState, n *domain.Node) error {
	for _, c := range st.childNodes(n.ID) {
		switch {
		case n.Type == domain.NodeFragment:
			return domain.Violation(n.ID, "fragments cannot have children")
		case n.Type == domain.NodeDocument && c.Type != domain.NodeFragment:
			return domain.Violation(n.ID, "documents may only contain fragments")
		case n.Type == domain.NodeFolder && c.Type == domain.NodeFragment:
			return domain.Violation(n.ID, "fragments must be placed under a document")
		}
	}
	return nil
}

// MoveNode re-parents a node. It fails with a structural violation when the
// move would create a cycle, mix sibling types, or put content under a
// non-leaf folder.
func (s *TreeStore) MoveNode(ctx context.Context, treeID, nodeID, newParentID string) (*domain.Node, error) {
	n, err := s.Node(ctx, treeID, nodeID)
	if err != nil {
		return nil, err
	}
	if n.IsRoot() {
		return nil, domain.Violation(nodeID, "the tree root cannot be moved")
	}
	if _, err := s.Node(ctx, treeID, newParentID); err != nil {
		return nil, err
	}
	n.ParentID = domain.StringPtr(newParentID)
	s.mu.RLock()
	n.SortOrder = len(s.trees[treeID].children[newParentID])
	s.mu.RUnlock()
	if err := s.SaveNode(ctx, n); err != nil {
		return nil, err
	}
	return s.Node(ctx, treeID, nodeID)
}

// DeleteNode removes a node and all its descendants, depth-first, and
// returns the removed nodes. Callers clean up index entries and atoms.
func (s *TreeStore) DeleteNode(ctx context.Context, treeID, nodeID string) ([]*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.state(ctx, treeID)
	if err != nil {
		return nil, err
	}
	n, ok := st.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, domain.ErrNotFound)
	}
	if n.IsRoot() {
		return nil, domain.Violation(nodeID, "the tree root cannot be deleted")
	}

	var removed []*domain.Node
	var remove func(n *domain.Node) error
	remove = func(n *domain.Node) error {
		for _, c := range st.childNodes(n.ID) {
			if err := remove(c); err != nil {
				return err
			}
		}
		if err := s.storage.Delete(ctx, nodePath(treeID, n.ID)); err != nil {
			return fmt.Errorf("deleting node %s: %w", n.ID, err)
		}
		st.unlink(n)
		delete(st.nodes, n.ID)
		removed = append(removed, cloneNode(n))
		return nil
	}
	if err := remove(n); err != nil {
		return removed, err
	}
	return removed, nil
}

// Group creates a folder titled title under anchorID and moves the members
// into it. Members are checked one by one: a member that does not exist,
// is a fragment, would form a cycle, or does not match the kind of the
// first accepted member is reported in failed and left in place. The whole
// call is rejected when the remaining children of the anchor would mix with
// the new folder.
func (s *TreeStore) Group(
	ctx context.Context, treeID, anchorID, title, gist string, memberIDs []string,
) (folder *domain.Node, moved []string, failed map[string]string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.state(ctx, treeID)
	if err != nil {
		return nil, nil, nil, err
	}
	anchor, ok := st.nodes[anchorID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("node %s: %w", anchorID, domain.ErrNotFound)
	}
	if anchor.Type != domain.NodeFolder {
		return nil, nil, nil, domain.Violation(anchorID, "clusters must be anchored at a folder")
	}

	failed = make(map[string]string)
	var accepted []*domain.Node
	memberSet := make(map[string]bool)
	wantFolder := false
	for _, id := range memberIDs {
		n, ok := st.nodes[id]
		switch {
		case memberSet[id]:
			continue
		case !ok:
			failed[id] = "not found"
			continue
		case n.IsRoot():
			failed[id] = "the tree root cannot be moved"
			continue
		case n.Type == domain.NodeFragment:
			failed[id] = "fragments stay under their document"
			continue
		case st.isDescendant(anchorID, id):
			failed[id] = "cannot move a node under itself or its descendants"
			continue
		}
		isFolder := n.Type == domain.NodeFolder
		if len(accepted) == 0 {
			wantFolder = isFolder
		} else if isFolder != wantFolder {
			failed[id] = fmt.Sprintf("%s cannot share a folder with the other members", n.Type)
			continue
		}
		memberSet[id] = true
		accepted = append(accepted, n)
	}
	if len(accepted) == 0 {
		return nil, nil, failed, domain.Violation(anchorID, "no node could be clustered")
	}
	for _, sib := range st.childNodes(anchorID) {
		if sib.Type != domain.NodeFolder && !memberSet[sib.ID] {
			return nil, nil, failed, domain.Violation(anchorID,
				"content %s would share a parent with the new folder", sib.ID)
		}
	}

	now := s.now()
	folder = &domain.Node{
		ID:        uuid.New().String(),
		TreeID:    treeID,
		ParentID:  domain.StringPtr(anchorID),
		Type:      domain.NodeFolder,
		Title:     title,
		Gist:      gist,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := folder.Validate(); err != nil {
		return nil, nil, failed, err
	}
	folder.SortOrder = len(st.children[anchorID])
	if err := s.writeNode(ctx, folder); err != nil {
		return nil, nil, failed, err
	}
	st.nodes[folder.ID] = folder
	st.link(folder)

	for i, n := range accepted {
		updated := cloneNode(n)
		updated.ParentID = domain.StringPtr(folder.ID)
		updated.SortOrder = i
		updated.UpdatedAt = now
		if err := s.writeNode(ctx, updated); err != nil {
			return cloneNode(folder), moved, failed, err
		}
		st.unlink(n)
		st.nodes[n.ID] = updated
		st.link(updated)
		moved = append(moved, n.ID)
	}
	return cloneNode(folder), moved, failed, nil
}

// Verify reports orphans, cycles and invariant violations across every
// stored node of the tree.
func (s *TreeStore) Verify(ctx context.Context, treeID string) (orphans, violations []string, err error) {
	st, unlock, err := s.readState(ctx, treeID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	ids := make([]string, 0, len(st.nodes))
	for id := range st.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if _, ok := st.nodes[st.tree.RootNodeID]; !ok {
		violations = append(violations, fmt.Sprintf("root %s is missing", st.tree.RootNodeID))
	}
	for _, id := range ids {
		n := st.nodes[id]
		if err := n.Validate(); err != nil {
			violations = append(violations, err.Error())
		}
		if n.IsRoot() {
			if id != st.tree.RootNodeID {
				orphans = append(orphans, id)
			}
			continue
		}
		if _, ok := st.nodes[n.Parent()]; !ok {
			orphans = append(orphans, id)
			continue
		}
		if st.isDescendant(n.Parent(), id) {
			violations = append(violations, domain.Violation(id, "node is its own ancestor").Error())
			continue
		}
		if err := checkPlacement(st, n.Parent(), n.Type, id); err != nil {
			var se *domain.StructuralError
			if errors.As(err, &se) {
				violations = append(violations, fmt.Sprintf("%s (child %s)", err.Error(), id))
			}
		}
	}
	return orphans, violations, nil
}
