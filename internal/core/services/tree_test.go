package services

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// treeFixture is a tree with two folders, one holding a document with one
// fragment:
//
//	root
//	├── science
//	│   └── optics (doc)
//	│       └── scattering (fragment)
//	└── misc
type treeFixture struct {
	store   *TreeStore
	tree    *domain.Tree
	science *domain.Node
	misc    *domain.Node
	doc     *domain.Node
	frag    *domain.Node
}

func newTreeFixture(t *testing.T) *treeFixture {
	t.Helper()
	ctx := context.Background()
	store := NewTreeStore(memory.NewStorage())

	tree, err := store.CreateTree(ctx, "kb", "Knowledge", "by discipline")
	require.NoError(t, err)
	science, err := store.CreateFolder(ctx, "kb", tree.RootNodeID, "Science", "Natural sciences")
	require.NoError(t, err)
	misc, err := store.CreateFolder(ctx, "kb", tree.RootNodeID, "Misc", "Everything else")
	require.NoError(t, err)
	doc, err := store.CreateDocument(ctx, "kb", science.ID, "Optics", "Light and lenses", "atom-1")
	require.NoError(t, err)
	frag, err := store.CreateFragment(ctx, "kb", doc.ID, "Scattering", "Why the sky is blue", "atom-2")
	require.NoError(t, err)

	return &treeFixture{store: store, tree: tree, science: science, misc: misc, doc: doc, frag: frag}
}

func TestTreeStore_CreateTree(t *testing.T) {
	ctx := context.Background()
	store := NewTreeStore(memory.NewStorage())

	tree, err := store.CreateTree(ctx, "notes", "Notes", "")
	require.NoError(t, err)
	assert.Equal(t, "notes-root", tree.RootNodeID)

	root, err := store.Node(ctx, "notes", tree.RootNodeID)
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Equal(t, domain.NodeFolder, root.Type)
	assert.Equal(t, "Notes", root.Gist)

	_, err = store.CreateTree(ctx, "notes", "Again", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = store.CreateTree(ctx, "a/b", "Bad", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = store.CreateTree(ctx, "", " ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTreeStore_ReloadsFromStorage(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewStorage()
	first := NewTreeStore(storage)
	tree, err := first.CreateTree(ctx, "kb", "Knowledge", "p")
	require.NoError(t, err)
	folder, err := first.CreateFolder(ctx, "kb", tree.RootNodeID, "A", "a")
	require.NoError(t, err)

	second := NewTreeStore(storage)
	kids, err := second.Children(ctx, "kb", tree.RootNodeID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, folder.ID, kids[0].ID)

	trees, err := second.Trees(ctx)
	require.NoError(t, err)
	require.Len(t, trees, 1)
	assert.Equal(t, "Knowledge", trees[0].Name)
}

func TestTreeStore_NodeReturnsCopy(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	n, err := f.store.Node(ctx, "kb", f.doc.ID)
	require.NoError(t, err)
	n.Title = "changed"

	again, err := f.store.Node(ctx, "kb", f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Optics", again.Title)
}

func TestTreeStore_PlacementRules(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		parent string
		typ    domain.NodeType
	}{
		{"folder under folder holding content", f.science.ID, domain.NodeFolder},
		{"document under non-leaf folder", f.tree.RootNodeID, domain.NodeDocument},
		{"fragment under folder", f.misc.ID, domain.NodeFragment},
		{"document under document", f.doc.ID, domain.NodeDocument},
		{"anything under fragment", f.frag.ID, domain.NodeFragment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.store.CheckPlacement(ctx, "kb", tt.parent, tt.typ)
			assert.ErrorIs(t, err, domain.ErrStructuralViolation)
		})
	}

	assert.NoError(t, f.store.CheckPlacement(ctx, "kb", f.misc.ID, domain.NodeDocument))
	assert.NoError(t, f.store.CheckPlacement(ctx, "kb", f.misc.ID, domain.NodeFolder))
	assert.ErrorIs(t, f.store.CheckPlacement(ctx, "kb", "ghost", domain.NodeFolder), domain.ErrNotFound)
}

func TestTreeStore_CreateNodeValidates(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateFolder(ctx, "kb", f.misc.ID, "", "gist")
	assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	_, err = f.store.CreateDocument(ctx, "kb", f.misc.ID, "Doc", "gist", "")
	assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	_, err = f.store.CreateNode(ctx, &domain.Node{TreeID: "kb", Type: domain.NodeFolder, Title: "x", Gist: "x"})
	assert.ErrorIs(t, err, domain.ErrStructuralViolation)
}

func TestTreeStore_ChildrenOrder(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	kids, err := f.store.Children(ctx, "kb", f.tree.RootNodeID)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, f.science.ID, kids[0].ID)
	assert.Equal(t, f.misc.ID, kids[1].ID)
}

func TestTreeStore_MoveNode(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	moved, err := f.store.MoveNode(ctx, "kb", f.doc.ID, f.misc.ID)
	require.NoError(t, err)
	assert.Equal(t, f.misc.ID, moved.Parent())

	kids, err := f.store.Children(ctx, "kb", f.misc.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, f.doc.ID, kids[0].ID)

	frags, err := f.store.Children(ctx, "kb", f.doc.ID)
	require.NoError(t, err)
	assert.Len(t, frags, 1)
}

func TestTreeStore_MoveNodeRejects(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	sub, err := f.store.CreateFolder(ctx, "kb", f.misc.ID, "Sub", "sub")
	require.NoError(t, err)

	t.Run("cycle", func(t *testing.T) {
		_, err := f.store.MoveNode(ctx, "kb", f.misc.ID, sub.ID)
		assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	})
	t.Run("onto itself", func(t *testing.T) {
		_, err := f.store.MoveNode(ctx, "kb", f.misc.ID, f.misc.ID)
		assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	})
	t.Run("content into non-leaf folder", func(t *testing.T) {
		_, err := f.store.MoveNode(ctx, "kb", f.doc.ID, f.tree.RootNodeID)
		assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	})
	t.Run("folder next to content", func(t *testing.T) {
		_, err := f.store.MoveNode(ctx, "kb", sub.ID, f.science.ID)
		assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	})
	t.Run("fragment out of its document", func(t *testing.T) {
		_, err := f.store.MoveNode(ctx, "kb", f.frag.ID, sub.ID)
		assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	})
	t.Run("root", func(t *testing.T) {
		_, err := f.store.MoveNode(ctx, "kb", f.tree.RootNodeID, f.misc.ID)
		assert.ErrorIs(t, err, domain.ErrStructuralViolation)
	})

	orphans, violations, err := f.store.Verify(ctx, "kb")
	require.NoError(t, err)
	assert.Empty(t, orphans)
	assert.Empty(t, violations)
}

func TestTreeStore_SaveNodeTypeChange(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	doc, err := f.store.Node(ctx, "kb", f.doc.ID)
	require.NoError(t, err)
	doc.Type = domain.NodeFragment
	assert.ErrorIs(t, f.store.SaveNode(ctx, doc), domain.ErrStructuralViolation)

	root, err := f.store.Node(ctx, "kb", f.tree.RootNodeID)
	require.NoError(t, err)
	root.Title = "Renamed root"
	require.NoError(t, f.store.SaveNode(ctx, root))
}

func TestTreeStore_DeleteNodeCascades(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	removed, err := f.store.DeleteNode(ctx, "kb", f.science.ID)
	require.NoError(t, err)
	require.Len(t, removed, 3)
	// Depth-first: descendants before their parent.
	assert.Equal(t, f.frag.ID, removed[0].ID)
	assert.Equal(t, f.science.ID, removed[2].ID)

	_, err = f.store.Node(ctx, "kb", f.doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.store.DeleteNode(ctx, "kb", f.tree.RootNodeID)
	assert.ErrorIs(t, err, domain.ErrStructuralViolation)
}

func TestTreeStore_WalkAndLeafFolders(t *testing.T) {
	f := newTreeFixture(t)
	ctx := context.Background()

	nodes, err := f.store.Nodes(ctx, "kb")
	require.NoError(t, err)
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{f.tree.RootNodeID, f.science.ID, f.doc.ID, f.frag.ID, f.misc.ID}, ids)

	var depths []int
	require.NoError(t, f.store.Walk(ctx, "kb", func(n *domain.Node, depth int) bool {
		depths = append(depths, depth)
		return n.ID != f.science.ID
	}))
	assert.Equal(t, []int{0, 1, 1}, depths)

	leaves, err := f.store.LeafFolders(ctx, "kb")
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, f.science.ID, leaves[0].ID)
	assert.Equal(t, f.misc.ID, leaves[1].ID)
}

func TestTreeStore_Group(t *testing.T) {
	ctx := context.Background()
	store := NewTreeStore(memory.NewStorage())
	tree, err := store.CreateTree(ctx, "kb", "Knowledge", "p")
	require.NoError(t, err)
	inbox, err := store.CreateFolder(ctx, "kb", tree.RootNodeID, "Inbox", "unsorted")
	require.NoError(t, err)

	var docs []string
	for _, title := range []string{"Rain", "Snow", "Hail"} {
		d, err := store.CreateDocument(ctx, "kb", inbox.ID, title, title+" notes", "atom-"+title)
		require.NoError(t, err)
		docs = append(docs, d.ID)
	}

	t.Run("remaining content rejects the whole call", func(t *testing.T) {
		_, _, _, err := store.Group(ctx, "kb", inbox.ID, "Weather", "w", docs[:2])
		assert.ErrorIs(t, err, domain.ErrStructuralViolation)

		kids, err := store.Children(ctx, "kb", inbox.ID)
		require.NoError(t, err)
		assert.Len(t, kids, 3)
	})

	t.Run("all content moves", func(t *testing.T) {
		folder, moved, failed, err := store.Group(ctx, "kb", inbox.ID, "Weather", "w",
			append([]string{"ghost"}, docs...))
		require.NoError(t, err)
		assert.Equal(t, docs, moved)
		assert.Equal(t, map[string]string{"ghost": "not found"}, failed)

		kids, err := store.Children(ctx, "kb", inbox.ID)
		require.NoError(t, err)
		require.Len(t, kids, 1)
		assert.Equal(t, folder.ID, kids[0].ID)

		inside, err := store.Children(ctx, "kb", folder.ID)
		require.NoError(t, err)
		assert.Len(t, inside, 3)
	})

	orphans, violations, err := store.Verify(ctx, "kb")
	require.NoError(t, err)
	assert.Empty(t, orphans)
	assert.Empty(t, violations)
}

func TestTreeStore_VerifyFindsOrphans(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewStorage()
	store := NewTreeStore(storage)
	tree, err := store.CreateTree(ctx, "kb", "Knowledge", "p")
	require.NoError(t, err)
	_, err = store.CreateFolder(ctx, "kb", tree.RootNodeID, "A", "a")
	require.NoError(t, err)

	require.NoError(t, storage.Write(ctx, nodePath("kb", "lost"),
		[]byte(`{"id":"lost","treeId":"kb","parentId":"gone","type":"folder","title":"Lost","gist":"lost"}`)))

	fresh := NewTreeStore(storage)
	orphans, violations, err := fresh.Verify(ctx, "kb")
	require.NoError(t, err)
	assert.Equal(t, []string{"lost"}, orphans)
	assert.Empty(t, violations)
}

func TestTreeStore_RandomCreateMoveKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewStorage()
	store := NewTreeStore(storage)
	tree, err := store.CreateTree(ctx, "kb", "Knowledge", "p")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	applied := 0
	for step := 0; step < 300; step++ {
		nodes, err := store.Nodes(ctx, "kb")
		require.NoError(t, err)
		pick := func() *domain.Node { return nodes[rng.Intn(len(nodes))] }
		title := fmt.Sprintf("n%d", step)

		var opErr error
		switch rng.Intn(4) {
		case 0:
			_, opErr = store.CreateFolder(ctx, "kb", pick().ID, title, "folder")
		case 1:
			_, opErr = store.CreateDocument(ctx, "kb", pick().ID, title, "doc", "atom-"+title)
		case 2:
			_, opErr = store.CreateFragment(ctx, "kb", pick().ID, title, "frag", "atom-"+title)
		default:
			_, opErr = store.MoveNode(ctx, "kb", pick().ID, pick().ID)
		}
		if opErr != nil {
			require.ErrorIs(t, opErr, domain.ErrStructuralViolation, "step %d", step)
		} else {
			applied++
		}

		orphans, violations, err := store.Verify(ctx, "kb")
		require.NoError(t, err)
		require.Empty(t, orphans, "step %d", step)
		require.Empty(t, violations, "step %d", step)

		reachable, err := store.Nodes(ctx, "kb")
		require.NoError(t, err)
		all, err := store.AllNodes(ctx, "kb")
		require.NoError(t, err)
		require.Len(t, reachable, len(all), "step %d", step)
		require.Equal(t, tree.RootNodeID, reachable[0].ID)
	}
	assert.Positive(t, applied)

	orphans, violations, err := NewTreeStore(storage).Verify(ctx, "kb")
	require.NoError(t, err)
	assert.Empty(t, orphans)
	assert.Empty(t, violations)
}
