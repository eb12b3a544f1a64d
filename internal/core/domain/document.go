package domain

import (
	"strings"
	"time"
)

// NodeType identifies the kind of a tree node.
type NodeType string

const (
	// NodeFolder groups other nodes and never carries content.
	NodeFolder NodeType = "folder"

	// NodeDocument carries content and may hold fragment children.
	NodeDocument NodeType = "document"

	// NodeFragment carries content and never has children.
	NodeFragment NodeType = "fragment"
)

// IsValid returns true if the node type is recognised.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeFolder, NodeDocument, NodeFragment:
		return true
	default:
		return false
	}
}

// IsContent reports whether nodes of this type carry a content atom.
func (t NodeType) IsContent() bool {
	return t == NodeDocument || t == NodeFragment
}

// Tree is a named knowledge hierarchy with a single root folder.
type Tree struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// OrganizingPrinciple is free-text guidance used for placement and summaries.
	OrganizingPrinciple string `json:"organizingPrinciple"`

	RootNodeID string    `json:"rootNodeId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Node is a typed element of a tree.
type Node struct {
	ID       string   `json:"id"`
	TreeID   string   `json:"treeId"`
	ParentID *string  `json:"parentId"`
	Type     NodeType `json:"type"`
	Title    string   `json:"title"`

	// Gist is a short semantic summary of the node.
	Gist string `json:"gist"`

	// ContentID references the current atom; set on documents and fragments only.
	ContentID string `json:"contentId,omitempty"`

	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Parent returns the parent id or "" for the root.
func (n *Node) Parent() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// Validate checks the per-node invariants: known type, non-empty title and
// gist, and content references only on content-bearing nodes.
func (n *Node) Validate() error {
	if !n.Type.IsValid() {
		return Violation(n.ID, "unknown node type %q", n.Type)
	}
	if strings.TrimSpace(n.Title) == "" {
		return Violation(n.ID, "title is empty")
	}
	if strings.TrimSpace(n.Gist) == "" {
		return Violation(n.ID, "gist is empty")
	}
	if n.Type == NodeFolder && n.ContentID != "" {
		return Violation(n.ID, "folders cannot carry content")
	}
	if n.Type.IsContent() && n.ContentID == "" {
		return Violation(n.ID, "%s has no content reference", n.Type)
	}
	return nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
