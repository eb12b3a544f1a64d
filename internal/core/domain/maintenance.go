package domain

// IngestResult reports the outcome of an ingestion call. Warnings are
// non-fatal problems such as a failed indexing step.
type IngestResult struct {
	Node      *Node    `json:"node"`
	Fragments []*Node  `json:"fragments,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`

	// Updated is set when an existing document was replaced instead of a
	// new one being created. Unchanged means its content already matched.
	Updated   bool `json:"updated,omitempty"`
	Unchanged bool `json:"unchanged,omitempty"`
}

// ClusterResult reports per-node outcomes of a cluster operation.
type ClusterResult struct {
	FolderID string            `json:"folderId,omitempty"`
	Moved    []string          `json:"moved"`
	Failed   map[string]string `json:"failed,omitempty"`
	Summary  string            `json:"summary"`
}

// OperationKind names a maintenance operation.
type OperationKind string

// Maintenance operations.
const (
	OpCluster OperationKind = "cluster"
	OpPrune   OperationKind = "prune"
	OpRename  OperationKind = "rename"
	OpMove    OperationKind = "move"
)

// IsValid returns true if the operation kind is recognised.
func (k OperationKind) IsValid() bool {
	switch k {
	case OpCluster, OpPrune, OpRename, OpMove:
		return true
	default:
		return false
	}
}

// Operation is a single maintenance step, as proposed by an audit.
type Operation struct {
	Kind     OperationKind `json:"action"`
	NodeIDs  []string      `json:"nodeIds,omitempty"`
	Name     string        `json:"name,omitempty"`
	TargetID string        `json:"targetId,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// AuditReport is the oracle's structural review of a tree.
type AuditReport struct {
	TreeID     string      `json:"treeId"`
	Operations []Operation `json:"operations"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// VerifyReport lists integrity problems found in a tree.
type VerifyReport struct {
	TreeID         string   `json:"treeId"`
	NodeCount      int      `json:"nodeCount"`
	Orphans        []string `json:"orphans,omitempty"`
	MissingContent []string `json:"missingContent,omitempty"`
	Violations     []string `json:"violations,omitempty"`
	Unindexed      []string `json:"unindexed,omitempty"`
}

// OK reports whether no problems were found.
func (r *VerifyReport) OK() bool {
	return len(r.Orphans) == 0 && len(r.MissingContent) == 0 && len(r.Violations) == 0
}

// ResetReport describes what a reset removed.
type ResetReport struct {
	TreeID       string `json:"treeId"`
	NodesRemoved int    `json:"nodesRemoved"`
	AtomsPruned  int    `json:"atomsPruned"`
}
