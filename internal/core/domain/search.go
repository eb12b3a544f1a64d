package domain

// Resolution selects how much of a retrieved node is returned.
type Resolution string

const (
	// ResolutionGist returns only the node gist.
	ResolutionGist Resolution = "gist"

	// ResolutionSummary returns the gist plus an excerpt of the content.
	ResolutionSummary Resolution = "summary"

	// ResolutionFull returns the full content payload.
	ResolutionFull Resolution = "full"
)

// IsValid returns true if the resolution is recognised.
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionGist, ResolutionSummary, ResolutionFull:
		return true
	default:
		return false
	}
}

// RetrieveOptions configures a single query.
type RetrieveOptions struct {
	// MaxDepth bounds how far drilling descends from each starting node.
	MaxDepth int

	// Resolution is the detail level of returned content.
	Resolution Resolution

	// TopK is the number of vector hits considered for seeding.
	TopK int

	// ForceRootScoring asks the oracle to score the root like any other node.
	ForceRootScoring bool
}

// RetrievedNode is one relevant node returned by a query.
type RetrievedNode struct {
	NodeID  string   `json:"nodeId"`
	Title   string   `json:"title"`
	Type    NodeType `json:"type"`
	Gist    string   `json:"gist"`
	Content string   `json:"content"`
	Score   float64  `json:"score"`
	Reason  string   `json:"reason,omitempty"`
}

// RetrieveResult holds ranked results and the ordered list of visited nodes.
type RetrieveResult struct {
	Query   string          `json:"query"`
	TreeID  string          `json:"treeId"`
	Results []RetrievedNode `json:"results"`
	Trail   []string        `json:"trail"`
}

// Answer is an oracle-synthesised reply with numbered citations.
type Answer struct {
	Query    string          `json:"query"`
	Text     string          `json:"answer"`
	Sources  []RetrievedNode `json:"sources"`
	Warnings []string        `json:"warnings,omitempty"`
}
