package driven

// PromptStore provides access to oracle prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names. Templates use text/template syntax with the
// variables listed for each.
const (
	// PromptGist summarises content. Vars: principle, title, content, max_length.
	PromptGist = "gist"

	// PromptTitle names a piece of content. Vars: content.
	PromptTitle = "title"

	// PromptPlacement picks a leaf folder for new content. Vars: principle, map, title, gist.
	PromptPlacement = "placement"

	// PromptMapScan picks promising nodes from a tree map. Vars: query, map.
	PromptMapScan = "map_scan"

	// PromptRelevance scores a node against a query. Vars: query, title, gist, excerpt.
	PromptRelevance = "relevance"

	// PromptBranch selects children to descend into. Vars: query, phase, guidance, parent, children.
	PromptBranch = "branch"

	// PromptAnswer synthesises an answer from sources. Vars: query, sources.
	PromptAnswer = "answer"

	// PromptAudit reviews tree structure. Vars: principle, map.
	PromptAudit = "audit"
)

// AllPrompts lists every prompt name the application uses.
var AllPrompts = []string{
	PromptGist, PromptTitle, PromptPlacement, PromptMapScan,
	PromptRelevance, PromptBranch, PromptAnswer, PromptAudit,
}
