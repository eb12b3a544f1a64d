package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// Ensure Navigator implements the interface.
var _ driving.RetrievalService = (*Navigator)(nil)

// Drilling phases passed to the branch prompt.
const (
	phaseOrientation = "orientation"
	phaseTargeting   = "targeting"

	summaryExcerpt   = 500
	relevanceExcerpt = 1500
)

var phaseGuidance = map[string]string{
	phaseOrientation: "Select every child that could plausibly lead to relevant material. Breadth is encouraged.",
	phaseTargeting:   "Select only the children that most directly address the query. Be narrow.",
}

// Navigator is the query router. Each query runs vector seeding, a map
// scan over the rendered tree, then oracle-guided drilling from every
// candidate.
type Navigator struct {
	stores   *Stores
	oracle   driven.Oracle
	metrics  driven.Metrics

	mu       sync.RWMutex
	settings domain.RetrievalSettings
}

// NewNavigator creates a query router.
func NewNavigator(
	stores *Stores, oracle driven.Oracle, settings domain.RetrievalSettings, metrics driven.Metrics,
) *Navigator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Navigator{
		stores:   stores,
		oracle:   oracle,
		metrics:  metrics,
		settings: settings,
	}
}

// UpdateSettings replaces the retrieval defaults. Queries already running
// keep the options they started with.
func (n *Navigator) UpdateSettings(settings domain.RetrievalSettings) {
	n.mu.Lock()
	n.settings = settings
	n.mu.Unlock()
}

func (n *Navigator) config() domain.RetrievalSettings {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.settings
}

// query is the per-call traversal state.
type query struct {
	tree  *domain.Tree
	text  string
	opts  domain.RetrieveOptions
	limit int

	mu      sync.Mutex
	visited map[string]bool
	trail   []string
	results map[string]domain.RetrievedNode
	order   []string
}

// visit atomically marks nodeID visited and reports whether this call did so.
func (q *query) visit(nodeID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.visited[nodeID] {
		return false
	}
	q.visited[nodeID] = true
	q.trail = append(q.trail, nodeID)
	return true
}

func (q *query) isVisited(nodeID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.visited[nodeID]
}

func (q *query) add(r domain.RetrievedNode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.results[r.NodeID]; ok && existing.Score >= r.Score {
		return
	}
	if _, ok := q.results[r.NodeID]; !ok {
		q.order = append(q.order, r.NodeID)
	}
	q.results[r.NodeID] = r
}

func (q *query) has(nodeID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.results[nodeID]
	return ok
}

func (n *Navigator) withDefaults(opts domain.RetrieveOptions) domain.RetrieveOptions {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = n.config().MaxDepth
	}
	if opts.TopK <= 0 {
		opts.TopK = n.config().TopK
	}
	if !opts.Resolution.IsValid() {
		opts.Resolution = n.config().Resolution
	}
	if !opts.Resolution.IsValid() {
		opts.Resolution = domain.ResolutionFull
	}
	return opts
}

// Retrieve returns the nodes relevant to the query, best first, with the
// ordered trail of visited node ids.
func (n *Navigator) Retrieve(
	ctx context.Context, treeID, text string, opts domain.RetrieveOptions,
) (*domain.RetrieveResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("query is empty: %w", domain.ErrInvalidInput)
	}
	tree, err := n.stores.Trees.Tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	logger.Section("Retrieve")
	logger.Debug("Query: %q on tree %s", text, treeID)

	limit := n.config().Concurrency
	if limit < 1 {
		limit = 1
	}
	q := &query{
		tree:    tree,
		text:    text,
		opts:    n.withDefaults(opts),
		limit:   limit,
		visited: make(map[string]bool),
		results: make(map[string]domain.RetrievedNode),
	}

	// Phase 1: vector seeding.
	seeds := n.seed(ctx, q)
	// Phase 2: map scan.
	scanned := n.scan(ctx, q)

	candidates := make([]string, 0, len(seeds)+len(scanned))
	seen := make(map[string]bool)
	for _, id := range append(append([]string{}, seeds...), scanned...) {
		if !seen[id] {
			seen[id] = true
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		logger.Debug("No candidates, drilling from the root")
		candidates = []string{tree.RootNodeID}
	}

	// Phase 3: precision drilling.
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := n.drill(ctx, q, id, 0); err != nil {
			return nil, err
		}
	}

	// Siblings of seeds that proved relevant are scored too.
	for _, id := range seeds {
		if !q.has(id) {
			continue
		}
		node, err := n.stores.Trees.Node(ctx, treeID, id)
		if err != nil || node.IsRoot() {
			continue
		}
		siblings, err := n.stores.Trees.Children(ctx, treeID, node.Parent())
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			if q.isVisited(sib.ID) {
				continue
			}
			if err := n.drill(ctx, q, sib.ID, q.opts.MaxDepth); err != nil {
				return nil, err
			}
		}
	}

	result := &domain.RetrieveResult{
		Query:   text,
		TreeID:  treeID,
		Results: make([]domain.RetrievedNode, 0, len(q.order)),
		Trail:   q.trail,
	}
	for _, id := range q.order {
		result.Results = append(result.Results, q.results[id])
	}
	sort.SliceStable(result.Results, func(i, j int) bool {
		return result.Results[i].Score > result.Results[j].Score
	})
	n.metrics.ObserveRetrieval(time.Since(start), len(result.Results), len(q.trail))
	logger.Info("Retrieved %d nodes after visiting %d", len(result.Results), len(q.trail))
	return result, nil
}

// seed runs the vector search and keeps hits above the similarity floor.
func (n *Navigator) seed(ctx context.Context, q *query) []string {
	hits, err := n.stores.Index.Search(ctx, q.tree.ID, q.text, q.opts.TopK)
	if err != nil {
		logger.Warn("Vector seeding skipped: %v", err)
		return nil
	}
	var ids []string
	for _, h := range hits {
		if h.Score < n.config().SimilarityFloor {
			continue
		}
		if _, err := n.stores.Trees.Node(ctx, q.tree.ID, h.NodeID); err != nil {
			continue
		}
		ids = append(ids, h.NodeID)
	}
	logger.Debug("Vector seeds: %v", ids)
	return ids
}

// scan asks the oracle which nodes of the rendered map look promising.
// Failure skips the phase.
func (n *Navigator) scan(ctx context.Context, q *query) []string {
	treeMap, err := RenderMap(ctx, n.stores.Trees, q.tree.ID)
	if err != nil {
		logger.Warn("Map scan skipped: %v", err)
		return nil
	}
	var reply struct {
		NodeIDs []string `json:"nodeIds"`
	}
	if err := completeJSON(ctx, n.oracle, driven.PromptMapScan, map[string]string{
		"query": q.text,
		"map":   treeMap,
	}, &reply); err != nil {
		logger.Warn("Map scan skipped: %v", err)
		return nil
	}
	var ids []string
	for _, id := range reply.NodeIDs {
		if _, err := n.stores.Trees.Node(ctx, q.tree.ID, id); err == nil {
			ids = append(ids, id)
		}
	}
	logger.Debug("Map scan candidates: %v", ids)
	return ids
}

// drill scores a node and descends into the children the oracle selects.
// Depth is relative to where drilling started.
func (n *Navigator) drill(ctx context.Context, q *query, nodeID string, depth int) error {
	if !q.visit(nodeID) {
		return nil
	}
	node, err := n.stores.Trees.Node(ctx, q.tree.ID, nodeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	if !node.IsRoot() || q.opts.ForceRootScoring {
		if err := n.score(ctx, q, node); err != nil {
			return err
		}
	}
	if depth >= q.opts.MaxDepth {
		return nil
	}
	children, err := n.stores.Trees.Children(ctx, q.tree.ID, nodeID)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	selected := n.branch(ctx, q, node, children, depth)
	if len(selected) == 0 && len(children) == 1 {
		selected = []string{children[0].ID}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.limit)
	for _, id := range selected {
		g.Go(func() error {
			return n.drill(gctx, q, id, depth+1)
		})
	}
	return g.Wait()
}

// score asks the oracle how relevant a node is and records it as a result
// when it reaches the threshold. Oracle failure scores zero.
func (n *Navigator) score(ctx context.Context, q *query, node *domain.Node) error {
	var payload string
	if node.Type.IsContent() {
		atom, err := n.stores.Content.Get(ctx, node.ContentID)
		switch {
		case err == nil:
			payload = atom.Payload
		case errors.Is(err, domain.ErrNotFound):
			logger.Warn("Node %s references missing atom %s", node.ID, node.ContentID)
		default:
			return err
		}
	}

	var reply struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := completeJSON(ctx, n.oracle, driven.PromptRelevance, map[string]string{
		"query":   q.text,
		"title":   node.Title,
		"gist":    node.Gist,
		"excerpt": truncate(payload, relevanceExcerpt),
	}, &reply); err != nil {
		logger.Warn("Relevance scoring for %s failed, scoring 0: %v", node.ID, err)
		return nil
	}
	if reply.Score < n.config().RelevanceThresh {
		return nil
	}

	r := domain.RetrievedNode{
		NodeID: node.ID,
		Title:  node.Title,
		Type:   node.Type,
		Gist:   node.Gist,
		Score:  reply.Score,
		Reason: reply.Reason,
	}
	switch q.opts.Resolution {
	case domain.ResolutionGist:
	case domain.ResolutionSummary:
		r.Content = node.Gist
		if payload != "" {
			r.Content += "\n\n" + truncate(payload, summaryExcerpt)
		}
	default:
		r.Content = payload
		if r.Content == "" {
			r.Content = node.Gist
		}
	}
	q.add(r)
	return nil
}

// branch presents the children to the oracle and returns the ids it picks.
func (n *Navigator) branch(
	ctx context.Context, q *query, parent *domain.Node, children []*domain.Node, depth int,
) []string {
	phase := phaseTargeting
	if depth < n.config().OrientationDepth {
		phase = phaseOrientation
	}
	var b strings.Builder
	valid := make(map[string]bool, len(children))
	for _, c := range children {
		valid[c.ID] = true
		fmt.Fprintf(&b, "%s | [%s] %s: %s\n", c.ID, c.Type, c.Title, c.Gist)
	}

	var reply struct {
		Selected []string `json:"selected"`
	}
	if err := completeJSON(ctx, n.oracle, driven.PromptBranch, map[string]string{
		"query":    q.text,
		"phase":    phase,
		"guidance": phaseGuidance[phase],
		"parent":   parent.Title + ": " + parent.Gist,
		"children": b.String(),
	}, &reply); err != nil {
		logger.Warn("Branch selection at %s failed: %v", parent.ID, err)
		return nil
	}
	var ids []string
	seen := make(map[string]bool)
	for _, id := range reply.Selected {
		if valid[id] && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Ask retrieves relevant nodes and asks the oracle for an answer citing
// them as [n]. When synthesis fails the sources are returned with an empty
// answer and a warning.
func (n *Navigator) Ask(ctx context.Context, treeID, text string, opts domain.RetrieveOptions) (*domain.Answer, error) {
	if !opts.Resolution.IsValid() {
		opts.Resolution = domain.ResolutionFull
	}
	res, err := n.Retrieve(ctx, treeID, text, opts)
	if err != nil {
		return nil, err
	}
	answer := &domain.Answer{Query: res.Query, Sources: res.Results}
	if len(res.Results) == 0 {
		answer.Warnings = append(answer.Warnings, "no relevant nodes found")
		return answer, nil
	}

	var b strings.Builder
	for i, r := range res.Results {
		b.WriteString("[" + strconv.Itoa(i+1) + "] " + r.Title + "\n")
		content := r.Content
		if content == "" {
			content = r.Gist
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	reply, err := n.oracle.Complete(ctx, driven.PromptAnswer, map[string]string{
		"query":   res.Query,
		"sources": b.String(),
	}, driven.OracleOptions{})
	if err != nil {
		logger.Warn("Answer synthesis failed: %v", err)
		answer.Warnings = append(answer.Warnings, fmt.Sprintf("answer synthesis failed: %v", err))
		return answer, nil
	}
	answer.Text = strings.TrimSpace(reply)
	return answer, nil
}

// RenderMap renders the tree as indented "id | [type] title: gist" lines.
func RenderMap(ctx context.Context, trees *TreeStore, treeID string) (string, error) {
	var b strings.Builder
	err := trees.Walk(ctx, treeID, func(n *domain.Node, depth int) bool {
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&b, "%s | [%s] %s: %s\n", n.ID, n.Type, n.Title, n.Gist)
		return true
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
