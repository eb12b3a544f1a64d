package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
	"github.com/custodia-labs/fraktag/internal/logger"
	"github.com/custodia-labs/fraktag/internal/validation"
)

// Ensure IngestionService implements the interface.
var _ driving.IngestionService = (*IngestionService)(nil)

const (
	createdByIngest = "ingest"
	titleMaxLength  = 80
	excerptLength   = 2000
)

// IngestionService turns text into atoms, tree nodes and vector entries.
// Within one call the order is fixed: atom, title and gist, node, index.
type IngestionService struct {
	stores    *Stores
	oracle    driven.Oracle
	indexer   *nodeIndexer
	sectioner driven.PostProcessor
	normalise driven.NormaliserRegistry
	metrics   driven.Metrics

	mu       sync.RWMutex
	settings domain.IngestionSettings
}

// IngestionOption configures an IngestionService.
type IngestionOption func(*IngestionService)

// WithSectioner sets the structural splitter used for split ingestion.
func WithSectioner(p driven.PostProcessor) IngestionOption {
	return func(s *IngestionService) { s.sectioner = p }
}

// WithNormalisers sets the registry that extracts text from raw file
// bytes. Without it raw bytes are read as UTF-8 text.
func WithNormalisers(r driven.NormaliserRegistry) IngestionOption {
	return func(s *IngestionService) { s.normalise = r }
}

// WithIngestionMetrics sets the metrics sink.
func WithIngestionMetrics(m driven.Metrics) IngestionOption {
	return func(s *IngestionService) { s.metrics = m }
}

// NewIngestionService creates an ingestion service. The pipeline chunks
// content for indexing.
func NewIngestionService(
	stores *Stores,
	oracle driven.Oracle,
	pipeline driven.PostProcessorPipeline,
	settings domain.IngestionSettings,
	opts ...IngestionOption,
) *IngestionService {
	s := &IngestionService{
		stores:   stores,
		oracle:   oracle,
		indexer:  &nodeIndexer{index: stores.Index, pipeline: pipeline},
		metrics:  NopMetrics{},
		settings: settings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateSettings replaces the ingestion settings used by later calls.
func (s *IngestionService) UpdateSettings(settings domain.IngestionSettings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

func (s *IngestionService) config() domain.IngestionSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// IngestDocument stores the text and creates a document node under the
// requested folder, or under a suggested leaf folder when none is given.
func (s *IngestionService) IngestDocument(ctx context.Context, req driving.IngestRequest) (*domain.IngestResult, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	req, err := s.extract(ctx, req)
	if err != nil {
		return nil, err
	}
	unlock := s.stores.Lock(req.TreeID)
	defer unlock()

	logger.Section("Ingest")
	tree, err := s.stores.Trees.Tree(ctx, req.TreeID)
	if err != nil {
		return nil, err
	}

	if req.ReplaceBySource && req.SourceURI != "" {
		existing, err := s.documentFromSource(ctx, tree.ID, req.SourceURI)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.replace(ctx, tree, existing, req)
		}
	}

	folderID := req.FolderID
	if folderID == "" {
		folderID, err = s.suggest(ctx, tree, req.Title, req.Text)
		if err != nil {
			return nil, err
		}
		logger.Info("Placing document under suggested folder %s", folderID)
	}
	// Fail loudly on a bad placement before anything is written.
	if err := s.stores.Trees.CheckPlacement(ctx, tree.ID, folderID, domain.NodeDocument); err != nil {
		return nil, err
	}

	atom, err := s.stores.Content.Create(ctx, domain.AtomSpec{
		Payload:   req.Text,
		MediaType: req.MediaType,
		CreatedBy: createdByIngest,
		SourceURI: req.SourceURI,
		EditMode:  req.EditMode,
	})
	if err != nil {
		return nil, err
	}

	result := &domain.IngestResult{}
	title := req.Title
	if strings.TrimSpace(title) == "" {
		title = s.title(ctx, req.Text, &result.Warnings)
	}
	gist := req.Gist
	if strings.TrimSpace(gist) == "" {
		gist = s.gist(ctx, tree, title, req.Text, &result.Warnings)
	}

	doc, err := s.stores.Trees.CreateDocument(ctx, tree.ID, folderID, title, gist, atom.ID)
	if err != nil {
		return nil, err
	}
	s.metrics.IncIngested(string(domain.NodeDocument))
	result.Node = doc

	warnings, err := s.indexer.reindex(ctx, doc, req.Text)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		return result, err
	}

	if req.Split {
		if err := s.split(ctx, tree, doc, req, result); err != nil {
			return result, err
		}
	}

	if err := s.stores.Index.Save(ctx, tree.ID); err != nil {
		return result, err
	}
	logger.Info("Ingested %q as %s (%d fragments)", doc.Title, doc.ID, len(result.Fragments))
	return result, nil
}

// split creates one fragment per structural section of the request text.
// Text that does not split into at least two sections yields no fragments.
func (s *IngestionService) split(
	ctx context.Context, tree *domain.Tree, doc *domain.Node, req driving.IngestRequest, result *domain.IngestResult,
) error {
	if s.sectioner == nil {
		result.Warnings = append(result.Warnings, "split requested but no structural splitter is configured")
		return nil
	}
	sections, err := s.sectioner.Process(ctx, req.Text, nil)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("structural split failed: %v", err))
		return nil
	}
	if len(sections) < 2 {
		logger.Debug("Document %s has no accepted sections", doc.ID)
		return nil
	}
	for i, sec := range sections {
		title := sec.Title()
		if title == "" {
			title = doc.Title + " (part " + strconv.Itoa(i+1) + ")"
		}
		frag, warnings, err := s.fragment(ctx, tree, doc.ID, title, "", sec.Text, req.EditMode)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			return err
		}
		result.Fragments = append(result.Fragments, frag)
	}
	return nil
}

// extract fills Text from Raw. The normaliser's title is used when the
// request has none, and MediaType then describes the extracted text.
func (s *IngestionService) extract(ctx context.Context, req driving.IngestRequest) (driving.IngestRequest, error) {
	if req.Text != "" || len(req.Raw) == 0 {
		return req, nil
	}
	if s.normalise == nil {
		if !utf8.Valid(req.Raw) {
			return req, fmt.Errorf("%w: content is not UTF-8 text", domain.ErrInvalidInput)
		}
		req.Text = string(req.Raw)
		req.Raw = nil
		return req, nil
	}

	result, err := s.normalise.Normalise(ctx, &domain.RawDocument{
		URI:      req.SourceURI,
		MIMEType: req.MediaType,
		Content:  req.Raw,
	})
	if err != nil {
		return req, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return req, fmt.Errorf("%w: no text found in %s content", domain.ErrInvalidInput, req.MediaType)
	}
	logger.Debug("Extracted %d bytes of %s from %s", len(result.Text), result.MediaType, req.MediaType)
	req.Text = result.Text
	req.Raw = nil
	if result.MediaType != "" {
		req.MediaType = result.MediaType
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = result.Title
	}
	return req, nil
}

// CreateFragment stores the text and creates a fragment under a document.
func (s *IngestionService) CreateFragment(ctx context.Context, req driving.FragmentRequest) (*domain.IngestResult, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	unlock := s.stores.Lock(req.TreeID)
	defer unlock()

	tree, err := s.stores.Trees.Tree(ctx, req.TreeID)
	if err != nil {
		return nil, err
	}
	if err := s.stores.Trees.CheckPlacement(ctx, tree.ID, req.DocumentID, domain.NodeFragment); err != nil {
		return nil, err
	}
	title := req.Title
	var warnings []string
	if strings.TrimSpace(title) == "" {
		title = s.title(ctx, req.Text, &warnings)
	}
	frag, more, err := s.fragment(ctx, tree, req.DocumentID, title, req.Gist, req.Text, req.EditMode)
	result := &domain.IngestResult{Node: frag, Warnings: append(warnings, more...)}
	if err != nil {
		return result, err
	}
	if err := s.stores.Index.Save(ctx, tree.ID); err != nil {
		return result, err
	}
	return result, nil
}

func (s *IngestionService) fragment(
	ctx context.Context, tree *domain.Tree, documentID, title, gist, text string, mode domain.EditMode,
) (*domain.Node, []string, error) {
	atom, err := s.stores.Content.Create(ctx, domain.AtomSpec{
		Payload:   text,
		CreatedBy: createdByIngest,
		EditMode:  mode,
	})
	if err != nil {
		return nil, nil, err
	}
	var warnings []string
	if strings.TrimSpace(gist) == "" {
		gist = s.gist(ctx, tree, title, text, &warnings)
	}
	frag, err := s.stores.Trees.CreateFragment(ctx, tree.ID, documentID, title, gist, atom.ID)
	if err != nil {
		return nil, warnings, err
	}
	s.metrics.IncIngested(string(domain.NodeFragment))
	more, err := s.indexer.reindex(ctx, frag, text)
	return frag, append(warnings, more...), err
}

// UpdateNode replaces a content node's text. Editable atoms are rewritten in
// place; readonly atoms are superseded by a new version.
func (s *IngestionService) UpdateNode(ctx context.Context, treeID, nodeID, text string) (*domain.IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is empty: %w", domain.ErrInvalidInput)
	}
	unlock := s.stores.Lock(treeID)
	defer unlock()

	tree, err := s.stores.Trees.Tree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	node, err := s.stores.Trees.Node(ctx, treeID, nodeID)
	if err != nil {
		return nil, err
	}
	result, err := s.update(ctx, tree, node, text)
	if err != nil {
		return result, err
	}
	if err := s.stores.Index.Save(ctx, treeID); err != nil {
		return result, err
	}
	return result, nil
}

// update swaps the node's content, regenerates its gist and re-indexes it.
// The caller holds the tree lock and saves the index.
func (s *IngestionService) update(
	ctx context.Context, tree *domain.Tree, node *domain.Node, text string,
) (*domain.IngestResult, error) {
	if !node.Type.IsContent() {
		return nil, fmt.Errorf("%s is a %s and has no content: %w", node.ID, node.Type, domain.ErrInvalidInput)
	}
	old, err := s.stores.Content.Get(ctx, node.ContentID)
	if err != nil {
		return nil, err
	}

	var atom *domain.ContentAtom
	if old.EditMode == domain.EditModeEditable {
		atom, err = s.stores.Content.Update(ctx, old.ID, text)
	} else {
		atom, err = s.stores.Content.Create(ctx, domain.AtomSpec{
			Payload:    text,
			MediaType:  old.MediaType,
			CreatedBy:  "update",
			SourceURI:  old.SourceURI,
			EditMode:   domain.EditModeReadonly,
			Supersedes: old.ID,
		})
	}
	if err != nil {
		return nil, err
	}

	result := &domain.IngestResult{Updated: true}
	node.Gist = s.gist(ctx, tree, node.Title, text, &result.Warnings)
	node.ContentID = atom.ID
	if err := s.stores.Trees.SaveNode(ctx, node); err != nil {
		return nil, err
	}
	result.Node = node

	warnings, err := s.indexer.reindex(ctx, node, text)
	result.Warnings = append(result.Warnings, warnings...)
	return result, err
}

// documentFromSource finds the document whose current content came from
// uri, or nil when none did.
func (s *IngestionService) documentFromSource(ctx context.Context, treeID, uri string) (*domain.Node, error) {
	nodes, err := s.stores.Trees.Nodes(ctx, treeID)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Type != domain.NodeDocument || n.ContentID == "" {
			continue
		}
		atom, err := s.stores.Content.Get(ctx, n.ContentID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if atom.SourceURI == uri {
			return n, nil
		}
	}
	return nil, nil
}

// replace re-ingests req into an existing document. Unchanged content is
// left alone; a split document has its fragments rebuilt.
func (s *IngestionService) replace(
	ctx context.Context, tree *domain.Tree, doc *domain.Node, req driving.IngestRequest,
) (*domain.IngestResult, error) {
	old, err := s.stores.Content.Get(ctx, doc.ContentID)
	if err != nil {
		return nil, err
	}
	if old.ContentHash == HashPayload(req.Text) {
		logger.Debug("%s is unchanged, keeping %s", req.SourceURI, doc.ID)
		return &domain.IngestResult{Node: doc, Updated: true, Unchanged: true}, nil
	}

	result, err := s.update(ctx, tree, doc, req.Text)
	if err != nil {
		return result, err
	}
	if req.Split {
		if err := s.dropFragments(ctx, tree.ID, doc.ID); err != nil {
			return result, err
		}
		if err := s.split(ctx, tree, doc, req, result); err != nil {
			return result, err
		}
	}
	if err := s.stores.Index.Save(ctx, tree.ID); err != nil {
		return result, err
	}
	logger.Info("Updated %q (%s) from %s", doc.Title, doc.ID, req.SourceURI)
	return result, nil
}

func (s *IngestionService) dropFragments(ctx context.Context, treeID, docID string) error {
	children, err := s.stores.Trees.Children(ctx, treeID, docID)
	if err != nil {
		return err
	}
	for _, c := range children {
		removed, err := s.stores.Trees.DeleteNode(ctx, treeID, c.ID)
		if err != nil {
			return err
		}
		for _, n := range removed {
			if _, err := s.stores.Index.Remove(ctx, treeID, n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// SuggestPlacement returns the leaf folder the oracle picks for the text,
// falling back to the first leaf folder in depth-first order.
func (s *IngestionService) SuggestPlacement(ctx context.Context, treeID, title, text string) (string, error) {
	tree, err := s.stores.Trees.Tree(ctx, treeID)
	if err != nil {
		return "", err
	}
	return s.suggest(ctx, tree, title, text)
}

func (s *IngestionService) suggest(ctx context.Context, tree *domain.Tree, title, text string) (string, error) {
	leaves, err := s.stores.Trees.LeafFolders(ctx, tree.ID)
	if err != nil {
		return "", err
	}
	if len(leaves) == 0 {
		return "", domain.Violation(tree.RootNodeID, "tree has no leaf folder to place content in")
	}
	var b strings.Builder
	valid := make(map[string]bool, len(leaves))
	for _, l := range leaves {
		valid[l.ID] = true
		fmt.Fprintf(&b, "%s | %s: %s\n", l.ID, l.Title, l.Gist)
	}

	var reply struct {
		FolderID string `json:"folderId"`
	}
	err = completeJSON(ctx, s.oracle, driven.PromptPlacement, map[string]string{
		"principle": tree.OrganizingPrinciple,
		"map":       b.String(),
		"title":     title,
		"gist":      truncate(text, excerptLength),
	}, &reply)
	switch {
	case err != nil:
		logger.Warn("Placement oracle failed, using first leaf folder: %v", err)
	case !valid[reply.FolderID]:
		logger.Warn("Placement oracle chose %q which is not a leaf folder, using first leaf folder", reply.FolderID)
	default:
		return reply.FolderID, nil
	}
	return leaves[0].ID, nil
}

// title asks the oracle to name the text, falling back to its first line.
func (s *IngestionService) title(ctx context.Context, text string, warnings *[]string) string {
	reply, err := s.oracle.Complete(ctx, driven.PromptTitle, map[string]string{
		"content": truncate(text, excerptLength),
	}, driven.OracleOptions{MaxTokens: 32})
	if t := cleanLine(reply); err == nil && t != "" {
		return truncate(t, titleMaxLength)
	}
	fallback := truncate(cleanLine(firstLine(text)), titleMaxLength)
	if fallback == "" {
		fallback = "Untitled"
	}
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("title generation failed, using first line: %v", err))
		logger.Warn("Title generation failed, using first line: %v", err)
	}
	return fallback
}

// gist asks the oracle for a summary, falling back to truncated text.
func (s *IngestionService) gist(ctx context.Context, tree *domain.Tree, title, text string, warnings *[]string) string {
	maxLen := s.config().GistMaxLength
	if maxLen <= 0 {
		maxLen = 200
	}
	reply, err := s.oracle.Complete(ctx, driven.PromptGist, map[string]string{
		"principle":  tree.OrganizingPrinciple,
		"title":      title,
		"content":    truncate(text, excerptLength),
		"max_length": strconv.Itoa(maxLen),
	}, driven.OracleOptions{})
	if g := strings.TrimSpace(reply); err == nil && g != "" {
		return g
	}
	if err == nil {
		err = fmt.Errorf("%w: empty gist", domain.ErrOracleFailure)
	}
	*warnings = append(*warnings, fmt.Sprintf("gist generation failed, using truncated text: %v", err))
	logger.Warn("Gist generation for %q failed, using truncated text: %v", title, err)
	fallback := truncate(strings.Join(strings.Fields(text), " "), maxLen)
	if fallback == "" {
		fallback = title
	}
	return fallback
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// cleanLine strips markdown heading marks and surrounding quotes.
func cleanLine(s string) string {
	s = strings.TrimSpace(firstLine(s))
	s = strings.TrimLeft(s, "# ")
	return strings.Trim(s, "\"'` ")
}

// truncate cuts s to at most n bytes on a rune boundary, adding an ellipsis
// when it shortens.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n - len("...")
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}
