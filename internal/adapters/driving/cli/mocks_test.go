package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
)

type mockTreeService struct {
	trees   []*domain.Tree
	nodes   []*domain.Node
	verify  *domain.VerifyReport
	audit   *domain.AuditReport
	history []*domain.ContentAtom
	treeMap string
	err     error

	created   driving.CreateTreeRequest
	resetArgs []any
}

func (m *mockTreeService) CreateTree(_ context.Context, req driving.CreateTreeRequest) (*domain.Tree, error) {
	m.created = req
	if m.err != nil {
		return nil, m.err
	}
	id := req.ID
	if id == "" {
		id = "tree-1"
	}
	return &domain.Tree{ID: id, Name: req.Name, OrganizingPrinciple: req.OrganizingPrinciple, RootNodeID: "root-1"}, nil
}

func (m *mockTreeService) ListTrees(_ context.Context) ([]*domain.Tree, error) {
	return m.trees, m.err
}

func (m *mockTreeService) GetTree(_ context.Context, treeID string) (*domain.Tree, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.trees {
		if t.ID == treeID {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockTreeService) Nodes(_ context.Context, _ string) ([]*domain.Node, error) {
	return m.nodes, m.err
}

func (m *mockTreeService) Node(_ context.Context, _, _ string) (*domain.Node, string, error) {
	return nil, "", m.err
}

func (m *mockTreeService) RenderMap(_ context.Context, _ string) (string, error) {
	return m.treeMap, m.err
}

func (m *mockTreeService) Verify(_ context.Context, _ string) (*domain.VerifyReport, error) {
	return m.verify, m.err
}

func (m *mockTreeService) Audit(_ context.Context, _ string) (*domain.AuditReport, error) {
	return m.audit, m.err
}

func (m *mockTreeService) Reset(_ context.Context, treeID string, prune bool) (*domain.ResetReport, error) {
	m.resetArgs = []any{treeID, prune}
	return &domain.ResetReport{TreeID: treeID, NodesRemoved: 4, AtomsPruned: 2}, m.err
}

func (m *mockTreeService) CollectGarbage(_ context.Context) (int, error) {
	return 3, m.err
}

func (m *mockTreeService) History(_ context.Context, _ string) ([]*domain.ContentAtom, error) {
	return m.history, m.err
}

type mockIngestionService struct {
	err error

	mu       sync.Mutex
	requests []driving.IngestRequest
	fragment driving.FragmentRequest
	updated  []string
}

func (m *mockIngestionService) IngestDocument(_ context.Context, req driving.IngestRequest) (*domain.IngestResult, error) {
	m.mu.Lock()
	seen := false
	for _, r := range m.requests {
		seen = seen || (r.SourceURI != "" && r.SourceURI == req.SourceURI)
	}
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{Updated: seen && req.ReplaceBySource, Node: &domain.Node{
		ID:       "doc-1",
		ParentID: domain.StringPtr("folder-1"),
		Type:     domain.NodeDocument,
		Title:    "Ingested",
		Gist:     "A gist",
	}}, nil
}

func (m *mockIngestionService) requestsSnapshot() []driving.IngestRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driving.IngestRequest(nil), m.requests...)
}

func (m *mockIngestionService) CreateFragment(_ context.Context, req driving.FragmentRequest) (*domain.IngestResult, error) {
	m.fragment = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{Node: &domain.Node{ID: "frag-1", ParentID: &req.DocumentID, Title: "Fragment"}}, nil
}

func (m *mockIngestionService) UpdateNode(_ context.Context, treeID, nodeID, text string) (*domain.IngestResult, error) {
	m.updated = []string{treeID, nodeID, text}
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{
		Node:     &domain.Node{ID: nodeID, ContentID: "atom-2", Gist: "New gist"},
		Warnings: []string{"reindex skipped"},
	}, nil
}

func (m *mockIngestionService) SuggestPlacement(_ context.Context, _, _, _ string) (string, error) {
	return "folder-1", m.err
}

type mockRetrievalService struct {
	result *domain.RetrieveResult
	answer *domain.Answer
	err    error

	query string
	opts  domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context, _, query string, opts domain.RetrieveOptions,
) (*domain.RetrieveResult, error) {
	m.query, m.opts = query, opts
	return m.result, m.err
}

func (m *mockRetrievalService) Ask(_ context.Context, _, query string, opts domain.RetrieveOptions) (*domain.Answer, error) {
	m.query, m.opts = query, opts
	return m.answer, m.err
}

type mockMaintenanceService struct {
	err     error
	applied []domain.Operation
	calls   []string
}

func (m *mockMaintenanceService) Cluster(
	_ context.Context, _ string, nodeIDs []string, name string,
) (*domain.ClusterResult, error) {
	m.calls = append(m.calls, "cluster")
	return &domain.ClusterResult{
		FolderID: "new-folder",
		Moved:    nodeIDs,
		Summary:  "Clustered " + name,
	}, m.err
}

func (m *mockMaintenanceService) Prune(_ context.Context, _, nodeID string) (string, error) {
	m.calls = append(m.calls, "prune")
	return "Pruned " + nodeID, m.err
}

func (m *mockMaintenanceService) Rename(_ context.Context, _, nodeID, title string) (string, error) {
	m.calls = append(m.calls, "rename")
	return "Renamed " + nodeID + " to " + title, m.err
}

func (m *mockMaintenanceService) Move(_ context.Context, _, nodeID, parent string) (string, error) {
	m.calls = append(m.calls, "move")
	return "Moved " + nodeID + " under " + parent, m.err
}

func (m *mockMaintenanceService) Apply(_ context.Context, _ string, op domain.Operation) (string, error) {
	m.applied = append(m.applied, op)
	return "applied " + string(op.Kind), m.err
}

type mockSettingsService struct {
	settings    domain.Settings
	validateErr error
	setErr      error
	set         map[string]any
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key string, value any) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.set == nil {
		m.set = map[string]any{}
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validateErr }

func (m *mockSettingsService) GetDefaults() domain.Settings { return domain.DefaultSettings() }

// setupTestServices injects s and restores empty services afterwards.
func setupTestServices(t *testing.T, s *Services) {
	t.Helper()
	SetServices(s)
	t.Cleanup(func() { SetServices(&Services{}) })
}

// execute runs the root command with args and returns its output. Flag
// values are reset around each run so tests do not leak into each other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
