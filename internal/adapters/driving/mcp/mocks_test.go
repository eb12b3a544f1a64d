package mcp

import (
	"context"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
)

// mockTreeService is a mock implementation of driving.TreeService.
type mockTreeService struct {
	trees   []*domain.Tree
	tree    *domain.Tree
	nodes   []*domain.Node
	node    *domain.Node
	content string
	treeMap string
	err     error
}

func (m *mockTreeService) CreateTree(_ context.Context, _ driving.CreateTreeRequest) (*domain.Tree, error) {
	return m.tree, m.err
}

func (m *mockTreeService) ListTrees(_ context.Context) ([]*domain.Tree, error) {
	return m.trees, m.err
}

func (m *mockTreeService) GetTree(_ context.Context, _ string) (*domain.Tree, error) {
	return m.tree, m.err
}

func (m *mockTreeService) Nodes(_ context.Context, _ string) ([]*domain.Node, error) {
	return m.nodes, m.err
}

func (m *mockTreeService) Node(_ context.Context, _, _ string) (*domain.Node, string, error) {
	return m.node, m.content, m.err
}

func (m *mockTreeService) RenderMap(_ context.Context, _ string) (string, error) {
	return m.treeMap, m.err
}

func (m *mockTreeService) Verify(_ context.Context, _ string) (*domain.VerifyReport, error) {
	return &domain.VerifyReport{}, m.err
}

func (m *mockTreeService) Audit(_ context.Context, _ string) (*domain.AuditReport, error) {
	return &domain.AuditReport{}, m.err
}

func (m *mockTreeService) Reset(_ context.Context, _ string, _ bool) (*domain.ResetReport, error) {
	return &domain.ResetReport{}, m.err
}

func (m *mockTreeService) CollectGarbage(_ context.Context) (int, error) {
	return 0, m.err
}

func (m *mockTreeService) History(_ context.Context, _ string) ([]*domain.ContentAtom, error) {
	return nil, m.err
}

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	result *domain.RetrieveResult
	answer *domain.Answer
	err    error

	lastTree string
	lastOpts domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	treeID, _ string,
	opts domain.RetrieveOptions,
) (*domain.RetrieveResult, error) {
	m.lastTree = treeID
	m.lastOpts = opts
	return m.result, m.err
}

func (m *mockRetrievalService) Ask(
	_ context.Context,
	treeID, _ string,
	opts domain.RetrieveOptions,
) (*domain.Answer, error) {
	m.lastTree = treeID
	m.lastOpts = opts
	return m.answer, m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	result  *domain.IngestResult
	err     error
	lastReq driving.IngestRequest
}

func (m *mockIngestionService) IngestDocument(_ context.Context, req driving.IngestRequest) (*domain.IngestResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockIngestionService) CreateFragment(_ context.Context, _ driving.FragmentRequest) (*domain.IngestResult, error) {
	return m.result, m.err
}

func (m *mockIngestionService) UpdateNode(_ context.Context, _, _, _ string) (*domain.IngestResult, error) {
	return m.result, m.err
}

func (m *mockIngestionService) SuggestPlacement(_ context.Context, _, _, _ string) (string, error) {
	return "", m.err
}

func validPorts() *Ports {
	return &Ports{
		Trees:     &mockTreeService{},
		Retrieval: &mockRetrievalService{},
	}
}
