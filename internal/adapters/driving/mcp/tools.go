package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	TreeID     string `json:"tree_id" jsonschema:"id of the tree to search"`
	Query      string `json:"query" jsonschema:"the question or topic to look up"`
	MaxDepth   int    `json:"max_depth,omitempty" jsonschema:"how far to drill below each starting node"`
	Resolution string `json:"resolution,omitempty" jsonschema:"gist, summary or full (default summary)"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"number of vector hits used to seed navigation"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Results []NodeOutput `json:"results"`
	Count   int          `json:"count"`
	Visited int          `json:"visited"`
}

// NodeOutput represents a single retrieved node.
type NodeOutput struct {
	NodeID  string  `json:"node_id"`
	Title   string  `json:"title"`
	Type    string  `json:"type"`
	Gist    string  `json:"gist"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	TreeID string `json:"tree_id" jsonschema:"id of the tree to answer from"`
	Query  string `json:"query" jsonschema:"the question to answer"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer   string       `json:"answer"`
	Sources  []NodeOutput `json:"sources"`
	Warnings []string     `json:"warnings,omitempty"`
}

// IngestInput is the input schema for the ingest tool.
type IngestInput struct {
	TreeID   string `json:"tree_id" jsonschema:"id of the tree to add the document to"`
	Text     string `json:"text" jsonschema:"full document text"`
	Title    string `json:"title,omitempty" jsonschema:"document title (generated when empty)"`
	FolderID string `json:"folder_id,omitempty" jsonschema:"leaf folder to file under (suggested when empty)"`
	Source   string `json:"source,omitempty" jsonschema:"where the text came from, e.g. a URL"`
	Split    bool   `json:"split,omitempty" jsonschema:"create one fragment per section of the document"`
}

// IngestOutput is the output schema for the ingest tool.
type IngestOutput struct {
	NodeID    string   `json:"node_id"`
	FolderID  string   `json:"folder_id"`
	Title     string   `json:"title"`
	Gist      string   `json:"gist"`
	Fragments int      `json:"fragments"`
	Warnings  []string `json:"warnings,omitempty"`
}

// TreeMapInput is the input schema for the tree_map tool.
type TreeMapInput struct {
	TreeID string `json:"tree_id" jsonschema:"id of the tree to render"`
}

// TreeMapOutput is the output schema for the tree_map tool.
type TreeMapOutput struct {
	TreeID    string `json:"tree_id"`
	Name      string `json:"name"`
	Principle string `json:"principle"`
	Map       string `json:"map"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Find the nodes of a knowledge tree that are relevant to a query",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from a knowledge tree with numbered citations",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "tree_map",
		Description: "Show the folder and document outline of a knowledge tree with gists",
	}, s.handleTreeMap)

	if s.ports.Ingestion != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest",
			Description: "Add a document to a knowledge tree",
		}, s.handleIngest)
	}
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	opts := domain.RetrieveOptions{
		MaxDepth:   input.MaxDepth,
		Resolution: domain.Resolution(input.Resolution),
		TopK:       input.TopK,
	}
	if opts.Resolution == "" {
		opts.Resolution = domain.ResolutionSummary
	}
	if !opts.Resolution.IsValid() {
		return nil, RetrieveOutput{}, fmt.Errorf("%w: unknown resolution %q", domain.ErrInvalidInput, input.Resolution)
	}

	result, err := s.ports.Retrieval.Retrieve(ctx, input.TreeID, input.Query, opts)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	return nil, RetrieveOutput{
		Results: toNodeOutputs(result.Results),
		Count:   len(result.Results),
		Visited: len(result.Trail),
	}, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.ports.Retrieval.Ask(ctx, input.TreeID, input.Query, domain.RetrieveOptions{})
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		Answer:   answer.Text,
		Sources:  toNodeOutputs(answer.Sources),
		Warnings: answer.Warnings,
	}, nil
}

// handleIngest handles the ingest tool invocation.
func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if s.ports.Ingestion == nil {
		return nil, IngestOutput{}, ErrIngestionDisabled
	}

	result, err := s.ports.Ingestion.IngestDocument(ctx, driving.IngestRequest{
		TreeID:    input.TreeID,
		FolderID:  input.FolderID,
		Title:     input.Title,
		Text:      input.Text,
		SourceURI: input.Source,
		Split:     input.Split,
	})
	if err != nil {
		return nil, IngestOutput{}, err
	}

	return nil, IngestOutput{
		NodeID:    result.Node.ID,
		FolderID:  result.Node.Parent(),
		Title:     result.Node.Title,
		Gist:      result.Node.Gist,
		Fragments: len(result.Fragments),
		Warnings:  result.Warnings,
	}, nil
}

// handleTreeMap handles the tree_map tool invocation.
func (s *Server) handleTreeMap(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TreeMapInput,
) (*mcp.CallToolResult, TreeMapOutput, error) {
	tree, err := s.ports.Trees.GetTree(ctx, input.TreeID)
	if err != nil {
		return nil, TreeMapOutput{}, err
	}
	rendered, err := s.ports.Trees.RenderMap(ctx, input.TreeID)
	if err != nil {
		return nil, TreeMapOutput{}, err
	}
	return nil, TreeMapOutput{
		TreeID:    tree.ID,
		Name:      tree.Name,
		Principle: tree.OrganizingPrinciple,
		Map:       rendered,
	}, nil
}

func toNodeOutputs(nodes []domain.RetrievedNode) []NodeOutput {
	out := make([]NodeOutput, len(nodes))
	for i := range nodes {
		out[i] = NodeOutput{
			NodeID:  nodes[i].NodeID,
			Title:   nodes[i].Title,
			Type:    string(nodes[i].Type),
			Gist:    nodes[i].Gist,
			Content: nodes[i].Content,
			Score:   nodes[i].Score,
			Reason:  nodes[i].Reason,
		}
	}
	return out
}
