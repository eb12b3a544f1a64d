package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for Fraktag resources.
	uriScheme = "fraktag://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "trees",
		Name:        "trees",
		Description: "All knowledge trees with their organizing principles",
		MIMEType:    "application/json",
	}, s.handleTreesResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "trees/{treeId}/nodes/{nodeId}",
		Name:        "tree-node",
		Description: "A node of a knowledge tree with its children and content",
		MIMEType:    "application/json",
	}, s.handleNodeResource)
}

// handleTreesResource returns a list of all trees.
func (s *Server) handleTreesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	trees, err := s.ports.Trees.ListTrees(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing trees: %w", err)
	}

	type treeInfo struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Principle  string `json:"principle"`
		RootNodeID string `json:"rootNodeId"`
	}

	infos := make([]treeInfo, len(trees))
	for i, t := range trees {
		infos[i] = treeInfo{
			ID:         t.ID,
			Name:       t.Name,
			Principle:  t.OrganizingPrinciple,
			RootNodeID: t.RootNodeID,
		}
	}
	return jsonResult(req.Params.URI, infos)
}

// handleNodeResource returns a node, its direct children and, for content
// nodes, its payload.
func (s *Server) handleNodeResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	treeID, nodeID := parseNodeURI(req.Params.URI)
	if treeID == "" || nodeID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	node, content, err := s.ports.Trees.Node(ctx, treeID, nodeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("reading node: %w", err)
	}

	nodes, err := s.ports.Trees.Nodes(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	type childInfo struct {
		ID    string          `json:"id"`
		Type  domain.NodeType `json:"type"`
		Title string          `json:"title"`
		Gist  string          `json:"gist"`
		URI   string          `json:"uri"`
	}
	type nodeInfo struct {
		*domain.Node
		Content  string      `json:"content,omitempty"`
		Children []childInfo `json:"children"`
	}

	info := nodeInfo{Node: node, Content: content, Children: []childInfo{}}
	for _, n := range nodes {
		if n.Parent() != node.ID {
			continue
		}
		info.Children = append(info.Children, childInfo{
			ID:    n.ID,
			Type:  n.Type,
			Title: n.Title,
			Gist:  n.Gist,
			URI:   nodeURI(treeID, n.ID),
		})
	}
	return jsonResult(req.Params.URI, info)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func nodeURI(treeID, nodeID string) string {
	return uriScheme + "trees/" + treeID + "/nodes/" + nodeID
}

// parseNodeURI extracts the ids from fraktag://trees/{treeId}/nodes/{nodeId}.
func parseNodeURI(uri string) (treeID, nodeID string) {
	const prefix = uriScheme + "trees/"

	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return "", ""
	}
	treeID, nodeID, ok = strings.Cut(rest, "/nodes/")
	if !ok || strings.Contains(nodeID, "/") {
		return "", ""
	}
	return treeID, nodeID
}
