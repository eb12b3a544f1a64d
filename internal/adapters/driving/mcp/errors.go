// Package mcp provides an MCP (Model Context Protocol) server adapter for Fraktag.
// It lets AI assistants navigate, query and extend knowledge trees.
package mcp

import "errors"

var (
	// ErrMissingTreeService is returned when the tree service is not provided.
	ErrMissingTreeService = errors.New("mcp: tree service is required")

	// ErrMissingRetrievalService is returned when the retrieval service is not provided.
	ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

	// ErrIngestionDisabled is returned by the ingest tool when the server was
	// started without an ingestion service.
	ErrIngestionDisabled = errors.New("mcp: ingestion is not enabled on this server")
)
