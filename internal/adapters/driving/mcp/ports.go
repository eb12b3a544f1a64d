package mcp

import (
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Trees lists trees, renders maps and reads nodes.
	Trees driving.TreeService

	// Retrieval answers queries.
	Retrieval driving.RetrievalService

	// Ingestion adds documents. Optional; read-only servers leave it nil.
	Ingestion driving.IngestionService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Trees == nil {
		return ErrMissingTreeService
	}
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
