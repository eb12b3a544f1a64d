package driving

import (
	"context"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

// IngestionService turns text into content-bearing tree nodes.
type IngestionService interface {
	// IngestDocument stores the text as an atom and creates a document node
	// under FolderID (or an oracle-suggested leaf folder when empty).
	IngestDocument(ctx context.Context, req IngestRequest) (*domain.IngestResult, error)

	// CreateFragment stores the text and creates a fragment under a document.
	CreateFragment(ctx context.Context, req FragmentRequest) (*domain.IngestResult, error)

	// UpdateNode replaces a node's content, regenerates its gist and re-indexes it.
	UpdateNode(ctx context.Context, treeID, nodeID, text string) (*domain.IngestResult, error)

	// SuggestPlacement returns the leaf folder the text should be filed under.
	SuggestPlacement(ctx context.Context, treeID, title, text string) (string, error)
}

// IngestRequest describes a document to ingest.
type IngestRequest struct {
	TreeID    string `validate:"required"`
	FolderID  string
	Title     string
	Gist      string
	Text      string `validate:"required_without=Raw"`
	SourceURI string
	MediaType string
	EditMode  domain.EditMode `validate:"omitempty,oneof=readonly editable"`

	// Raw holds file bytes to run through the normalisers when Text is
	// empty. MediaType selects the normaliser.
	Raw []byte

	// Split creates one fragment per structural section of the text.
	Split bool

	// ReplaceBySource updates the document already ingested from SourceURI,
	// if there is one, instead of creating a second document.
	ReplaceBySource bool
}

// FragmentRequest describes a fragment to create under a document.
type FragmentRequest struct {
	TreeID     string `validate:"required"`
	DocumentID string `validate:"required"`
	Title      string
	Gist       string
	Text       string `validate:"required"`
	EditMode   domain.EditMode `validate:"omitempty,oneof=readonly editable"`
}
