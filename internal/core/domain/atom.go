package domain

import "time"

// EditMode controls whether an atom participates in hash deduplication.
type EditMode string

const (
	// EditModeReadonly atoms are immutable and deduplicated by content hash.
	EditModeReadonly EditMode = "readonly"

	// EditModeEditable atoms may be overwritten in place and are never shared.
	EditModeEditable EditMode = "editable"
)

// IsValid returns true if the edit mode is recognised.
func (m EditMode) IsValid() bool {
	return m == EditModeReadonly || m == EditModeEditable
}

// ContentAtom is the unit of the blob store: a payload addressed by id and
// content hash. Updates create a new atom whose Supersedes points at the
// previous one.
type ContentAtom struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"contentHash"`
	Payload     string    `json:"payload"`
	MediaType   string    `json:"mediaType,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	SourceURI   string    `json:"sourceUri,omitempty"`
	Supersedes  string    `json:"supersedes,omitempty"`
	EditMode    EditMode  `json:"editMode"`
}

// AtomSpec describes an atom to be created.
type AtomSpec struct {
	Payload    string
	MediaType  string
	CreatedBy  string
	SourceURI  string
	EditMode   EditMode
	Supersedes string
}
