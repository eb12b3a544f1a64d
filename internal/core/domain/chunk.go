package domain

// Chunk is a transient slice of source text. Text always equals
// source[StartOffset:EndOffset].
type Chunk struct {
	Text        string
	StartOffset int
	EndOffset   int

	// Metadata carries splitter hints such as "title" and "strategy".
	Metadata map[string]any
}

// Len returns the byte length of the chunk.
func (c Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}

// Title returns the "title" metadata value, if any.
func (c Chunk) Title() string {
	if c.Metadata == nil {
		return ""
	}
	s, _ := c.Metadata["title"].(string)
	return s
}

// VectorEntry is one embedded unit of indexed text owned by a node.
type VectorEntry struct {
	NodeID     string    `json:"nodeId"`
	Embedding  []float32 `json:"embedding"`
	SourceText string    `json:"sourceText"`
	ChunkIndex int       `json:"chunkIndex"`
}

// VectorHit is a ranked search result from the vector index.
type VectorHit struct {
	NodeID string
	Score  float64
}
