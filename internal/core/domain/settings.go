package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or any OpenAI-compatible endpoint.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
// An OpenAI provider pointed at a custom base URL may run without one.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// StorageBackend identifies a persistence adapter.
type StorageBackend string

// Available storage backends.
const (
	StorageFile     StorageBackend = "file"
	StorageSQLite   StorageBackend = "sqlite"
	StorageDynamoDB StorageBackend = "dynamodb"
	StorageMemory   StorageBackend = "memory"
)

// IndexStrategy selects how node content is cut into vector entries.
type IndexStrategy string

// Available index strategies.
const (
	// IndexRecursive uses recursive overlap splitting.
	IndexRecursive IndexStrategy = "recursive"

	// IndexStructural uses structural splitting, then recursive splitting
	// for oversized sections.
	IndexStructural IndexStrategy = "structural"
)

// StorageSettings configures persistence.
type StorageSettings struct {
	Backend StorageBackend `validate:"oneof=file sqlite dynamodb memory"`
	Path    string         `validate:"required_if=Backend file,required_if=Backend sqlite"`
	Table   string         `validate:"required_if=Backend dynamodb"`
	Region  string
}

// CapabilitySettings configures an LLM or embedding provider and the gate
// placed in front of it.
type CapabilitySettings struct {
	Provider AIProvider `validate:"omitempty,oneof=openai ollama"`
	Model    string
	BaseURL  string `validate:"omitempty,url"`
	APIKey   string

	// Timeout bounds every single call.
	Timeout time.Duration `validate:"gt=0"`

	// MaxConcurrency is the size of the worker pool for this capability.
	MaxConcurrency int `validate:"gte=1,lte=64"`

	// RequestsPerSecond is the token-bucket rate; zero disables rate limiting.
	RequestsPerSecond float64 `validate:"gte=0"`
}

// IsConfigured returns true if the provider is set up.
func (c CapabilitySettings) IsConfigured() bool {
	if !c.Provider.IsValid() {
		return false
	}
	if c.Provider.RequiresAPIKey() && c.APIKey == "" && c.BaseURL == "" {
		return false
	}
	return true
}

// IngestionSettings configures chunking and gist generation.
type IngestionSettings struct {
	IndexStrategy IndexStrategy `validate:"oneof=recursive structural"`
	ChunkSize     int           `validate:"gte=50"`
	ChunkOverlap  int           `validate:"gte=0,ltfield=ChunkSize"`
	MinChunkSize  int           `validate:"gte=0"`
	GistMaxLength int           `validate:"gte=20"`
}

// RetrievalSettings configures the query router.
type RetrievalSettings struct {
	MaxDepth         int        `validate:"gte=1,lte=20"`
	TopK             int        `validate:"gte=1"`
	SimilarityFloor  float64    `validate:"gte=-1,lte=1"`
	RelevanceThresh  float64    `validate:"gte=0,lte=10"`
	OrientationDepth int        `validate:"gte=0"`
	Concurrency      int        `validate:"gte=1,lte=64"`
	Resolution       Resolution `validate:"oneof=gist summary full"`
}

// Settings is the complete application configuration.
type Settings struct {
	Storage   StorageSettings
	Oracle    CapabilitySettings
	Embedding CapabilitySettings
	Ingestion IngestionSettings
	Retrieval RetrievalSettings
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		Storage: StorageSettings{
			Backend: StorageFile,
			Path:    "~/.fraktag/data",
		},
		Oracle: CapabilitySettings{
			Provider:       AIProviderOpenAI,
			Model:          "gpt-4o-mini",
			Timeout:        60 * time.Second,
			MaxConcurrency: 4,
		},
		Embedding: CapabilitySettings{
			Provider:       AIProviderOpenAI,
			Model:          "text-embedding-3-small",
			Timeout:        30 * time.Second,
			MaxConcurrency: 4,
		},
		Ingestion: IngestionSettings{
			IndexStrategy: IndexRecursive,
			ChunkSize:     1000,
			ChunkOverlap:  200,
			MinChunkSize:  20,
			GistMaxLength: 200,
		},
		Retrieval: RetrievalSettings{
			MaxDepth:         5,
			TopK:             10,
			SimilarityFloor:  0.3,
			RelevanceThresh:  7,
			OrientationDepth: 1,
			Concurrency:      4,
			Resolution:       ResolutionFull,
		},
	}
}
