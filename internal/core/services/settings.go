package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
	"github.com/custodia-labs/fraktag/internal/validation"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyStorageBackend = "storage.backend"
	keyStoragePath    = "storage.path"
	keyStorageTable   = "storage.table"
	keyStorageRegion  = "storage.region"

	keyOracleProvider = "oracle.provider"
	keyOracleModel    = "oracle.model"
	keyOracleBaseURL  = "oracle.base_url"
	keyOracleAPIKey   = "oracle.api_key"
	keyOracleTimeout  = "oracle.timeout_seconds"
	keyOracleWorkers  = "oracle.max_concurrency"
	keyOracleRate     = "oracle.requests_per_second"

	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"
	keyEmbedTimeout  = "embedding.timeout_seconds"
	keyEmbedWorkers  = "embedding.max_concurrency"
	keyEmbedRate     = "embedding.requests_per_second"

	keyIndexStrategy = "ingestion.index_strategy"
	keyChunkSize     = "ingestion.chunk_size"
	keyChunkOverlap  = "ingestion.chunk_overlap"
	keyMinChunkSize  = "ingestion.min_chunk_size"
	keyGistMaxLength = "ingestion.gist_max_length"

	keyMaxDepth         = "retrieval.max_depth"
	keyTopK             = "retrieval.top_k"
	keySimilarityFloor  = "retrieval.similarity_floor"
	keyRelevanceThresh  = "retrieval.relevance_threshold"
	keyOrientationDepth = "retrieval.orientation_depth"
	keyConcurrency      = "retrieval.concurrency"
	keyResolution       = "retrieval.resolution"
)

// Environment variables that override stored settings.
const (
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvHome      = "FRAKTAG_HOME"
)

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
)

var knownKeys = map[string]keyKind{
	keyStorageBackend: kindString, keyStoragePath: kindString, keyStorageTable: kindString, keyStorageRegion: kindString,
	keyOracleProvider: kindString, keyOracleModel: kindString, keyOracleBaseURL: kindString, keyOracleAPIKey: kindString,
	keyOracleTimeout: kindInt, keyOracleWorkers: kindInt, keyOracleRate: kindFloat,
	keyEmbedProvider: kindString, keyEmbedModel: kindString, keyEmbedBaseURL: kindString, keyEmbedAPIKey: kindString,
	keyEmbedTimeout: kindInt, keyEmbedWorkers: kindInt, keyEmbedRate: kindFloat,
	keyIndexStrategy: kindString, keyChunkSize: kindInt, keyChunkOverlap: kindInt,
	keyMinChunkSize: kindInt, keyGistMaxLength: kindInt,
	keyMaxDepth: kindInt, keyTopK: kindInt, keySimilarityFloor: kindFloat, keyRelevanceThresh: kindFloat,
	keyOrientationDepth: kindInt, keyConcurrency: kindInt, keyResolution: kindString,
}

// KnownKeys returns every settable configuration key, sorted.
func KnownKeys() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings. Unset or invalid values fall
// back to defaults.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := domain.DefaultSettings()

	settings := &domain.Settings{
		Storage: domain.StorageSettings{
			Backend: domain.StorageBackend(s.getEnum(keyStorageBackend, string(d.Storage.Backend),
				string(domain.StorageFile), string(domain.StorageSQLite),
				string(domain.StorageDynamoDB), string(domain.StorageMemory))),
			Path:   s.getString(keyStoragePath, d.Storage.Path),
			Table:  s.configStore.GetString(keyStorageTable),
			Region: s.configStore.GetString(keyStorageRegion),
		},
		Oracle: s.capability(d.Oracle, keyOracleProvider, keyOracleModel, keyOracleBaseURL,
			keyOracleAPIKey, keyOracleTimeout, keyOracleWorkers, keyOracleRate),
		Embedding: s.capability(d.Embedding, keyEmbedProvider, keyEmbedModel, keyEmbedBaseURL,
			keyEmbedAPIKey, keyEmbedTimeout, keyEmbedWorkers, keyEmbedRate),
		Ingestion: domain.IngestionSettings{
			IndexStrategy: domain.IndexStrategy(s.getEnum(keyIndexStrategy, string(d.Ingestion.IndexStrategy),
				string(domain.IndexRecursive), string(domain.IndexStructural))),
			ChunkSize:     s.getInt(keyChunkSize, d.Ingestion.ChunkSize),
			ChunkOverlap:  s.getInt(keyChunkOverlap, d.Ingestion.ChunkOverlap),
			MinChunkSize:  s.getInt(keyMinChunkSize, d.Ingestion.MinChunkSize),
			GistMaxLength: s.getInt(keyGistMaxLength, d.Ingestion.GistMaxLength),
		},
		Retrieval: domain.RetrievalSettings{
			MaxDepth:         s.getInt(keyMaxDepth, d.Retrieval.MaxDepth),
			TopK:             s.getInt(keyTopK, d.Retrieval.TopK),
			SimilarityFloor:  s.getFloat(keySimilarityFloor, d.Retrieval.SimilarityFloor),
			RelevanceThresh:  s.getFloat(keyRelevanceThresh, d.Retrieval.RelevanceThresh),
			OrientationDepth: s.getInt(keyOrientationDepth, d.Retrieval.OrientationDepth),
			Concurrency:      s.getInt(keyConcurrency, d.Retrieval.Concurrency),
			Resolution: domain.Resolution(s.getEnum(keyResolution, string(d.Retrieval.Resolution),
				string(domain.ResolutionGist), string(domain.ResolutionSummary), string(domain.ResolutionFull))),
		},
	}

	if home := s.getenv(EnvHome); home != "" {
		if _, set := s.configStore.Get(keyStoragePath); !set {
			settings.Storage.Path = home + "/data"
		}
	}
	if key := s.getenv(EnvOpenAIKey); key != "" {
		for _, c := range []*domain.CapabilitySettings{&settings.Oracle, &settings.Embedding} {
			if c.Provider == domain.AIProviderOpenAI && c.APIKey == "" {
				c.APIKey = key
			}
		}
	}
	return settings, nil
}

func (s *SettingsService) capability(
	d domain.CapabilitySettings, provider, model, baseURL, apiKey, timeout, workers, rate string,
) domain.CapabilitySettings {
	return domain.CapabilitySettings{
		Provider: domain.AIProvider(s.getEnum(provider, string(d.Provider),
			string(domain.AIProviderOpenAI), string(domain.AIProviderOllama))),
		Model:             s.getString(model, d.Model),
		BaseURL:           s.configStore.GetString(baseURL), // No default - empty is valid for cloud providers
		APIKey:            s.configStore.GetString(apiKey),
		Timeout:           time.Duration(s.getInt(timeout, int(d.Timeout/time.Second))) * time.Second,
		MaxConcurrency:    s.getInt(workers, d.MaxConcurrency),
		RequestsPerSecond: s.getFloat(rate, d.RequestsPerSecond),
	}
}

// Set stores a single configuration key. String values are converted to
// the key's type.
func (s *SettingsService) Set(key string, value any) error {
	kind, ok := knownKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q: %w", key, domain.ErrInvalidInput)
	}
	if str, isString := value.(string); isString && kind != kindString {
		var err error
		switch kind {
		case kindInt:
			value, err = strconv.Atoi(str)
		case kindFloat:
			value, err = strconv.ParseFloat(str, 64)
		}
		if err != nil {
			return fmt.Errorf("setting %s: %q is not a number: %w", key, str, domain.ErrInvalidInput)
		}
	}
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Validate checks the current settings against their constraints and that
// the oracle is configured.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := validation.Struct(settings); err != nil {
		return err
	}
	if !settings.Oracle.IsConfigured() {
		return fmt.Errorf("oracle provider %q is not configured: %w", settings.Oracle.Provider, domain.ErrLLMUnavailable)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current oracle configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.Oracle)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getEnum(key, defaultVal string, allowed ...string) string {
	val := s.configStore.GetString(key)
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	return defaultVal
}
