// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/fraktag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/fraktag/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/custodia-labs/fraktag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/fraktag/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// embeddingDimensions lists vector sizes of well-known embedding models.
var embeddingDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	LLMService       driven.LLMService
	Warnings         []string // Non-fatal issues that left a capability unset.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		_ = r.EmbeddingService.Close()
	}
	if r.LLMService != nil {
		_ = r.LLMService.Close()
	}
}

// Init creates guarded services for both capabilities. A capability that
// is not configured, or whose provider cannot be created, is left nil and
// reported in Warnings; the core falls back where it can. When validate is
// set each service is pinged and dropped if unreachable.
func Init(settings *domain.Settings, validate bool) *InitResult {
	result := &InitResult{}

	create := CreateEmbeddingService
	createLLM := CreateLLMService
	if validate {
		create = CreateAndValidateEmbeddingService
		createLLM = CreateAndValidateLLMService
	}

	emb, err := create(&settings.Embedding)
	switch {
	case err != nil:
		result.Warnings = append(result.Warnings, err.Error())
	case emb == nil:
		result.Warnings = append(result.Warnings, "embedding provider not configured; nodes will not be indexed")
	default:
		result.EmbeddingService = GuardEmbedding(emb, &settings.Embedding)
	}

	llm, err := createLLM(&settings.Oracle)
	switch {
	case err != nil:
		result.Warnings = append(result.Warnings, err.Error())
	case llm == nil:
		result.Warnings = append(result.Warnings, "oracle provider not configured; gists and relevance will use fallbacks")
	default:
		result.LLMService = GuardLLM(llm, &settings.Oracle)
	}
	return result
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(settings *domain.CapabilitySettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'fraktag config set embedding.provider' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}
	if err := ping(svc.Ping); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and validates connectivity.
func CreateAndValidateLLMService(settings *domain.CapabilitySettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'fraktag config set oracle.provider' to fix",
			domain.ErrLLMUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}
	if err := ping(svc.Ping); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return svc, nil
}

func ping(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return fn(ctx)
}

// ValidateEmbeddingConfig creates an embedding service and pings it.
// Unconfigured settings are valid.
func ValidateEmbeddingConfig(settings *domain.CapabilitySettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return ping(svc.Ping)
}

// ValidateLLMConfig creates an LLM service and pings it.
// Unconfigured settings are valid.
func ValidateLLMConfig(settings *domain.CapabilitySettings) error {
	svc, err := CreateLLMService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return ping(svc.Ping)
}

// CreateEmbeddingService creates the embedding service named by settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.CapabilitySettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		dims := embeddingDimensions[settings.Model]
		if dims == 0 {
			dims = ollamaembed.DefaultDimensions
		}
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: dims,
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  apiKeyOrPlaceholder(settings),
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateLLMService creates the LLM service named by settings.
// Returns nil if the provider is not configured.
func CreateLLMService(settings *domain.CapabilitySettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  apiKeyOrPlaceholder(settings),
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

// apiKeyOrPlaceholder lets keyless OpenAI-compatible endpoints (a custom
// base URL without a key) through the adapter's key check.
func apiKeyOrPlaceholder(settings *domain.CapabilitySettings) string {
	if settings.APIKey == "" && settings.BaseURL != "" {
		return "none"
	}
	return settings.APIKey
}
