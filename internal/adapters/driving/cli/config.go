package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/services"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change settings stored in ~/.fraktag/config.toml.

OPENAI_API_KEY and FRAKTAG_HOME in the environment (or a .env file) override
the stored API keys and data directory.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration key",
	Long: `Set a single dotted configuration key, for example:

  fraktag config set oracle.provider ollama
  fraktag config set oracle.model llama3.1
  fraktag config set retrieval.relevance_threshold 6

Run 'fraktag config keys' for the full list.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, k := range services.KnownKeys() {
			cmd.Println(k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend)
	switch settings.Storage.Backend {
	case domain.StorageDynamoDB:
		cmd.Printf("  Table: %s\n", settings.Storage.Table)
		if settings.Storage.Region != "" {
			cmd.Printf("  Region: %s\n", settings.Storage.Region)
		}
	case domain.StorageMemory:
	default:
		cmd.Printf("  Path: %s\n", settings.Storage.Path)
	}
	cmd.Println()

	printCapability(cmd, "Oracle", settings.Oracle)
	printCapability(cmd, "Embedding", settings.Embedding)

	cmd.Println("[Ingestion]")
	cmd.Printf("  Index strategy: %s\n", settings.Ingestion.IndexStrategy)
	cmd.Printf("  Chunk size: %d (overlap %d, minimum %d)\n",
		settings.Ingestion.ChunkSize, settings.Ingestion.ChunkOverlap, settings.Ingestion.MinChunkSize)
	cmd.Printf("  Gist max length: %d\n", settings.Ingestion.GistMaxLength)
	cmd.Println()

	r := settings.Retrieval
	cmd.Println("[Retrieval]")
	cmd.Printf("  Max depth: %d\n", r.MaxDepth)
	cmd.Printf("  Top K: %d (similarity floor %.2f)\n", r.TopK, r.SimilarityFloor)
	cmd.Printf("  Relevance threshold: %.1f\n", r.RelevanceThresh)
	cmd.Printf("  Orientation depth: %d\n", r.OrientationDepth)
	cmd.Printf("  Concurrency: %d\n", r.Concurrency)
	cmd.Printf("  Resolution: %s\n", r.Resolution)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'fraktag config set' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func printCapability(cmd *cobra.Command, label string, c domain.CapabilitySettings) {
	cmd.Printf("[%s]\n", label)
	cmd.Printf("  Provider: %s\n", c.Provider.Description())
	cmd.Printf("  Model: %s\n", c.Model)
	if c.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", c.BaseURL)
	}
	if c.Provider.RequiresAPIKey() {
		if c.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(c.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	cmd.Printf("  Timeout: %s\n", c.Timeout)
	cmd.Printf("  Workers: %d\n", c.MaxConcurrency)
	if c.RequestsPerSecond > 0 {
		cmd.Printf("  Rate limit: %.2f/s\n", c.RequestsPerSecond)
	}
	status := "configured"
	if !c.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}
	key := strings.ToLower(strings.TrimSpace(args[0]))
	if err := settingsService.Set(key, args[1]); err != nil {
		return err
	}
	shown := args[1]
	if strings.HasSuffix(key, "api_key") {
		shown = maskAPIKey(shown)
	}
	cmd.Printf("Set %s = %s\n", key, shown)
	return nil
}

// maskAPIKey shows only the first and last four characters of a key.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
