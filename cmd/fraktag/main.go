// Command fraktag builds and queries hierarchical knowledge trees.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/fraktag/internal/adapters/driven/ai"
	"github.com/custodia-labs/fraktag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/fraktag/internal/adapters/driven/metrics"
	"github.com/custodia-labs/fraktag/internal/adapters/driven/storage/dynamodb"
	filestorage "github.com/custodia-labs/fraktag/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/fraktag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fraktag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/fraktag/internal/adapters/driving/cli"
	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/core/services"
	"github.com/custodia-labs/fraktag/internal/logger"
	"github.com/custodia-labs/fraktag/internal/normalisers"
	"github.com/custodia-labs/fraktag/internal/normalisers/docx"
	"github.com/custodia-labs/fraktag/internal/normalisers/eml"
	"github.com/custodia-labs/fraktag/internal/normalisers/html"
	"github.com/custodia-labs/fraktag/internal/normalisers/markdown"
	"github.com/custodia-labs/fraktag/internal/normalisers/plaintext"
	"github.com/custodia-labs/fraktag/internal/postprocessors"
	"github.com/custodia-labs/fraktag/internal/postprocessors/splitter"
)

// EnvDynamoEndpoint points the DynamoDB backend at a local endpoint.
const EnvDynamoEndpoint = "FRAKTAG_DYNAMODB_ENDPOINT"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Ignoring .env: %v", err)
	}

	home := os.Getenv(services.EnvHome)
	configStore, err := file.NewConfigStore(home)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	promptDir := ""
	if home != "" {
		promptDir = filepath.Join(home, "prompts")
	}
	prompts, err := file.NewPromptStore(promptDir)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return err
	}

	storage, closeStorage, err := openStorage(ctx, settings.Storage)
	if err != nil {
		return err
	}
	defer closeStorage()

	aiServices := ai.Init(settings, false)
	defer aiServices.Close()
	for _, w := range aiServices.Warnings {
		logger.Debug("%s", w)
	}

	m := metrics.New()
	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)
	pipeline, err := postprocessors.BuildPipeline(registry, settings.Ingestion)
	if err != nil {
		return fmt.Errorf("build chunking pipeline: %w", err)
	}

	stores := services.NewStores(storage, aiServices.EmbeddingService, m)
	oracle := services.NewOracleService(aiServices.LLMService, prompts, m, settings.Oracle.Timeout)

	ingestion := services.NewIngestionService(stores, oracle, pipeline, settings.Ingestion,
		services.WithSectioner(splitter.New()),
		services.WithNormalisers(newNormalisers()),
		services.WithIngestionMetrics(m))
	navigator := services.NewNavigator(stores, oracle, settings.Retrieval, m)
	live := &liveSettings{
		current:   *settings,
		registry:  registry,
		pipeline:  pipeline,
		oracle:    oracle,
		ingestion: ingestion,
		navigator: navigator,
	}

	watcher := func(ctx context.Context) error {
		w, err := file.NewWatcher(configStore, prompts, func(path string) {
			if filepath.Ext(path) != file.PromptExt {
				live.reload(settingsService)
			}
		})
		if err != nil {
			return err
		}
		return w.Run(ctx)
	}

	cli.SetServices(&cli.Services{
		Trees:        services.NewTreeService(stores, oracle),
		Ingestion:    ingestion,
		Retrieval:    navigator,
		Maintenance:  services.NewArborist(stores, pipeline),
		Settings:     settingsService,
		ServeMetrics: m.Serve,
		Watch:        watcher,
	})

	return cli.Execute(ctx)
}

// openStorage opens the configured backend and returns a function that
// releases it.
func openStorage(ctx context.Context, s domain.StorageSettings) (driven.Storage, func(), error) {
	noop := func() {}
	switch s.Backend {
	case domain.StorageMemory:
		logger.Warn("Using in-memory storage; nothing will be persisted")
		return memory.NewStorage(), noop, nil
	case domain.StorageSQLite:
		store, err := sqlite.NewStore(expandHome(s.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store.Storage(), func() { _ = store.Close() }, nil
	case domain.StorageDynamoDB:
		store, err := dynamodb.NewFromConfig(ctx, s.Table, s.Region, os.Getenv(EnvDynamoEndpoint))
		if err != nil {
			return nil, nil, fmt.Errorf("open dynamodb storage: %w", err)
		}
		return store, noop, nil
	default:
		store, err := filestorage.NewStorage(expandHome(s.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("open file storage: %w", err)
		}
		return store, noop, nil
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// newNormalisers registers the text extractors used for file ingestion.
func newNormalisers() *normalisers.Registry {
	return normalisers.NewRegistry(
		markdown.New(),
		html.New(),
		docx.New(),
		eml.New(),
		plaintext.New(),
	)
}
