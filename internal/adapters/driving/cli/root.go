// Package cli implements the fraktag command line on top of the driving
// ports. Services are injected by main through SetServices before Execute.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

// Services holds everything the commands need. Nil fields disable the
// commands that depend on them.
type Services struct {
	Trees       driving.TreeService
	Ingestion   driving.IngestionService
	Retrieval   driving.RetrievalService
	Maintenance driving.MaintenanceService
	Settings    driving.SettingsService

	// ServeMetrics exposes metrics on addr until ctx ends. Used by `fraktag serve`.
	ServeMetrics func(ctx context.Context, addr string) error

	// Watch, when set, reloads configuration and prompts until ctx ends.
	// Long-running commands start it in the background.
	Watch func(ctx context.Context) error
}

var (
	treeService        driving.TreeService
	ingestionService   driving.IngestionService
	retrievalService   driving.RetrievalService
	maintenanceService driving.MaintenanceService
	settingsService    driving.SettingsService
	serveMetrics       func(ctx context.Context, addr string) error
	watchFunc          func(ctx context.Context) error
)

// SetServices injects the services used by the commands.
func SetServices(s *Services) {
	treeService = s.Trees
	ingestionService = s.Ingestion
	retrievalService = s.Retrieval
	maintenanceService = s.Maintenance
	settingsService = s.Settings
	serveMetrics = s.ServeMetrics
	watchFunc = s.Watch
}

var errServiceUnavailable = errors.New("service not configured")

var rootCmd = &cobra.Command{
	Use:   "fraktag",
	Short: "Hierarchical knowledge trees with navigational retrieval",
	Long: `Fraktag files documents into knowledge trees organised by a principle you
choose, writes a gist for every node, and answers questions by navigating
the tree with an LLM rather than by vector similarity alone.

Configuration lives in ~/.fraktag/config.toml; see 'fraktag config show'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		logger.SetVerbose(verbose)
		logger.SetJSON(logJSON || !term.IsTerminal(int(os.Stderr.Fd())))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("log-json", false, "write logs as JSON lines")
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// RootCommand returns the root command, for embedding and doc generation.
func RootCommand() *cobra.Command {
	return rootCmd
}

// notConfigured reports a command whose backing service was not injected.
func notConfigured(name string) error {
	return fmt.Errorf("%s %w", name, errServiceUnavailable)
}

// printJSON writes v to the command output as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// startWatch runs the configured watcher in the background until ctx ends.
func startWatch(ctx context.Context) {
	if watchFunc == nil {
		return
	}
	go func() {
		if err := watchFunc(ctx); err != nil {
			logger.Warn("Config watcher stopped: %v", err)
		}
	}()
}
