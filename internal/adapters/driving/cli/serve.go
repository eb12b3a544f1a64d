package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/fraktag/internal/adapters/driving/mcp"
	"github.com/custodia-labs/fraktag/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP HTTP server with Prometheus metrics",
	Long: `Run fraktag as a long-lived service: the MCP server over HTTP, plus a
separate listener exposing /metrics and /healthz for Prometheus.

Configuration and prompt files are reloaded when they change.

Examples:
  fraktag serve --addr :8080 --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "MCP HTTP listen address")
	serveCmd.Flags().String("metrics-addr", ":9090", "metrics listen address (empty disables)")
	serveCmd.Flags().Bool("read-only", false, "do not expose the ingest tool")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	readOnly, _ := cmd.Flags().GetBool("read-only")

	server, err := mcp.NewServer(mcpPorts(readOnly))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	startWatch(ctx)

	g.Go(func() error {
		cmd.Printf("MCP server listening on %s\n", addr)
		return server.RunHTTP(ctx, addr)
	})

	switch {
	case metricsAddr == "":
	case serveMetrics == nil:
		logger.Warn("Metrics are not available in this build; ignoring --metrics-addr %s", metricsAddr)
	default:
		g.Go(func() error {
			return serveMetrics(ctx, metricsAddr)
		})
	}

	return g.Wait()
}
