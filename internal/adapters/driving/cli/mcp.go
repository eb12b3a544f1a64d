package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fraktag/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can query and
extend your knowledge trees.

Tools: retrieve, ask, tree_map and (unless --read-only) ingest.
Resources: fraktag://trees and fraktag://trees/{treeId}/nodes/{nodeId}.

By default the server communicates over stdio using JSON-RPC. Use --port to
serve over HTTP instead.

Examples:
  # Stdio mode (default, for desktop assistants)
  fraktag mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  fraktag mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "fraktag": {
        "command": "/path/to/fraktag",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().Bool("read-only", false, "do not expose the ingest tool")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func mcpPorts(readOnly bool) *mcp.Ports {
	ports := &mcp.Ports{
		Trees:     treeService,
		Retrieval: retrievalService,
	}
	if !readOnly {
		ports.Ingestion = ingestionService
	}
	return ports
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	readOnly, _ := cmd.Flags().GetBool("read-only")

	server, err := mcp.NewServer(mcpPorts(readOnly))
	if err != nil {
		return err
	}
	startWatch(cmd.Context())

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
