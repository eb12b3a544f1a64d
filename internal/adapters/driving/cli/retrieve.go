package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fraktag/internal/core/domain"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Find the nodes relevant to a query",
	Long: `Navigate a tree to find nodes relevant to a query. Vector hits seed the
search, the oracle scans the tree map, then drills into promising branches.

Examples:
  fraktag retrieve "how does raft elect a leader" --tree research
  fraktag retrieve "leader election" --tree research --resolution gist --depth 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from a tree with citations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	for _, c := range []*cobra.Command{retrieveCmd, askCmd} {
		c.Flags().StringP("tree", "t", "", "tree id (required)")
		c.Flags().Int("depth", 0, "maximum drilling depth (0 = configured default)")
		c.Flags().Int("top-k", 0, "vector hits used for seeding (0 = configured default)")
		c.Flags().Bool("json", false, "output as JSON")
		_ = c.MarkFlagRequired("tree")
	}
	retrieveCmd.Flags().StringP("resolution", "r", "", "gist, summary or full (default from config)")
	retrieveCmd.Flags().Bool("score-root", false, "let the oracle score the root like any other node")

	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(askCmd)
}

func retrieveOptions(cmd *cobra.Command) (string, domain.RetrieveOptions, error) {
	flags := cmd.Flags()
	treeID, _ := flags.GetString("tree")
	var opts domain.RetrieveOptions
	opts.MaxDepth, _ = flags.GetInt("depth")
	opts.TopK, _ = flags.GetInt("top-k")
	if flags.Lookup("resolution") != nil {
		res, _ := flags.GetString("resolution")
		opts.Resolution = domain.Resolution(res)
		if res != "" && !opts.Resolution.IsValid() {
			return "", opts, fmt.Errorf("invalid resolution %q: must be gist, summary or full", res)
		}
	}
	if flags.Lookup("score-root") != nil {
		opts.ForceRootScoring, _ = flags.GetBool("score-root")
	}
	return treeID, opts, nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return notConfigured("retrieval")
	}
	treeID, opts, err := retrieveOptions(cmd)
	if err != nil {
		return err
	}
	query := strings.Join(args, " ")

	result, err := retrievalService.Retrieve(cmd.Context(), treeID, query, opts)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, result)
	}
	if len(result.Results) == 0 {
		cmd.Printf("No relevant nodes for %q (visited %d)\n", query, len(result.Trail))
		return nil
	}
	cmd.Printf("Found %d nodes for %q (visited %d):\n\n", len(result.Results), query, len(result.Trail))
	for i := range result.Results {
		printRetrieved(cmd, i+1, &result.Results[i])
	}
	return nil
}

func printRetrieved(cmd *cobra.Command, n int, r *domain.RetrievedNode) {
	cmd.Printf("%d. %s [%s] score %.1f\n", n, r.Title, r.Type, r.Score)
	cmd.Printf("   %s\n", idStyle.Render(r.NodeID))
	if r.Reason != "" {
		cmd.Printf("   Why: %s\n", r.Reason)
	}
	if r.Content != "" && r.Content != r.Gist {
		cmd.Printf("   %s\n", indent(truncate(r.Content, 600), "   "))
	} else if r.Gist != "" {
		cmd.Printf("   %s\n", gistStyle.Render(r.Gist))
	}
	cmd.Println()
}

func runAsk(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return notConfigured("retrieval")
	}
	treeID, opts, err := retrieveOptions(cmd)
	if err != nil {
		return err
	}

	answer, err := retrievalService.Ask(cmd.Context(), treeID, strings.Join(args, " "), opts)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, answer)
	}
	for _, w := range answer.Warnings {
		cmd.Println(warnStyle.Render("Warning: " + w))
	}
	if answer.Text != "" {
		cmd.Println(answer.Text)
		cmd.Println()
	}
	if len(answer.Sources) > 0 {
		cmd.Println("Sources:")
		for i, s := range answer.Sources {
			cmd.Printf("  [%d] %s %s\n", i+1, s.Title, idStyle.Render(s.NodeID))
		}
	}
	return nil
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	cut := strings.LastIndexByte(s[:limit], ' ')
	if cut < limit/2 {
		cut = limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}
	return s[:cut] + "..."
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
