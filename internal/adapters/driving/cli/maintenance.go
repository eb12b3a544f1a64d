package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/logger"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [tree-id]",
	Short: "Check a tree's structural integrity",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var auditCmd = &cobra.Command{
	Use:   "audit [tree-id]",
	Short: "Ask the oracle to review a tree's structure",
	Long: `Ask the oracle to propose repairs: clustering related siblings, pruning
empty branches, renaming misleading titles and moving misfiled nodes.

Proposals are only printed unless --apply is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

var resetCmd = &cobra.Command{
	Use:   "reset [tree-id]",
	Short: "Remove every node except the root",
	Args:  cobra.ExactArgs(1),
	RunE:  runReset,
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete content no tree references",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

var clusterCmd = &cobra.Command{
	Use:   "cluster [node-id]...",
	Short: "Group sibling nodes under a new folder",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCluster,
}

var pruneCmd = &cobra.Command{
	Use:   "prune [node-id]",
	Short: "Delete a node and its subtree",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrune,
}

var renameCmd = &cobra.Command{
	Use:   "rename [node-id] [title]",
	Short: "Change a node's title",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRename,
}

var moveCmd = &cobra.Command{
	Use:   "move [node-id] [new-parent-id]",
	Short: "Move a node under a different parent",
	Args:  cobra.ExactArgs(2),
	RunE:  runMove,
}

var historyCmd = &cobra.Command{
	Use:   "history [content-id]",
	Short: "Show the version chain of a content atom",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	auditCmd.Flags().Bool("apply", false, "apply the proposed operations")
	resetCmd.Flags().Bool("prune-content", false, "also delete content no longer referenced")
	resetCmd.Flags().Bool("yes", false, "confirm the reset")
	clusterCmd.Flags().String("name", "", "title of the new folder (required)")
	_ = clusterCmd.MarkFlagRequired("name")

	for _, c := range []*cobra.Command{verifyCmd, auditCmd, historyCmd} {
		c.Flags().Bool("json", false, "output as JSON")
	}
	for _, c := range []*cobra.Command{clusterCmd, pruneCmd, renameCmd, moveCmd} {
		c.Flags().StringP("tree", "t", "", "tree id (required)")
		_ = c.MarkFlagRequired("tree")
	}

	for _, c := range []*cobra.Command{
		verifyCmd, auditCmd, resetCmd, gcCmd, clusterCmd, pruneCmd, renameCmd, moveCmd, historyCmd,
	} {
		rootCmd.AddCommand(c)
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	report, err := treeService.Verify(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		cmd.Printf("Verified %d nodes in %s\n", report.NodeCount, report.TreeID)
		printIDs(cmd, "Orphans", report.Orphans)
		printIDs(cmd, "Missing content", report.MissingContent)
		printIDs(cmd, "Violations", report.Violations)
		printIDs(cmd, "Not indexed", report.Unindexed)
		if report.OK() {
			cmd.Println("OK")
		}
	}
	if !report.OK() {
		return fmt.Errorf("tree %s failed verification", report.TreeID)
	}
	return nil
}

func printIDs(cmd *cobra.Command, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	cmd.Printf("%s (%d):\n", label, len(ids))
	for _, id := range ids {
		cmd.Printf("  %s\n", id)
	}
}

func runAudit(cmd *cobra.Command, args []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	apply, _ := cmd.Flags().GetBool("apply")
	if apply && maintenanceService == nil {
		return notConfigured("maintenance")
	}

	report, err := treeService.Audit(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON && !apply {
		return printJSON(cmd, report)
	}

	for _, w := range report.Warnings {
		cmd.Println(warnStyle.Render("Warning: " + w))
	}
	if len(report.Operations) == 0 {
		cmd.Println("No changes proposed.")
		return nil
	}
	cmd.Printf("%d operations proposed:\n", len(report.Operations))
	for i, op := range report.Operations {
		cmd.Printf("  %d. %s\n", i+1, describeOperation(op))
	}
	if !apply {
		cmd.Println("\nRun again with --apply to perform them.")
		return nil
	}

	cmd.Println()
	var failed int
	for _, op := range report.Operations {
		summary, err := maintenanceService.Apply(cmd.Context(), args[0], op)
		if err != nil {
			logger.Warn("Skipping %s: %v", op.Kind, err)
			failed++
			continue
		}
		cmd.Printf("  %s\n", summary)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d operations failed", failed, len(report.Operations))
	}
	return nil
}

func describeOperation(op domain.Operation) string {
	var b strings.Builder
	b.WriteString(string(op.Kind))
	b.WriteString(" ")
	b.WriteString(strings.Join(op.NodeIDs, ", "))
	if op.Name != "" {
		fmt.Fprintf(&b, " -> %q", op.Name)
	}
	if op.TargetID != "" {
		fmt.Fprintf(&b, " -> %s", op.TargetID)
	}
	if op.Reason != "" {
		fmt.Fprintf(&b, " (%s)", op.Reason)
	}
	return b.String()
}

func runReset(cmd *cobra.Command, args []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.New("reset deletes every node of the tree; pass --yes to confirm")
	}
	prune, _ := cmd.Flags().GetBool("prune-content")

	report, err := treeService.Reset(cmd.Context(), args[0], prune)
	if err != nil {
		return err
	}
	cmd.Printf("Reset %s: removed %d nodes", report.TreeID, report.NodesRemoved)
	if prune {
		cmd.Printf(", pruned %d content atoms", report.AtomsPruned)
	}
	cmd.Println()
	return nil
}

func runGC(cmd *cobra.Command, _ []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	n, err := treeService.CollectGarbage(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Removed %d unreferenced content atoms\n", n)
	return nil
}

func runCluster(cmd *cobra.Command, args []string) error {
	if maintenanceService == nil {
		return notConfigured("maintenance")
	}
	treeID, _ := cmd.Flags().GetString("tree")
	name, _ := cmd.Flags().GetString("name")

	result, err := maintenanceService.Cluster(cmd.Context(), treeID, args, name)
	if err != nil {
		return err
	}
	cmd.Println(result.Summary)
	for id, reason := range result.Failed {
		cmd.Println(warnStyle.Render(fmt.Sprintf("  %s: %s", id, reason)))
	}
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	if maintenanceService == nil {
		return notConfigured("maintenance")
	}
	treeID, _ := cmd.Flags().GetString("tree")
	summary, err := maintenanceService.Prune(cmd.Context(), treeID, args[0])
	if err != nil {
		return err
	}
	cmd.Println(summary)
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	if maintenanceService == nil {
		return notConfigured("maintenance")
	}
	treeID, _ := cmd.Flags().GetString("tree")
	summary, err := maintenanceService.Rename(cmd.Context(), treeID, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	cmd.Println(summary)
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	if maintenanceService == nil {
		return notConfigured("maintenance")
	}
	treeID, _ := cmd.Flags().GetString("tree")
	summary, err := maintenanceService.Move(cmd.Context(), treeID, args[0], args[1])
	if err != nil {
		return err
	}
	cmd.Println(summary)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	atoms, err := treeService.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, atoms)
	}
	for i, a := range atoms {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		cmd.Printf("%s %s  %s  %s  %d bytes\n", marker, a.ID, a.CreatedAt.Format("2006-01-02 15:04"), a.EditMode, len(a.Payload))
	}
	return nil
}
