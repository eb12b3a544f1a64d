package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/fraktag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Manage knowledge trees",
}

var treeCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a tree",
	Long: `Create a knowledge tree with an organizing principle and optional seed folders.

Either give a name and --principle, or describe the tree in YAML:

  id: physics
  name: Physics notes
  principle: By subfield, then by phenomenon
  seeds:
    - title: Optics
      gist: Light and its interactions
      children:
        - title: Scattering

  fraktag tree create --from physics.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTreeCreate,
}

var treeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trees",
	Args:  cobra.NoArgs,
	RunE:  runTreeList,
}

var treeShowCmd = &cobra.Command{
	Use:   "show [tree-id]",
	Short: "Render a tree's structure",
	Args:  cobra.ExactArgs(1),
	RunE:  runTreeShow,
}

var treeMapCmd = &cobra.Command{
	Use:   "map [tree-id]",
	Short: "Print the id/title/gist map the oracle sees",
	Args:  cobra.ExactArgs(1),
	RunE:  runTreeMap,
}

func init() {
	treeCreateCmd.Flags().String("id", "", "tree id (generated when empty)")
	treeCreateCmd.Flags().StringP("principle", "p", "", "organizing principle")
	treeCreateCmd.Flags().StringSlice("seed", nil, "top-level seed folder title (repeatable)")
	treeCreateCmd.Flags().StringP("from", "f", "", "YAML tree definition file")
	treeShowCmd.Flags().Bool("gists", false, "show gists under each node")
	for _, c := range []*cobra.Command{treeCreateCmd, treeListCmd, treeShowCmd} {
		c.Flags().Bool("json", false, "output as JSON")
	}

	treeCmd.AddCommand(treeCreateCmd)
	treeCmd.AddCommand(treeListCmd)
	treeCmd.AddCommand(treeShowCmd)
	treeCmd.AddCommand(treeMapCmd)
	rootCmd.AddCommand(treeCmd)
}

func runTreeCreate(cmd *cobra.Command, args []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}

	var req driving.CreateTreeRequest
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		def, err := file.LoadTreeDefinition(from)
		if err != nil {
			return err
		}
		req = def
	}
	if len(args) == 1 {
		req.Name = args[0]
	}
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		req.ID = id
	}
	if principle, _ := cmd.Flags().GetString("principle"); principle != "" {
		req.OrganizingPrinciple = principle
	}
	seeds, _ := cmd.Flags().GetStringSlice("seed")
	for _, title := range seeds {
		req.Seeds = append(req.Seeds, driving.SeedFolder{Title: title})
	}
	if req.Name == "" {
		return errors.New("a tree name is required (argument or 'name' in --from)")
	}

	t, err := treeService.CreateTree(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, t)
	}
	cmd.Printf("Created tree %s (%s)\n", t.Name, t.ID)
	cmd.Printf("  Root: %s\n", t.RootNodeID)
	return nil
}

func runTreeList(cmd *cobra.Command, _ []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	trees, err := treeService.ListTrees(cmd.Context())
	if err != nil {
		return fmt.Errorf("list trees: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, trees)
	}
	if len(trees) == 0 {
		cmd.Println("No trees yet. Create one with 'fraktag tree create'.")
		return nil
	}
	for _, t := range trees {
		cmd.Printf("%s  %s\n", t.ID, t.Name)
		cmd.Printf("    %s\n", t.OrganizingPrinciple)
	}
	return nil
}

func runTreeShow(cmd *cobra.Command, args []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	ctx := cmd.Context()
	t, err := treeService.GetTree(ctx, args[0])
	if err != nil {
		return err
	}
	nodes, err := treeService.Nodes(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd, nodes)
	}
	gists, _ := cmd.Flags().GetBool("gists")
	cmd.Println(headerStyle.Render(t.Name))
	cmd.Println(renderTree(nodes, gists))
	return nil
}

func runTreeMap(cmd *cobra.Command, args []string) error {
	if treeService == nil {
		return notConfigured("tree")
	}
	m, err := treeService.RenderMap(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Print(m)
	if len(m) > 0 && m[len(m)-1] != '\n' {
		cmd.Println()
	}
	return nil
}

// renderTree draws nodes, given in depth-first order, as a lipgloss tree.
func renderTree(nodes []*domain.Node, withGists bool) string {
	if len(nodes) == 0 {
		return ""
	}
	children := make(map[string][]*domain.Node)
	var root *domain.Node
	for _, n := range nodes {
		if n.IsRoot() {
			root = n
			continue
		}
		children[n.Parent()] = append(children[n.Parent()], n)
	}
	if root == nil {
		return ""
	}

	var build func(n *domain.Node) *tree.Tree
	build = func(n *domain.Node) *tree.Tree {
		t := tree.Root(nodeLabel(n, withGists)).
			Enumerator(tree.RoundedEnumerator).
			EnumeratorStyle(branchStyle)
		for _, c := range children[n.ID] {
			if len(children[c.ID]) == 0 {
				t.Child(nodeLabel(c, withGists))
				continue
			}
			t.Child(build(c))
		}
		return t
	}
	return build(root).String()
}

func nodeLabel(n *domain.Node, withGist bool) string {
	var label string
	switch n.Type {
	case domain.NodeFolder:
		label = folderStyle.Render(n.Title + "/")
	case domain.NodeFragment:
		label = fragmentStyle.Render(n.Title)
	default:
		label = documentStyle.Render(n.Title)
	}
	label += " " + idStyle.Render(n.ID)
	if withGist && n.Gist != "" {
		label += "\n" + gistStyle.Render(n.Gist)
	}
	return label
}
