package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driving"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// mediaTypes maps the file types picked up from directories to the media
// type that selects their normaliser.
var mediaTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".rst":      "text/plain",
	".html":     "text/html",
	".htm":      "text/html",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".eml":      "message/rfc822",
}

// watchSettle is how long a file must be quiet before it is ingested.
const watchSettle = 500 * time.Millisecond

var ingestCmd = &cobra.Command{
	Use:   "ingest [file|dir]...",
	Short: "Add documents to a tree",
	Long: `Ingest text files as documents. Without --folder the oracle chooses the best
leaf folder from the tree map. Text is extracted from HTML, Word and email
files; headings are kept so --split can follow them. Directories are scanned
for .md, .txt, .rst, .html, .docx and .eml files.

With --replace, a file ingested before updates its existing document instead
of adding a second one. --watch implies --replace: the given directories are
watched and new or changed files are ingested as they appear until
interrupted.

Examples:
  fraktag ingest notes.md --tree research
  fraktag ingest paper.md --tree research --split
  fraktag ingest ~/inbox --tree research --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var fragmentCmd = &cobra.Command{
	Use:   "fragment [document-id] [file]",
	Short: "Attach a fragment to a document",
	Args:  cobra.ExactArgs(2),
	RunE:  runFragment,
}

var updateCmd = &cobra.Command{
	Use:   "update [node-id] [file]",
	Short: "Replace a document or fragment's content",
	Long: `Replace the content of an editable node. Readonly content is superseded by a
new atom; the old version stays reachable through 'fraktag history'.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

func init() {
	ingestCmd.Flags().StringP("tree", "t", "", "tree id (required)")
	ingestCmd.Flags().String("folder", "", "leaf folder id (suggested when empty)")
	ingestCmd.Flags().String("title", "", "document title (generated when empty)")
	ingestCmd.Flags().String("gist", "", "document gist (generated when empty)")
	ingestCmd.Flags().Bool("split", false, "create one fragment per section")
	ingestCmd.Flags().Bool("editable", false, "store content as editable instead of readonly")
	ingestCmd.Flags().Bool("replace", false, "update documents previously ingested from the same file")
	ingestCmd.Flags().Bool("watch", false, "watch directories and ingest new or changed files")
	ingestCmd.Flags().Bool("json", false, "output as JSON")
	_ = ingestCmd.MarkFlagRequired("tree")

	fragmentCmd.Flags().StringP("tree", "t", "", "tree id (required)")
	fragmentCmd.Flags().String("title", "", "fragment title (generated when empty)")
	fragmentCmd.Flags().String("gist", "", "fragment gist (generated when empty)")
	fragmentCmd.Flags().Bool("editable", false, "store content as editable instead of readonly")
	_ = fragmentCmd.MarkFlagRequired("tree")

	updateCmd.Flags().StringP("tree", "t", "", "tree id (required)")
	_ = updateCmd.MarkFlagRequired("tree")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(fragmentCmd)
	rootCmd.AddCommand(updateCmd)
}

func editMode(cmd *cobra.Command) domain.EditMode {
	if editable, _ := cmd.Flags().GetBool("editable"); editable {
		return domain.EditModeEditable
	}
	return domain.EditModeReadonly
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return notConfigured("ingestion")
	}

	flags := cmd.Flags()
	base := driving.IngestRequest{EditMode: editMode(cmd)}
	base.TreeID, _ = flags.GetString("tree")
	base.FolderID, _ = flags.GetString("folder")
	base.Title, _ = flags.GetString("title")
	base.Gist, _ = flags.GetString("gist")
	base.Split, _ = flags.GetBool("split")
	asJSON, _ := flags.GetBool("json")
	watch, _ := flags.GetBool("watch")
	base.ReplaceBySource, _ = flags.GetBool("replace")
	base.ReplaceBySource = base.ReplaceBySource || watch

	paths, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(paths) > 1 && base.Title != "" {
		return errors.New("--title only applies to a single file")
	}

	var failed int
	for _, path := range paths {
		if err := ingestFile(cmd, base, path, asJSON); err != nil {
			logger.Error("Ingest %s: %v", path, err)
			failed++
		}
	}

	if watch {
		var dirs []string
		for _, a := range args {
			if info, err := os.Stat(a); err == nil && info.IsDir() {
				dirs = append(dirs, a)
			}
		}
		if len(dirs) == 0 {
			return errors.New("--watch needs at least one directory")
		}
		return watchAndIngest(cmd, base, dirs, asJSON)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to ingest", failed, len(paths))
	}
	return nil
}

func ingestFile(cmd *cobra.Command, base driving.IngestRequest, path string, asJSON bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	abs, _ := filepath.Abs(path)
	req := base
	req.Raw = data
	req.SourceURI = "file://" + abs
	req.MediaType = mediaType(path)

	result, err := ingestionService.IngestDocument(cmd.Context(), req)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd, result)
	}
	printIngestResult(cmd, filepath.Base(path), result)
	return nil
}

func printIngestResult(cmd *cobra.Command, label string, result *domain.IngestResult) {
	switch {
	case result.Unchanged:
		cmd.Printf("Unchanged %s (%s)\n", label, result.Node.ID)
		return
	case result.Updated:
		cmd.Printf("Updated %s\n", label)
	default:
		cmd.Printf("Ingested %s\n", label)
	}
	cmd.Printf("  Node:   %s\n", result.Node.ID)
	cmd.Printf("  Title:  %s\n", result.Node.Title)
	cmd.Printf("  Folder: %s\n", result.Node.Parent())
	cmd.Printf("  Gist:   %s\n", result.Node.Gist)
	if len(result.Fragments) > 0 {
		cmd.Printf("  Fragments: %d\n", len(result.Fragments))
	}
	for _, w := range result.Warnings {
		cmd.Println(warnStyle.Render("  Warning: " + w))
	}
}

// collectFiles expands directories into their ingestible files, sorted.
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, a := range args {
		info, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, a)
			continue
		}
		err = filepath.WalkDir(a, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && strings.HasPrefix(d.Name(), ".") && p != a {
				return filepath.SkipDir
			}
			if !d.IsDir() && ingestible(p) {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func ingestible(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	_, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

func mediaType(path string) string {
	if t, ok := mediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "text/plain"
}

// watchAndIngest ingests files created or written in dirs until the
// command's context is cancelled. Events are coalesced per file.
func watchAndIngest(cmd *cobra.Command, base driving.IngestRequest, dirs []string, asJSON bool) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	startWatch(ctx)
	cmd.Printf("Watching %s for new documents (Ctrl+C to stop)\n", strings.Join(dirs, ", "))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(watchSettle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && ingestible(event.Name) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < watchSettle {
					continue
				}
				delete(pending, path)
				if err := ingestFile(cmd, base, path, asJSON); err != nil {
					logger.Error("Ingest %s: %v", path, err)
				}
			}
		}
	}
}

func runFragment(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return notConfigured("ingestion")
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	req := driving.FragmentRequest{
		DocumentID: args[0],
		Text:       string(data),
		EditMode:   editMode(cmd),
	}
	req.TreeID, _ = cmd.Flags().GetString("tree")
	req.Title, _ = cmd.Flags().GetString("title")
	req.Gist, _ = cmd.Flags().GetString("gist")

	result, err := ingestionService.CreateFragment(cmd.Context(), req)
	if err != nil {
		return err
	}
	printIngestResult(cmd, filepath.Base(args[1]), result)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return notConfigured("ingestion")
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	treeID, _ := cmd.Flags().GetString("tree")

	result, err := ingestionService.UpdateNode(cmd.Context(), treeID, args[0], string(data))
	if err != nil {
		return err
	}
	cmd.Printf("Updated %s\n", result.Node.ID)
	cmd.Printf("  Content: %s\n", result.Node.ContentID)
	cmd.Printf("  Gist:    %s\n", result.Node.Gist)
	for _, w := range result.Warnings {
		cmd.Println(warnStyle.Render("  Warning: " + w))
	}
	return nil
}
