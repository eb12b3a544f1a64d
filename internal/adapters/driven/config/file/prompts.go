package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads oracle prompt templates from user-editable files on
// disk, falling back to embedded defaults.
//
// The store uses lazy initialisation: files are only created when first
// accessed, not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// PromptExt is the file extension of prompt templates.
const PromptExt = ".tmpl"

// defaultPrompts contains embedded default templates. They are also the
// initial content written for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptGist: `You maintain a knowledge tree organised by this principle: {{.principle}}

Write a gist for the content titled "{{.title}}": one or two sentences, at most {{.max_length}} characters, that tell a reader what they will find in it and when it is relevant. Do not start with "This document".

Content:
{{.content}}

Reply with the gist only.`,

	driven.PromptTitle: `Give the following content a short, specific title of at most eight words.
Reply with the title only, without quotes or markdown.

Content:
{{.content}}`,

	driven.PromptPlacement: `You file new content into a knowledge tree organised by this principle: {{.principle}}

These are the folders that may hold content (id | title | gist):
{{.map}}

New content:
Title: {{.title}}
Excerpt: {{.gist}}

Choose the single best folder. Reply with JSON only: {"folderId": "<id>", "reason": "<one sentence>"}`,

	driven.PromptMapScan: `A user asked: "{{.query}}"

Below is the map of a knowledge tree. Each line is "id | title | gist", indented by depth.
{{.map}}

List the ids of the nodes most likely to contain the answer, best first. Prefer specific nodes over broad folders. Return at most five.
Reply with JSON only: {"nodeIds": ["<id>", ...]}`,

	driven.PromptRelevance: `Rate how useful this node is for answering the question, from 0 (unrelated) to 10 (answers it directly).

Question: {{.query}}

Node title: {{.title}}
Node gist: {{.gist}}
Excerpt:
{{.excerpt}}

Reply with JSON only: {"score": <0-10>, "reason": "<one sentence>"}`,

	driven.PromptBranch: `You are navigating a knowledge tree to answer: "{{.query}}"
Phase: {{.phase}}. {{.guidance}}

Current node: {{.parent}}

Children (id | title | gist):
{{.children}}

Select the children worth exploring. Selecting none is allowed.
Reply with JSON only: {"selected": ["<id>", ...]}`,

	driven.PromptAnswer: `Answer the question using only the numbered sources below. Cite sources inline as [n]. If the sources do not contain the answer, say so.

Question: {{.query}}

Sources:
{{.sources}}`,

	driven.PromptAudit: `You review the structure of a knowledge tree organised by this principle: {{.principle}}

Tree map (id | title | gist, indented by depth):
{{.map}}

Propose repairs where the structure is poor: group related siblings ("cluster", with "name" for the new folder), delete empty or redundant branches ("prune"), fix misleading titles ("rename", with "name"), and relocate misfiled nodes ("move", with "targetId").
Reply with JSON only: {"operations": [{"action": "cluster|prune|rename|move", "nodeIds": ["<id>"], "name": "", "targetId": "", "reason": ""}]}
Reply {"operations": []} if the tree is fine.`,
}

// DefaultPrompt returns the embedded template for name.
func DefaultPrompt(name string) (string, bool) {
	p, ok := defaultPrompts[name]
	return p, ok
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.fraktag/prompts/.
//
// The constructor does not perform any I/O.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".fraktag", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name. A missing or
// unreadable file falls back to the embedded default.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	if err != nil || prompt == "" {
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		if err == nil {
			err = fmt.Errorf("empty template")
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Keep a concurrent loader's value if it got there first.
	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+PromptExt)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

func (s *PromptStore) loadFromFile(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid prompt name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+PromptExt))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	var b strings.Builder
	b.WriteString("# Fraktag Prompts\n\n")
	b.WriteString("Templates sent to the oracle. Edit a file to change behaviour; running\n")
	b.WriteString("commands started with --watch pick up changes immediately.\n\n")
	b.WriteString("Templates use Go text/template syntax. Variables per file:\n\n")
	for _, name := range driven.AllPrompts {
		fmt.Fprintf(&b, "- `%s%s`: %s\n", name, PromptExt, promptVars[name])
	}
	b.WriteString("\nPrompts that ask for JSON must keep the reply shape shown in the default.\n")
	b.WriteString("Delete a file to restore its default.\n")
	return os.WriteFile(path, []byte(b.String()), 0600)
}

var promptVars = map[string]string{
	driven.PromptGist:      "principle, title, content, max_length",
	driven.PromptTitle:     "content",
	driven.PromptPlacement: "principle, map, title, gist",
	driven.PromptMapScan:   "query, map",
	driven.PromptRelevance: "query, title, gist, excerpt",
	driven.PromptBranch:    "query, phase, guidance, parent, children",
	driven.PromptAnswer:    "query, sources",
	driven.PromptAudit:     "principle, map",
}
