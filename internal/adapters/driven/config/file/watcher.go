package file

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/fraktag/internal/logger"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads the config store and prompt templates when their files
// change on disk.
type Watcher struct {
	config   *ConfigStore
	prompts  *PromptStore
	debounce time.Duration
	onReload func(path string)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timers  map[string]*time.Timer
}

// NewWatcher watches the directories holding the config file and the
// prompt templates. Either store may be nil. onReload, when set, is
// called after each reload with the file that triggered it.
func NewWatcher(config *ConfigStore, prompts *PromptStore, onReload func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		config:   config,
		prompts:  prompts,
		debounce: DefaultDebounce,
		onReload: onReload,
		watcher:  fw,
		timers:   make(map[string]*time.Timer),
	}
	dirs := map[string]bool{}
	if config != nil {
		dirs[filepath.Dir(config.Path())] = true
	}
	if prompts != nil {
		dirs[prompts.Dir()] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		logger.Debug("Watching %s", dir)
	}
	return w, nil
}

// Run processes file events until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			for _, t := range w.timers {
				t.Stop()
			}
			w.mu.Unlock()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.relevant(event.Name) {
				w.schedule(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) relevant(path string) bool {
	if w.config != nil && filepath.Clean(path) == filepath.Clean(w.config.Path()) {
		return true
	}
	return w.prompts != nil &&
		filepath.Dir(path) == filepath.Clean(w.prompts.Dir()) &&
		strings.HasSuffix(path, PromptExt)
}

// schedule reloads path once no further events arrive for the debounce
// period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.reload(path) })
}

func (w *Watcher) reload(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	if strings.HasSuffix(path, PromptExt) {
		w.prompts.Reload()
		logger.Info("Reloaded prompts after change to %s", filepath.Base(path))
	} else {
		if err := w.config.Load(); err != nil {
			logger.Warn("Keeping previous configuration, reload of %s failed: %v", path, err)
			return
		}
		logger.Info("Reloaded configuration from %s", path)
	}
	if w.onReload != nil {
		w.onReload(path)
	}
}
