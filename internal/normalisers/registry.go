package normalisers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches raw documents to the highest priority normaliser
// that supports their MIME type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// Register adds a normaliser. Normalisers of equal priority keep
// registration order.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// SupportedMIMETypes returns every registered MIME type, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var types []string
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	sort.Strings(types)
	return types
}

// Normalise extracts the text of raw. An exact MIME match beats a
// wildcard match. Returns domain.ErrInvalidInput when nothing supports the
// type.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	n := r.lookup(baseType(raw.MIMEType))
	if n == nil {
		return nil, fmt.Errorf("%w: no normaliser for %q", domain.ErrInvalidInput, raw.MIMEType)
	}
	result, err := n.Normalise(ctx, raw)
	if err != nil {
		return nil, err
	}
	if result.Title == "" {
		result.Title = TitleFromURI(raw.URI)
	}
	return result, nil
}

func (r *Registry) lookup(mimeType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	major, _, _ := strings.Cut(mimeType, "/")
	var wildcard driven.Normaliser
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if t == mimeType {
				return n
			}
			if wildcard == nil && (t == major+"/*" || t == "*/*") {
				wildcard = n
			}
		}
	}
	return wildcard
}

// baseType strips parameters and lowercases a MIME type.
func baseType(mimeType string) string {
	if t, _, err := mime.ParseMediaType(mimeType); err == nil {
		return t
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// TitleFromURI derives a readable title from the last path element of a
// URI: "release-notes_v2.md" becomes "release notes v2".
func TitleFromURI(uri string) string {
	if uri == "" {
		return ""
	}
	name := filepath.Base(strings.TrimPrefix(uri, "file://"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.TrimSpace(name)
}
