package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/postprocessors"
	"github.com/custodia-labs/fraktag/internal/postprocessors/splitter"
)

// --- Mock implementations ---

// hashEmbedder is a bag-of-words embedder: each lower-cased word is hashed
// into one of 256 buckets.
type hashEmbedder struct {
	fail error

	mu    sync.Mutex
	calls int
}

const hashDims = 256

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, hashDims)
		words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%hashDims]++
		}
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) Dimensions() int { return hashDims }
func (e *hashEmbedder) ModelName() string { return "hash-bow" }
func (e *hashEmbedder) Ping(_ context.Context) error { return nil }
func (e *hashEmbedder) Close() error { return nil }

// oracleCall records one scripted oracle invocation.
type oracleCall struct {
	prompt string
	vars   map[string]string
}

// scriptedOracle answers each prompt with a handler. Prompts without a
// handler fail.
type scriptedOracle struct {
	mu       sync.Mutex
	handlers map[string]func(vars map[string]string) (string, error)
	calls    []oracleCall
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{handlers: make(map[string]func(map[string]string) (string, error))}
}

func (o *scriptedOracle) on(prompt string, fn func(vars map[string]string) (string, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[prompt] = fn
}

func (o *scriptedOracle) reply(prompt, text string) {
	o.on(prompt, func(map[string]string) (string, error) { return text, nil })
}

func (o *scriptedOracle) Complete(
	_ context.Context, prompt string, vars map[string]string, _ driven.OracleOptions,
) (string, error) {
	o.mu.Lock()
	o.calls = append(o.calls, oracleCall{prompt: prompt, vars: vars})
	fn := o.handlers[prompt]
	o.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("%w: no script for %s", domain.ErrOracleFailure, prompt)
	}
	return fn(vars)
}

func (o *scriptedOracle) count(prompt string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if c.prompt == prompt {
			n++
		}
	}
	return n
}

// relevanceCalls returns the titles scored by the relevance prompt.
func (o *scriptedOracle) relevanceCalls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var titles []string
	for _, c := range o.calls {
		if c.prompt == driven.PromptRelevance {
			titles = append(titles, c.vars["title"])
		}
	}
	return titles
}

// testEnv wires every service onto in-memory storage.
type testEnv struct {
	storage   *memory.Storage
	stores    *Stores
	oracle    *scriptedOracle
	embedder  *hashEmbedder
	pipeline  driven.PostProcessorPipeline
	ingestion *IngestionService
	navigator *Navigator
	arborist  *Arborist
	trees     *TreeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	storage := memory.NewStorage()
	embedder := &hashEmbedder{}
	stores := NewStores(storage, embedder, nil)
	oracle := newScriptedOracle()

	settings := domain.DefaultSettings()
	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)
	pipeline, err := postprocessors.BuildPipeline(registry, settings.Ingestion)
	require.NoError(t, err)

	return &testEnv{
		storage:  storage,
		stores:   stores,
		oracle:   oracle,
		embedder: embedder,
		pipeline: pipeline,
		ingestion: NewIngestionService(stores, oracle, pipeline, settings.Ingestion,
			WithSectioner(splitter.New())),
		navigator: NewNavigator(stores, oracle, settings.Retrieval, nil),
		arborist:  NewArborist(stores, pipeline),
		trees:     NewTreeService(stores, oracle),
	}
}
