package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// Circuit breaker tuning shared by both capabilities.
const (
	breakerMinRequests = 5
	breakerFailRatio   = 0.6
	breakerInterval    = 60 * time.Second
	breakerCooldown    = 30 * time.Second
)

// gate bounds concurrent calls, throttles their rate and trips after a run
// of provider failures.
type gate struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newGate(name string, settings *domain.CapabilitySettings) *gate {
	workers := settings.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	g := &gate{sem: semaphore.NewWeighted(int64(workers))}
	if settings.RequestsPerSecond > 0 {
		burst := int(settings.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), burst)
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
		},
		// Caller cancellation says nothing about provider health. Deadline
		// expiry counts as a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return g
}

// do runs fn once a worker slot and a rate token are available. An open
// breaker or exhausted rate budget yields domain.ErrRateLimited.
func (g *gate) do(ctx context.Context, fn func() error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		}
	}

	_, err := g.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", g.breaker.Name(), domain.ErrRateLimited, err)
	}
	return err
}

// Ensure the guarded services implement their interfaces.
var (
	_ driven.LLMService       = (*guardedLLM)(nil)
	_ driven.EmbeddingService = (*guardedEmbedding)(nil)
)

type guardedLLM struct {
	driven.LLMService
	gate *gate
}

// GuardLLM wraps an LLM service with the concurrency, rate and breaker
// limits from settings.
func GuardLLM(svc driven.LLMService, settings *domain.CapabilitySettings) driven.LLMService {
	if svc == nil {
		return nil
	}
	return &guardedLLM{LLMService: svc, gate: newGate("oracle", settings)}
}

func (g *guardedLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	var out string
	err := g.gate.do(ctx, func() error {
		var err error
		out, err = g.LLMService.Generate(ctx, prompt, opts)
		return err
	})
	return out, err
}

func (g *guardedLLM) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	var out string
	err := g.gate.do(ctx, func() error {
		var err error
		out, err = g.LLMService.Chat(ctx, messages, opts)
		return err
	})
	return out, err
}

type guardedEmbedding struct {
	driven.EmbeddingService
	gate *gate
}

// GuardEmbedding wraps an embedding service with the concurrency, rate and
// breaker limits from settings.
func GuardEmbedding(svc driven.EmbeddingService, settings *domain.CapabilitySettings) driven.EmbeddingService {
	if svc == nil {
		return nil
	}
	return &guardedEmbedding{EmbeddingService: svc, gate: newGate("embedding", settings)}
}

func (g *guardedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.gate.do(ctx, func() error {
		var err error
		out, err = g.EmbeddingService.Embed(ctx, text)
		return err
	})
	return out, err
}

func (g *guardedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := g.gate.do(ctx, func() error {
		var err error
		out, err = g.EmbeddingService.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}
