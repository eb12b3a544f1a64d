package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/jsonrepair"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// Ensure OracleService implements the interface.
var _ driven.Oracle = (*OracleService)(nil)

// OracleService renders prompt templates and sends them to the LLM with a
// per-call timeout.
type OracleService struct {
	llm     driven.LLMService
	prompts driven.PromptStore
	metrics driven.Metrics
	timeout atomic.Int64
}

// NewOracleService creates an oracle. The llm may be nil, in which case
// every call fails with ErrLLMUnavailable and callers use their fallbacks.
func NewOracleService(
	llm driven.LLMService, prompts driven.PromptStore, metrics driven.Metrics, timeout time.Duration,
) *OracleService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	o := &OracleService{
		llm:     llm,
		prompts: prompts,
		metrics: metrics,
	}
	o.SetTimeout(timeout)
	return o
}

// SetTimeout changes the default per-call timeout. Zero disables it.
func (o *OracleService) SetTimeout(d time.Duration) {
	o.timeout.Store(int64(d))
}

// Render fills the named template with vars. Missing variables render empty.
func (o *OracleService) Render(name string, vars map[string]string) (string, error) {
	text, err := o.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("loading prompt %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing prompt %s: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return b.String(), nil
}

// Complete renders the prompt and returns the model's reply.
func (o *OracleService) Complete(
	ctx context.Context, prompt string, vars map[string]string, opts driven.OracleOptions,
) (string, error) {
	if o.llm == nil {
		return "", errors.Join(domain.ErrOracleFailure, domain.ErrLLMUnavailable)
	}
	rendered, err := o.Render(prompt, vars)
	if err != nil {
		return "", errors.Join(domain.ErrOracleFailure, err)
	}

	timeout := time.Duration(o.timeout.Load())
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := o.llm.Generate(ctx, rendered, driven.GenerateOptions{
		MaxTokens: opts.MaxTokens,
		JSON:      opts.ExpectsJSON,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		o.metrics.ObserveOracleCall(prompt, outcome, time.Since(start))
		return "", fmt.Errorf("oracle %s: %w", prompt, errors.Join(domain.ErrOracleFailure, err))
	}
	o.metrics.ObserveOracleCall(prompt, "ok", time.Since(start))
	logger.Debug("Oracle %s replied with %d bytes", prompt, len(reply))
	return reply, nil
}

// completeJSON calls the oracle expecting JSON and decodes the repaired
// reply into v.
func completeJSON(
	ctx context.Context, oracle driven.Oracle, prompt string, vars map[string]string, v any,
) error {
	reply, err := oracle.Complete(ctx, prompt, vars, driven.OracleOptions{ExpectsJSON: true})
	if err != nil {
		return err
	}
	if err := jsonrepair.Decode(reply, v); err != nil {
		return fmt.Errorf("oracle %s: %w", prompt, err)
	}
	return nil
}
