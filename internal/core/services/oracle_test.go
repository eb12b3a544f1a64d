package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
)

type mapPrompts map[string]string

func (p mapPrompts) Load(name string) (string, error) {
	text, ok := p[name]
	if !ok {
		return "", fmt.Errorf("prompt %s: %w", name, domain.ErrNotFound)
	}
	return text, nil
}

func (p mapPrompts) Reload() {}

type fakeLLM struct {
	reply   string
	err     error
	delay   time.Duration
	prompts []string
	opts    []driven.GenerateOptions
}

func (l *fakeLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	l.prompts = append(l.prompts, prompt)
	l.opts = append(l.opts, opts)
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return l.reply, l.err
}

func (l *fakeLLM) Chat(ctx context.Context, _ []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	return l.Generate(ctx, "", driven.GenerateOptions{MaxTokens: opts.MaxTokens})
}

func (l *fakeLLM) ModelName() string { return "fake" }
func (l *fakeLLM) Ping(_ context.Context) error { return nil }
func (l *fakeLLM) Close() error { return nil }

type recordingMetrics struct {
	NopMetrics
	outcomes []string
}

func (m *recordingMetrics) ObserveOracleCall(_, outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

func TestOracleService_Render(t *testing.T) {
	oracle := NewOracleService(&fakeLLM{}, mapPrompts{
		"greet": "Hello {{.name}}, {{.missing}}done",
	}, nil, 0)

	out, err := oracle.Render("greet", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, done", out)

	_, err = oracle.Render("nope", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOracleService_Complete(t *testing.T) {
	llm := &fakeLLM{reply: `{"score": 8}`}
	metrics := &recordingMetrics{}
	oracle := NewOracleService(llm, mapPrompts{driven.PromptRelevance: "Q: {{.query}}"}, metrics, time.Second)

	reply, err := oracle.Complete(context.Background(), driven.PromptRelevance,
		map[string]string{"query": "sky"}, driven.OracleOptions{ExpectsJSON: true, MaxTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 8}`, reply)
	require.Len(t, llm.prompts, 1)
	assert.Equal(t, "Q: sky", llm.prompts[0])
	assert.True(t, llm.opts[0].JSON)
	assert.Equal(t, 10, llm.opts[0].MaxTokens)
	assert.Equal(t, []string{"ok"}, metrics.outcomes)
}

func TestOracleService_Failures(t *testing.T) {
	prompts := mapPrompts{"p": "x"}

	t.Run("no llm", func(t *testing.T) {
		oracle := NewOracleService(nil, prompts, nil, 0)
		_, err := oracle.Complete(context.Background(), "p", nil, driven.OracleOptions{})
		assert.ErrorIs(t, err, domain.ErrOracleFailure)
		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	})

	t.Run("provider error", func(t *testing.T) {
		metrics := &recordingMetrics{}
		oracle := NewOracleService(&fakeLLM{err: errors.New("500")}, prompts, metrics, 0)
		_, err := oracle.Complete(context.Background(), "p", nil, driven.OracleOptions{})
		assert.ErrorIs(t, err, domain.ErrOracleFailure)
		assert.Equal(t, []string{"error"}, metrics.outcomes)
	})

	t.Run("timeout", func(t *testing.T) {
		metrics := &recordingMetrics{}
		oracle := NewOracleService(&fakeLLM{delay: time.Second}, prompts, metrics, 10*time.Millisecond)
		_, err := oracle.Complete(context.Background(), "p", nil, driven.OracleOptions{})
		assert.ErrorIs(t, err, domain.ErrOracleFailure)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, []string{"timeout"}, metrics.outcomes)
	})

	t.Run("unknown prompt", func(t *testing.T) {
		oracle := NewOracleService(&fakeLLM{}, prompts, nil, 0)
		_, err := oracle.Complete(context.Background(), "other", nil, driven.OracleOptions{})
		assert.ErrorIs(t, err, domain.ErrOracleFailure)
	})
}

func TestCompleteJSON_RepairsReply(t *testing.T) {
	oracle := NewOracleService(&fakeLLM{reply: "Sure! ```json\n{\"score\": 9, \"reason\": \"on topic\",}\n```"},
		mapPrompts{"p": "x"}, nil, 0)

	var reply struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	require.NoError(t, completeJSON(context.Background(), oracle, "p", nil, &reply))
	assert.InDelta(t, 9.0, reply.Score, 1e-9)
	assert.Equal(t, "on topic", reply.Reason)
}

func TestCompleteJSON_Unparseable(t *testing.T) {
	oracle := NewOracleService(&fakeLLM{reply: "I cannot help with that."}, mapPrompts{"p": "x"}, nil, 0)

	var v map[string]any
	err := completeJSON(context.Background(), oracle, "p", nil, &v)
	assert.ErrorIs(t, err, domain.ErrOracleFailure)
	var parseErr *domain.OracleParseError
	assert.ErrorAs(t, err, &parseErr)
}
