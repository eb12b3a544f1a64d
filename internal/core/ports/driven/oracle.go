package driven

import (
	"context"
	"time"
)

// Oracle renders a named prompt template and returns the model's reply.
// Failures wrap domain.ErrOracleFailure.
type Oracle interface {
	Complete(ctx context.Context, prompt string, vars map[string]string, opts OracleOptions) (string, error)
}

// OracleOptions configures a single oracle call.
type OracleOptions struct {
	// ExpectsJSON requests a JSON response from the provider.
	ExpectsJSON bool

	// MaxTokens bounds the reply length; zero uses the provider default.
	MaxTokens int

	// Timeout overrides the default per-call timeout when positive.
	Timeout time.Duration
}
