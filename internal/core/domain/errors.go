package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested node, tree or atom does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStructuralViolation indicates a tree invariant would be broken by a
	// create, save or move.
	ErrStructuralViolation = errors.New("structural violation")

	// ErrOracleFailure indicates the language model timed out, failed or
	// returned a response that could not be parsed.
	ErrOracleFailure = errors.New("oracle failure")

	// ErrEmbeddingFailure indicates the embedding provider failed.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrStorageFailure indicates the persistence backend failed.
	// There is no local recovery for this error.
	ErrStorageFailure = errors.New("storage failure")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Vector seeding and indexing are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRateLimited indicates a capability refused a call because its
	// circuit is open or its queue is saturated.
	ErrRateLimited = errors.New("rate limited")
)

// StructuralError describes which node broke which tree invariant.
type StructuralError struct {
	NodeID string
	Reason string
}

func (e *StructuralError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("structural violation: %s", e.Reason)
	}
	return fmt.Sprintf("structural violation at %s: %s", e.NodeID, e.Reason)
}

// Unwrap lets errors.Is match ErrStructuralViolation.
func (e *StructuralError) Unwrap() error {
	return ErrStructuralViolation
}

// Violation is a shorthand for building a *StructuralError.
func Violation(nodeID, format string, args ...any) error {
	return &StructuralError{NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}

// OracleParseError is returned when an oracle response cannot be recovered
// into the expected JSON shape.
type OracleParseError struct {
	// Stage is the repair stage that gave up (for example "bracket-bound" or "parse").
	Stage string
	// Raw is the response as received.
	Raw string
	Err error
}

func (e *OracleParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle response unparseable at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("oracle response unparseable at %s", e.Stage)
}

// Unwrap exposes both the cause and ErrOracleFailure.
func (e *OracleParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOracleFailure}
	}
	return []error{ErrOracleFailure, e.Err}
}
