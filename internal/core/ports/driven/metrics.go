package driven

import "time"

// Metrics records operational measurements. A nil-safe no-op
// implementation is used when metrics are disabled.
type Metrics interface {
	// ObserveOracleCall records one oracle call by prompt name and outcome
	// ("ok", "error", "timeout").
	ObserveOracleCall(prompt, outcome string, d time.Duration)

	// ObserveEmbedding records one embedding batch.
	ObserveEmbedding(outcome string, texts int, d time.Duration)

	// IncIngested counts created nodes by type.
	IncIngested(nodeType string)

	// ObserveRetrieval records one query.
	ObserveRetrieval(d time.Duration, results, visited int)

	// SetIndexEntries reports the entry count of a tree's vector index.
	SetIndexEntries(treeID string, n int)
}
