// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Storage: opaque path-addressed persistence (file, SQLite, DynamoDB, memory)
//   - LLMService: language model completions behind the oracle
//   - PromptStore: oracle prompt templates
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: without it nodes are stored unindexed and queries skip vector seeding.
//   - Metrics: without it measurements are discarded.
//   - NormaliserRegistry: without it raw bytes are ingested as UTF-8 text.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
