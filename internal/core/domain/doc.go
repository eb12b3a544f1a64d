// Package domain defines the core business entities for Fraktag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ContentAtom: an immutable, content-addressed blob
//   - Tree and Node: the typed knowledge hierarchy
//   - Chunk: a transient slice of text with source offsets
//   - VectorEntry: an embedded unit of indexed text
//   - Retrieval types: options, results and the navigation trail
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
