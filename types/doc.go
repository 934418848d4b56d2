// Package types defines the shared data model of the FourBlocks retrieval
// engine: knowledge chunks, the embeddings database container, scored search
// results, and the unified error type used across packages.
package types
