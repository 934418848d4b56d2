// Package retrieval implements the hybrid retrieval pipeline of the
// FourBlocks engine: cosine-similarity vector search, keyword search with
// emotional-block detection, weighted score fusion, and one-hop graph
// expansion over chunk cross-references. The Engine type ties the stages
// together behind an atomically-swapped, read-only corpus snapshot.
package retrieval
