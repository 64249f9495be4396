// Package retrieval implements the grounding document engine. A versioned
// in-memory vector index serves coarse candidates by embedding similarity;
// a lexical rerank stage narrows them to the requested topK. Ingestion builds
// immutable snapshots, so a query pinned to a corpus version is deterministic
// regardless of concurrent ingestion.
package retrieval
