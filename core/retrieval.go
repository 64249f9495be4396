package core

import "context"

// RetrievedDocument is a grounding excerpt produced per query. Transient:
// never persisted by this core.
type RetrievedDocument struct {
	DocID         string  `json:"doc_id"`
	Score         float64 `json:"score"` // in [0,1]
	SourceVersion string  `json:"source_version"`
	Excerpt       string  `json:"excerpt"`
}

// Retriever returns ranked grounding documents for a query against a pinned
// corpus snapshot. Implementations must be deterministic for a fixed
// (corpusVersion, query) pair and return an empty slice, not an error, when
// nothing clears the minimum score threshold.
type Retriever interface {
	Retrieve(ctx context.Context, query, corpusVersion string, topK int) ([]RetrievedDocument, error)
}
