package retrieval

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/logging"
)

const (
	defaultCandidateWidth = 50
	defaultMinScore       = 0.1
	maxExcerptRunes       = 240
)

// Options configures an Engine.
type Options struct {
	// CandidateWidth bounds the coarse similarity stage. Defaults to 50.
	CandidateWidth int
	// MinScore is the threshold below which documents never appear in
	// results. Defaults to 0.1.
	MinScore float64
	// RerankWeight blends the lexical rerank score into the final ranking:
	// final = (1-w)*similarity + w*overlap. Zero disables the rerank stage.
	// Defaults to 0.5.
	RerankWeight float64
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Engine answers grounding queries against a versioned Index in two stages:
// cosine similarity selects CandidateWidth coarse candidates, then a
// term-overlap rerank orders them before truncating to topK. Both stages are
// deterministic; ties break on ascending document ID.
type Engine struct {
	index        *Index
	width        int
	minScore     float64
	rerankWeight float64
	logger       logging.Logger
}

// New creates an Engine over the given index.
func New(index *Index, optFns ...func(o *Options)) *Engine {
	opts := Options{
		CandidateWidth: defaultCandidateWidth,
		MinScore:       defaultMinScore,
		RerankWeight:   0.5,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.CandidateWidth <= 0 {
		opts.CandidateWidth = defaultCandidateWidth
	}
	return &Engine{
		index:        index,
		width:        opts.CandidateWidth,
		minScore:     opts.MinScore,
		rerankWeight: opts.RerankWeight,
		logger:       opts.Logger,
	}
}

// Index returns the underlying index, for ingestion.
func (e *Engine) Index() *Index { return e.index }

type scoredDoc struct {
	doc   *indexedDoc
	score float64
}

// Retrieve returns up to topK grounding documents for the query, ordered by
// descending score, against the pinned corpus version ("" means latest).
// topK=0 and an empty or unmatched corpus both return an empty slice, not an
// error. Embedding failures surface as RetrievalUnavailableError so callers
// can proceed without grounding.
func (e *Engine) Retrieve(ctx context.Context, query, corpusVersion string, topK int) ([]core.RetrievedDocument, error) {
	if topK <= 0 {
		return []core.RetrievedDocument{}, nil
	}
	snap, ok := e.index.snapshotFor(corpusVersion)
	if !ok {
		if corpusVersion != "" {
			return nil, &core.ValidationError{Field: "corpusVersion", Message: "unknown corpus version " + corpusVersion}
		}
		return []core.RetrievedDocument{}, nil
	}

	vecs, err := e.index.Embedder().Embed(ctx, []string{query})
	if err != nil {
		e.logger.Warn("retrieval.embed_failed", "error", err.Error())
		return nil, &core.RetrievalUnavailableError{Cause: err}
	}
	queryVec := vecs[0]

	candidates := make([]scoredDoc, 0, len(snap.docs))
	for i := range snap.docs {
		doc := &snap.docs[i]
		sim := cosine(queryVec, doc.vector)
		candidates = append(candidates, scoredDoc{doc: doc, score: sim})
	}
	sortByScore(candidates)
	if len(candidates) > e.width {
		candidates = candidates[:e.width]
	}

	if e.rerankWeight > 0 {
		queryTokens := tokenSet(query)
		for i := range candidates {
			overlap := termOverlap(queryTokens, candidates[i].doc.tokens)
			candidates[i].score = (1-e.rerankWeight)*candidates[i].score + e.rerankWeight*overlap
		}
		sortByScore(candidates)
	}

	results := make([]core.RetrievedDocument, 0, topK)
	for _, c := range candidates {
		if c.score < e.minScore {
			continue
		}
		results = append(results, core.RetrievedDocument{
			DocID:         c.doc.id,
			Score:         c.score,
			SourceVersion: snap.version,
			Excerpt:       excerpt(c.doc.text),
		})
		if len(results) == topK {
			break
		}
	}
	e.logger.Debug("retrieval.query", "version", snap.version, "candidates", len(candidates), "returned", len(results))
	return results, nil
}

// sortByScore orders by descending score with ascending docID as the
// deterministic tie-break.
func sortByScore(docs []scoredDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].score != docs[j].score {
			return docs[i].score > docs[j].score
		}
		return docs[i].doc.id < docs[j].doc.id
	})
}

// termOverlap is the fraction of query tokens present in the document.
func termOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := doc[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func excerpt(text string) string {
	if utf8.RuneCountInString(text) <= maxExcerptRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxExcerptRunes]) + "…"
}
