package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Document is a corpus entry supplied at ingestion.
type Document struct {
	ID   string
	Text string
}

type indexedDoc struct {
	id     string
	text   string
	vector []float32
	tokens map[string]struct{}
}

// snapshot is an immutable corpus version. Queries against it never observe
// later ingestion.
type snapshot struct {
	version string
	docs    []indexedDoc
}

// Index is a versioned in-memory vector index. Each Ingest call embeds the
// new documents and publishes a fresh snapshot containing everything ingested
// so far; earlier versions stay queryable until Compact drops them.
type Index struct {
	mu        sync.RWMutex
	embedder  Embedder
	snapshots map[string]*snapshot
	latest    string
	seq       int
}

// NewIndex creates an empty index using the given embedder for ingestion.
func NewIndex(embedder Embedder) *Index {
	return &Index{
		embedder:  embedder,
		snapshots: make(map[string]*snapshot),
	}
}

// Embedder returns the embedder documents were indexed with. Queries must
// embed with the same one or similarity scores are meaningless.
func (ix *Index) Embedder() Embedder { return ix.embedder }

// Latest returns the most recent corpus version, or "" when nothing has been
// ingested.
func (ix *Index) Latest() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.latest
}

// Versions returns all queryable corpus versions in ingestion order.
func (ix *Index) Versions() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	versions := make([]string, 0, len(ix.snapshots))
	for v := range ix.snapshots {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// Ingest embeds the documents and publishes a new corpus version containing
// all previously ingested documents plus these. A document re-ingested under
// an existing ID replaces the old entry in the new version only.
func (ix *Index) Ingest(ctx context.Context, docs []Document) (string, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("embedding %d documents: %w", len(docs), err)
	}
	if len(vectors) != len(docs) {
		return "", fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	var base []indexedDoc
	if prev, ok := ix.snapshots[ix.latest]; ok {
		base = prev.docs
	}
	replaced := make(map[string]int, len(docs))
	for i, d := range docs {
		replaced[d.ID] = i
	}

	next := make([]indexedDoc, 0, len(base)+len(docs))
	for _, d := range base {
		if _, ok := replaced[d.id]; ok {
			continue
		}
		next = append(next, d)
	}
	for i, d := range docs {
		next = append(next, indexedDoc{
			id:     d.ID,
			text:   d.Text,
			vector: vectors[i],
			tokens: tokenSet(d.Text),
		})
	}

	ix.seq++
	version := fmt.Sprintf("v%d", ix.seq)
	ix.snapshots[version] = &snapshot{version: version, docs: next}
	ix.latest = version
	return version, nil
}

// Compact drops every version except the latest.
func (ix *Index) Compact() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for v := range ix.snapshots {
		if v != ix.latest {
			delete(ix.snapshots, v)
		}
	}
}

// snapshotFor resolves a corpus version; "" means latest. The second return
// is false for an unknown version or an empty index.
func (ix *Index) snapshotFor(version string) (*snapshot, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if version == "" {
		version = ix.latest
	}
	snap, ok := ix.snapshots[version]
	return snap, ok
}

// cosine returns the cosine similarity of two vectors, clamped to [0, 1].
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
