package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/philippgille/chromem-go"
)

// SemanticIndex re-ranks substring-matched L1 candidates by similarity to a
// query. It never replaces the substring match, which is always computed
// first and remains the floor behaviour when no index is configured.
type SemanticIndex interface {
	IndexPattern(p CodePattern)
	IndexTemplate(t CommandTemplate)
	IndexDecision(d Decision)

	RerankPatterns(query string, candidates []CodePattern) []CodePattern
	RerankTemplates(query string, candidates []CommandTemplate) []CommandTemplate
	RerankDecisions(query string, candidates []Decision) []Decision
}

// ChromemIndex is the default SemanticIndex, backed by an embedded,
// file-or-memory chromem-go vector collection using a local, dependency-free
// bag-of-words embedding function — no external embedding service is ever
// called, keeping the index usable entirely offline.
type ChromemIndex struct {
	collection *chromem.Collection
}

// NewChromemIndex opens (creating if absent) a chromem-go collection rooted
// at persistPath. An empty persistPath keeps the index in memory only.
func NewChromemIndex(persistPath, collectionName string) (*ChromemIndex, error) {
	var db *chromem.DB
	var err error
	if persistPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, err
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, bagOfWordsEmbedding)
	if err != nil {
		return nil, err
	}
	return &ChromemIndex{collection: col}, nil
}

func (c *ChromemIndex) IndexPattern(p CodePattern) {
	_ = c.collection.AddDocument(context.Background(), chromem.Document{
		ID:       "pattern:" + p.Name,
		Content:  p.Name + " " + p.Description + " " + p.Category,
		Metadata: map[string]string{"kind": "pattern", "key": p.Name},
	})
}

func (c *ChromemIndex) IndexTemplate(t CommandTemplate) {
	_ = c.collection.AddDocument(context.Background(), chromem.Document{
		ID:       "template:" + t.Command,
		Content:  t.Command + " " + t.Description,
		Metadata: map[string]string{"kind": "template", "key": t.Command},
	})
}

func (c *ChromemIndex) IndexDecision(d Decision) {
	_ = c.collection.AddDocument(context.Background(), chromem.Document{
		ID:       "decision:" + d.Decision,
		Content:  d.Context + " " + d.Decision + " " + strings.Join(d.Tags, " "),
		Metadata: map[string]string{"kind": "decision", "key": d.Decision},
	})
}

func (c *ChromemIndex) RerankPatterns(query string, candidates []CodePattern) []CodePattern {
	if c.collection == nil || c.collection.Count() == 0 || len(candidates) <= 1 {
		return candidates
	}
	order := c.similarityOrder(query, "pattern")
	byKey := make(map[string]CodePattern, len(candidates))
	for _, p := range candidates {
		byKey[p.Name] = p
	}
	return rerankByOrder(candidates, order, func(p CodePattern) string { return p.Name }, byKey)
}

func (c *ChromemIndex) RerankTemplates(query string, candidates []CommandTemplate) []CommandTemplate {
	if c.collection == nil || c.collection.Count() == 0 || len(candidates) <= 1 {
		return candidates
	}
	order := c.similarityOrder(query, "template")
	byKey := make(map[string]CommandTemplate, len(candidates))
	for _, t := range candidates {
		byKey[t.Command] = t
	}
	return rerankByOrder(candidates, order, func(t CommandTemplate) string { return t.Command }, byKey)
}

func (c *ChromemIndex) RerankDecisions(query string, candidates []Decision) []Decision {
	if c.collection == nil || c.collection.Count() == 0 || len(candidates) <= 1 {
		return candidates
	}
	order := c.similarityOrder(query, "decision")
	byKey := make(map[string]Decision, len(candidates))
	for _, d := range candidates {
		byKey[d.Decision] = d
	}
	return rerankByOrder(candidates, order, func(d Decision) string { return d.Decision }, byKey)
}

// similarityOrder returns candidate keys ("key" metadata field) of the given
// kind, ordered most-similar-to-query first.
func (c *ChromemIndex) similarityOrder(query, kind string) []string {
	n := c.collection.Count()
	results, err := c.collection.Query(context.Background(), query, n, map[string]string{"kind": kind}, nil)
	if err != nil {
		return nil
	}
	order := make([]string, 0, len(results))
	for _, r := range results {
		if key, ok := r.Metadata["key"]; ok {
			order = append(order, key)
		}
	}
	return order
}

// rerankByOrder reorders candidates to follow order where present, appending
// any candidate missing from order (not yet indexed) at the end in its
// original relative position.
func rerankByOrder[T any](candidates []T, order []string, keyOf func(T) string, byKey map[string]T) []T {
	seen := make(map[string]bool, len(order))
	out := make([]T, 0, len(candidates))
	for _, key := range order {
		if v, ok := byKey[key]; ok && !seen[key] {
			out = append(out, v)
			seen[key] = true
		}
	}
	for _, v := range candidates {
		if !seen[keyOf(v)] {
			out = append(out, v)
			seen[keyOf(v)] = true
		}
	}
	return out
}

const embeddingDims = 64

// bagOfWordsEmbedding is a deterministic, offline embedding function: each
// token is hashed into one of embeddingDims buckets and the resulting vector
// is L2-normalised. It needs no network call and no external model, matching
// the always-local runtime this index serves.
func bagOfWordsEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%embeddingDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
