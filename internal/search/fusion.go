// Package search implements the Search Pipeline: hybrid retrieval over the
// Tool Document catalog combining BM25 lexical search and dense vector
// search, fused by Reciprocal Rank Fusion, optionally reranked by a
// cross-encoder, and compressed to the caller's token budget.
package search

import (
	"sort"

	"github.com/skillrunner/skillrunner/internal/catalog"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (used by Azure AI Search,
// OpenSearch, etc.).
const DefaultRRFConstant = 60

// FusedResult is a single tool document after RRF fusion.
type FusedResult struct {
	ToolID       string
	RRFScore     float64
	BM25Score    float64
	BM25Rank     int
	VecScore     float64
	VecRank      int
	InBothLists  bool
	MatchedTerms []string
}

// RRFFusion combines BM25 and vector search results using Reciprocal Rank
// Fusion: RRF_score(d) = Σ weight_i / (k + rank_i).
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion instance with default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates an RRF fusion with a custom k; k<=0 defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines BM25 and vector results. Documents appearing in only one
// list use missing_rank = max(len(bm25), len(vec)) + 1 for the missing
// source's contribution. Results are sorted by RRFScore (desc), then
// InBothLists (true first), then BM25Score (desc), then ToolID (asc).
func (f *RRFFusion) Fuse(bm25 []*catalog.BM25Result, vec []*catalog.VectorResult, weights Weights) []*FusedResult {
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(bm25)+len(vec))

	for rank, r := range bm25 {
		result := f.getOrCreate(scores, r.DocID)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.BM25 / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)
		if result.BM25Rank > 0 {
			result.InBothLists = true
		}
	}

	missingRank := f.calculateMissingRank(len(bm25), len(vec))
	for _, r := range scores {
		if r.BM25Rank == 0 && r.VecRank > 0 {
			r.RRFScore += weights.BM25 / float64(f.K+missingRank)
		}
		if r.VecRank == 0 && r.BM25Rank > 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
	}

	results := f.toSortedSlice(scores)
	f.normalize(results)
	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ToolID: id}
	m[id] = r
	return r
}

func (f *RRFFusion) calculateMissingRank(bm25Len, vecLen int) int {
	if bm25Len > vecLen {
		return bm25Len + 1
	}
	return vecLen + 1
}

func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return f.compare(results[i], results[j]) })
	return results
}

// compare reports whether a should rank before b: higher RRF score, then
// in-both-lists, then higher BM25 score, then lexicographically smaller
// ToolID for a deterministic tie-break.
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.ToolID < b.ToolID
}

// normalize scales RRF scores to 0-1 using the top result as the reference.
func (f *RRFFusion) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore = r.RRFScore / maxScore
	}
}
