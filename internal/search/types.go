package search

import (
	"context"
	"time"

	"github.com/skillrunner/skillrunner/internal/catalog"
)

// Engine provides hybrid search combining BM25 and semantic search over the
// Tool Document catalog — the agent-facing search_skills operation.
type SearchEngine interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error)
	Index(ctx context.Context, docs []*catalog.ToolDocument) error
	Delete(ctx context.Context, toolIDs []string) error
	Stats() *EngineStats
	Close() error
}

// SearchOptions configures a search_skills query.
type SearchOptions struct {
	// Limit is the maximum number of results to return (default: 10, max: 100).
	Limit int

	// SkillFilter restricts results to a single named skill, if non-empty.
	SkillFilter string

	// Weights overrides the default BM25/semantic weights.
	Weights *Weights

	// BM25Only forces keyword-only search, skipping vector search entirely —
	// useful when the embedder is unavailable or for exact-name matching.
	BM25Only bool

	// MaxContextTokens bounds how much description/example text the Context
	// Compressor may return across all results combined. 0 means uncompressed.
	MaxContextTokens int

	// Explain enables detailed search explanation mode.
	Explain bool
}

// Weights configures the relative importance of BM25 vs semantic search.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights returns the default search weights optimized for mixed queries.
func DefaultWeights() Weights {
	return Weights{BM25: 0.35, Semantic: 0.65}
}

// SearchResult is a single search_skills hit.
type SearchResult struct {
	Document *catalog.ToolDocument

	Score     float64
	BM25Score float64
	VecScore  float64
	BM25Rank  int
	VecRank   int

	InBothLists  bool
	MatchedTerms []string

	// CompressedDescription is Document.Description truncated/summarized to
	// fit the query's token budget; empty when compression was not applied.
	CompressedDescription string

	Explain *ExplainData
}

// EngineStats reports engine-wide index size.
type EngineStats struct {
	BM25Stats   *catalog.IndexStats
	VectorCount int
}

// DefaultMaxInflight bounds concurrent search queries when EngineConfig
// sets no explicit value.
const DefaultMaxInflight = 32

// EngineConfig configures the search engine.
type EngineConfig struct {
	DefaultLimit   int
	MaxLimit       int
	DefaultWeights Weights
	RRFConstant    int
	SearchTimeout  time.Duration

	// MaxInflight bounds concurrent Search calls; excess queries queue up
	// to SearchTimeout and then fail search_overloaded.
	MaxInflight int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:   10,
		MaxLimit:       100,
		DefaultWeights: DefaultWeights(),
		RRFConstant:    60,
		SearchTimeout:  5 * time.Second,
	}
}

// QueryType classifies a search query for dynamic weight selection.
type QueryType string

const (
	// QueryTypeLexical: the caller likely knows the exact skill/tool name.
	QueryTypeLexical QueryType = "LEXICAL"
	// QueryTypeSemantic: the caller described a capability, not a name.
	QueryTypeSemantic QueryType = "SEMANTIC"
	// QueryTypeMixed: default fallback, balanced weights.
	QueryTypeMixed QueryType = "MIXED"
)

// Classifier determines optimal search weights for a query.
type Classifier interface {
	Classify(ctx context.Context, query string) (QueryType, Weights, error)
}

// WeightsForQueryType returns the predefined weights for a query type.
func WeightsForQueryType(qt QueryType) Weights {
	switch qt {
	case QueryTypeLexical:
		return Weights{BM25: 0.85, Semantic: 0.15}
	case QueryTypeSemantic:
		return Weights{BM25: 0.20, Semantic: 0.80}
	default:
		return Weights{BM25: 0.35, Semantic: 0.65}
	}
}

// ExplainData surfaces the fusion decisions behind a result set, for
// debugging a surprising ranking.
type ExplainData struct {
	Query             string
	BM25ResultCount   int
	VectorResultCount int
	Weights           Weights
	RRFConstant       int
	BM25Only          bool
	DimensionMismatch bool
}
