// Package catalog persists the Tool Document index: one retrievable unit
// per (skill, instance, tool) triple, its lexical and vector
// representations, and its usage counters. Vector storage is coder/hnsw,
// keyword search is blevesearch/bleve/v2, and document, state, and usage
// metadata live in SQLite.
package catalog

import (
	"context"
	"strconv"
	"time"
)

// ToolDocument is the indexed unit the Discovery Core searches over: one
// tool of one skill instance, described well enough to retrieve without
// the agent having loaded the full manifest.
type ToolDocument struct {
	// ID is manifest.ToolID(Skill, Instance, Tool): "{skill}@{instance}/{tool}".
	ID       string
	Skill    string
	Instance string
	Tool     string

	Description   string
	ParameterText string // flattened "name: description" lines, for lexical matching
	Examples      []string
	ActionVerbs   []string // extracted lead verbs ("fetch", "convert", "summarize"), for classifier weighting

	// ContentHash mirrors manifest.Skill/Instance.ContentHash; a changed
	// hash means this document must be re-embedded and re-indexed.
	ContentHash string

	SucceededCount int
	FailedCount    int
	LastUsedAt     time.Time

	IndexedAt time.Time
	UpdatedAt time.Time
}

// SearchText concatenates the fields the lexical index tokenizes.
func (d *ToolDocument) SearchText() string {
	text := d.Skill + " " + d.Tool + " " + d.Description + " " + d.ParameterText
	for _, e := range d.Examples {
		text += " " + e
	}
	return text
}

// Document is one unit handed to a BM25Index.
type Document struct {
	ID      string
	Content string
}

// BM25Result is one lexical search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats describes a lexical index's current size.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search over ToolDocuments, keyed by
// manifest.ToolID.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures a BM25Index's scoring parameters.
type BM25Config struct {
	K1 float64
	B  float64
}

// DefaultBM25Config returns the standard BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.2, B: 0.75}
}

// VectorResult is one nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures a VectorStore's index parameters.
type VectorStoreConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// ErrDimensionMismatch is returned when a vector's dimension does not
// match the store's configured Dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return "vector dimension mismatch: expected " + strconv.Itoa(e.Expected) + ", got " + strconv.Itoa(e.Got)
}

// VectorStore provides nearest-neighbor search over tool document
// embeddings, keyed by manifest.ToolID.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// MetadataStore persists ToolDocuments, runtime state, and usage counters.
type MetadataStore interface {
	SaveDocuments(ctx context.Context, docs []*ToolDocument) error
	GetDocument(ctx context.Context, id string) (*ToolDocument, error)
	GetDocuments(ctx context.Context, ids []string) ([]*ToolDocument, error)
	AllDocumentIDs(ctx context.Context) ([]string, error)
	DeleteDocuments(ctx context.Context, ids []string) error

	RecordUsage(ctx context.Context, id string, succeeded bool, at time.Time) error

	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// State keys shared by the Index Manager and embedding-compatibility checks.
const (
	StateKeyIndexDimension = "index_embedding_dimension"
	StateKeyIndexModel     = "index_embedding_model"
)
