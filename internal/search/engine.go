package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/skillerr"
	"github.com/skillrunner/skillrunner/internal/telemetry"
)

// Engine implements the Search Pipeline: hybrid BM25/semantic search over
// the Tool Document catalog, fused by RRF, optionally reranked, and
// compressed to the caller's token budget.
type Engine struct {
	bm25       catalog.BM25Index
	vector     catalog.VectorStore
	embedder   embed.Embedder
	metadata   catalog.MetadataStore
	config     EngineConfig
	fusion     *RRFFusion
	classifier Classifier              // optional dynamic weight classifier
	metrics    *telemetry.QueryMetrics // optional query telemetry collector
	reranker   Reranker                // optional cross-encoder reranker

	// inflight bounds concurrent Search calls; excess queries wait up to
	// the search timeout and then fail search_overloaded.
	inflight *semaphore.Weighted

	mu sync.RWMutex
}

var _ SearchEngine = (*Engine)(nil)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ErrDimensionMismatch is returned when the query embedding dimension does
// not match the indexed dimension (the embedder changed since indexing).
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithClassifier sets an optional query classifier for dynamic weight
// selection when no explicit weights are supplied in SearchOptions.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

// WithMetrics sets an optional query metrics collector for telemetry.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithReranker sets an optional cross-encoder reranker applied after RRF
// fusion and before the result limit is enforced.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// NewEngine creates a hybrid search engine over the given catalog stores.
// Returns an error if any required dependency is nil.
func NewEngine(
	bm25 catalog.BM25Index,
	vector catalog.VectorStore,
	embedder embed.Embedder,
	metadata catalog.MetadataStore,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("%w: bm25 index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if metadata == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}
	if config.MaxInflight <= 0 {
		config.MaxInflight = DefaultMaxInflight
	}
	e := &Engine{
		bm25:     bm25,
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
		config:   config,
		fusion:   NewRRFFusionWithK(config.RRFConstant),
		inflight: semaphore.NewWeighted(int64(config.MaxInflight)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes a search_skills query: hybrid BM25 + semantic search,
// fused by RRF, reranked if configured, compressed to the token budget.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	// Backpressure: queue behind the inflight bound, but never past the
	// search timeout.
	waitCtx := ctx
	if e.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.config.SearchTimeout)
		defer cancel()
	}
	if err := e.inflight.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, skillerr.SearchOverloaded("too many inflight queries")
	}
	defer e.inflight.Release(1)

	if opts.Weights == nil && e.classifier != nil {
		_, weights, err := e.classifier.Classify(ctx, query)
		if err == nil {
			opts.Weights = &weights
		}
	}

	opts = e.applyDefaults(opts)

	if opts.BM25Only {
		return e.bm25OnlySearch(ctx, query, opts, &Weights{BM25: 1.0, Semantic: 0.0}, false, start)
	}

	if err := e.validateDimensions(ctx); err != nil {
		slog.Warn("dimension mismatch detected, semantic search disabled",
			slog.String("error", err.Error()))
		return e.bm25OnlySearch(ctx, query, opts, opts.Weights, true, start)
	}

	bm25Results, vecResults, searchErr := e.parallelSearch(ctx, query, opts.Limit*2)
	if searchErr != nil && bm25Results == nil && vecResults == nil {
		return nil, searchErr
	}

	fused := e.fusion.Fuse(bm25Results, vecResults, *opts.Weights)
	reranked := e.rerankResults(ctx, query, fused)

	results, err := e.enrichResults(ctx, reranked)
	if err != nil {
		return nil, err
	}

	if opts.SkillFilter != "" {
		results = filterBySkill(results, opts.SkillFilter)
	}
	compressContext(results, opts.MaxContextTokens)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	e.attachExplainData(results, query, opts, len(bm25Results), len(vecResults), false)
	e.recordMetrics(query, e.classifyQueryType(ctx, query, opts), len(results), time.Since(start))

	return results, nil
}

// bm25OnlySearch runs keyword-only search, used explicitly (BM25Only) or as
// a degraded fallback when the embedder's dimension no longer matches the
// index (dimMismatch).
func (e *Engine) bm25OnlySearch(ctx context.Context, query string, opts SearchOptions, weights *Weights, dimMismatch bool, start time.Time) ([]*SearchResult, error) {
	bm25Results, err := e.bm25.Search(ctx, query, opts.Limit*2)
	if err != nil {
		return nil, fmt.Errorf("bm25 search: %w", err)
	}

	fused := e.fusion.Fuse(bm25Results, nil, *weights)
	reranked := e.rerankResults(ctx, query, fused)

	results, err := e.enrichResults(ctx, reranked)
	if err != nil {
		return nil, err
	}

	if opts.SkillFilter != "" {
		results = filterBySkill(results, opts.SkillFilter)
	}
	compressContext(results, opts.MaxContextTokens)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	e.attachExplainData(results, query, opts, len(bm25Results), 0, dimMismatch)
	e.recordMetrics(query, QueryTypeLexical, len(results), time.Since(start))
	return results, nil
}

func filterBySkill(results []*SearchResult, skill string) []*SearchResult {
	filtered := results[:0]
	for _, r := range results {
		if r.Document != nil && r.Document.Skill == skill {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// attachExplainData populates ExplainData on the first result when
// opts.Explain is true.
func (e *Engine) attachExplainData(results []*SearchResult, query string, opts SearchOptions, bm25Count, vecCount int, dimMismatch bool) {
	if !opts.Explain || len(results) == 0 {
		return
	}
	results[0].Explain = &ExplainData{
		Query:             query,
		BM25ResultCount:   bm25Count,
		VectorResultCount: vecCount,
		Weights:           *opts.Weights,
		RRFConstant:       e.config.RRFConstant,
		BM25Only:          opts.BM25Only,
		DimensionMismatch: dimMismatch,
	}
}

func (e *Engine) recordMetrics(query string, queryType QueryType, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   telemetry.QueryType(queryType),
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

func (e *Engine) classifyQueryType(ctx context.Context, query string, opts SearchOptions) QueryType {
	if opts.Weights != nil {
		if opts.Weights.BM25 > 0.6 {
			return QueryTypeLexical
		}
		if opts.Weights.Semantic > 0.6 {
			return QueryTypeSemantic
		}
		return QueryTypeMixed
	}
	if e.classifier != nil {
		qt, _, err := e.classifier.Classify(ctx, query)
		if err == nil {
			return qt
		}
	}
	return QueryTypeMixed
}

// Index adds tool documents to both the BM25 and vector indices, and
// persists their metadata.
func (e *Engine) Index(ctx context.Context, docs []*catalog.ToolDocument) error {
	if len(docs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bm25Docs := make([]*catalog.Document, len(docs))
	texts := make([]string, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		bm25Docs[i] = &catalog.Document{ID: d.ID, Content: d.SearchText()}
		texts[i] = d.SearchText()
		ids[i] = d.ID
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	if err := e.bm25.Index(ctx, bm25Docs); err != nil {
		return fmt.Errorf("index in bm25: %w", err)
	}

	if err := e.vector.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	if err := e.metadata.SaveDocuments(ctx, docs); err != nil {
		return fmt.Errorf("save tool document metadata: %w", err)
	}

	if err := e.storeIndexEmbeddingInfo(ctx); err != nil {
		slog.Warn("failed to store index embedding info", slog.String("error", err.Error()))
	}

	return nil
}

func (e *Engine) storeIndexEmbeddingInfo(ctx context.Context) error {
	dim := fmt.Sprintf("%d", e.embedder.Dimensions())
	model := e.embedder.ModelName()
	if err := e.metadata.SetState(ctx, catalog.StateKeyIndexDimension, dim); err != nil {
		return fmt.Errorf("store index dimension: %w", err)
	}
	if err := e.metadata.SetState(ctx, catalog.StateKeyIndexModel, model); err != nil {
		return fmt.Errorf("store index model: %w", err)
	}
	return nil
}

// EmbedderIdentity reports the active embedder's model name and
// dimension, the pair the Index Manager compares against the persisted
// index state to decide between an incremental sync and a full rebuild.
func (e *Engine) EmbedderIdentity() (model string, dimensions int) {
	return e.embedder.ModelName(), e.embedder.Dimensions()
}

// validateDimensions checks the current embedder's dimension against the
// dimension recorded at index time. A mismatch means the embedder changed
// (e.g. Ollama unavailable, falling back to the static embedder) since the
// last reindex.
func (e *Engine) validateDimensions(ctx context.Context) error {
	storedDim, err := e.metadata.GetState(ctx, catalog.StateKeyIndexDimension)
	if err != nil || storedDim == "" {
		return nil
	}

	var indexDim int
	if _, err := fmt.Sscanf(storedDim, "%d", &indexDim); err != nil {
		slog.Warn("invalid stored index dimension", slog.String("value", storedDim))
		return nil
	}

	currentDim := e.embedder.Dimensions()
	if indexDim != currentDim {
		storedModel, _ := e.metadata.GetState(ctx, catalog.StateKeyIndexModel)
		return fmt.Errorf("%w: index has %d dimensions (%s), current embedder has %d dimensions (%s); reindex to rebuild",
			ErrDimensionMismatch, indexDim, storedModel, currentDim, e.embedder.ModelName())
	}
	return nil
}

// Delete removes tool documents from all indices and metadata. BM25/vector
// failures are logged and left as orphans — metadata is the source of
// truth, and the next reindex reconciles them.
func (e *Engine) Delete(ctx context.Context, toolIDs []string) error {
	if len(toolIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.bm25.Delete(ctx, toolIDs); err != nil {
		slog.Warn("bm25 delete failed, orphans will remain until reindex",
			slog.String("error", err.Error()), slog.Int("count", len(toolIDs)))
	}
	if err := e.vector.Delete(ctx, toolIDs); err != nil {
		slog.Warn("vector delete failed, orphans will remain until reindex",
			slog.String("error", err.Error()), slog.Int("count", len(toolIDs)))
	}
	if err := e.metadata.DeleteDocuments(ctx, toolIDs); err != nil {
		return fmt.Errorf("delete tool document metadata: %w", err)
	}
	return nil
}

// Stats returns engine-wide index statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return &EngineStats{
		BM25Stats:   e.bm25.Stats(),
		VectorCount: e.vector.Count(),
	}
}

// Close releases all resources held by the engine's stores.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.metadata.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	if opts.Weights == nil {
		w := e.config.DefaultWeights
		opts.Weights = &w
	}
	return opts
}

// parallelSearch executes BM25 and vector search concurrently, returning
// partial results if exactly one of them fails (graceful degradation).
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int) (
	bm25Results []*catalog.BM25Result,
	vecResults []*catalog.VectorResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var bm25Err, vecErr error

	g.Go(func() error {
		var searchErr error
		bm25Results, searchErr = e.bm25.Search(gctx, query, limit)
		if searchErr != nil {
			bm25Err = searchErr
		}
		return nil
	})

	var queryEmbedding []float32
	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}
		queryEmbedding = embedding

		var searchErr error
		vecResults, searchErr = e.vector.Search(gctx, embedding, limit)
		if searchErr != nil {
			vecErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if e.metrics != nil && len(queryEmbedding) > 0 {
		e.metrics.RecordQueryEmbedding(queryEmbedding)
	}

	if bm25Err != nil && vecErr != nil {
		return nil, nil, errors.Join(bm25Err, vecErr)
	}
	if bm25Err != nil {
		err = bm25Err
	} else if vecErr != nil {
		err = vecErr
	}

	return bm25Results, vecResults, err
}

// enrichResults fetches full tool document metadata for fused results in a
// single batch query, preserving fusion order.
func (e *Engine) enrichResults(ctx context.Context, fused []*FusedResult) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fused))
	byID := make(map[string]*FusedResult, len(fused))
	for i, f := range fused {
		ids[i] = f.ToolID
		byID[f.ToolID] = f
	}

	docs, err := e.metadata.GetDocuments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get tool documents: %w", err)
	}
	docByID := make(map[string]*catalog.ToolDocument, len(docs))
	for _, d := range docs {
		docByID[d.ID] = d
	}

	results := make([]*SearchResult, 0, len(fused))
	for _, f := range fused {
		doc, ok := docByID[f.ToolID]
		if !ok {
			continue // stale catalog entry, reconciled on next reindex
		}
		results = append(results, &SearchResult{
			Document:     doc,
			Score:        f.RRFScore,
			BM25Score:    f.BM25Score,
			VecScore:     f.VecScore,
			BM25Rank:     f.BM25Rank,
			VecRank:      f.VecRank,
			InBothLists:  f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
	}

	return results, nil
}

// rerankResults applies cross-encoder reranking over tool descriptions.
// Returns the input unchanged if no reranker is configured, unavailable,
// or too few results are present to be worth reranking.
func (e *Engine) rerankResults(ctx context.Context, query string, fused []*FusedResult) []*FusedResult {
	if e.reranker == nil || len(fused) < 2 {
		return fused
	}
	if !e.reranker.Available(ctx) {
		return fused
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ToolID
	}
	docs, err := e.metadata.GetDocuments(ctx, ids)
	if err != nil {
		slog.Warn("failed to fetch tool documents for reranking, skipping", slog.String("error", err.Error()))
		return fused
	}
	contentByID := make(map[string]string, len(docs))
	for _, d := range docs {
		contentByID[d.ID] = d.SearchText()
	}

	documents := make([]string, 0, len(fused))
	valid := make([]*FusedResult, 0, len(fused))
	for _, f := range fused {
		if content, ok := contentByID[f.ToolID]; ok && content != "" {
			documents = append(documents, content)
			valid = append(valid, f)
		}
	}
	if len(documents) == 0 {
		return fused
	}

	reranked, err := e.reranker.Rerank(ctx, query, documents, 0)
	if err != nil {
		slog.Warn("reranking failed, using fused order", slog.String("error", err.Error()))
		return fused
	}

	results := make([]*FusedResult, 0, len(reranked))
	for _, rr := range reranked {
		if rr.Index < 0 || rr.Index >= len(valid) {
			continue
		}
		f := valid[rr.Index]
		f.RRFScore = rr.Score
		results = append(results, f)
	}
	return results
}

// compressContext truncates each result's description to fit within a
// total token budget shared across all results, approximating tokens as
// whitespace-split words. A zero budget disables compression.
func compressContext(results []*SearchResult, maxTokens int) {
	if maxTokens <= 0 || len(results) == 0 {
		return
	}
	perResult := maxTokens / len(results)
	if perResult <= 0 {
		return
	}
	for _, r := range results {
		if r.Document == nil {
			continue
		}
		words := strings.Fields(r.Document.Description)
		if len(words) <= perResult {
			continue
		}
		r.CompressedDescription = strings.Join(words[:perResult], " ") + "…"
	}
}
