package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/search"
)

// Integration tests for the discovery core: index tool documents, then
// find them again through the full hybrid pipeline.

func testEmbedder(t *testing.T) embed.Embedder {
	t.Helper()
	return embed.NewStaticEmbedder768()
}

func testMetadataStore(t *testing.T) catalog.MetadataStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	ms, err := catalog.NewSQLiteMetadataStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() { _ = ms.Close() })
	return ms
}

func testVectorStore(t *testing.T) catalog.VectorStore {
	t.Helper()
	vs, err := catalog.NewHNSWStore(catalog.VectorStoreConfig{Dimensions: 768, Metric: "cos"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func testBM25Index(t *testing.T) catalog.BM25Index {
	t.Helper()
	idx, err := catalog.NewBleveBM25Index(filepath.Join(t.TempDir(), "bm25.bleve"), catalog.DefaultBM25Config())
	require.NoError(t, err)

	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testEngine(t *testing.T) *search.Engine {
	t.Helper()
	engine, err := search.NewEngine(
		testBM25Index(t), testVectorStore(t), testEmbedder(t), testMetadataStore(t),
		search.DefaultConfig(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func sampleToolDocuments() []*catalog.ToolDocument {
	return []*catalog.ToolDocument{
		{
			ID: "kubernetes@default/get", Skill: "kubernetes", Instance: "default", Tool: "get",
			Description:   "list pods and deployments",
			ParameterText: "resource: resource kind to list\nnamespace: kubernetes namespace",
			ActionVerbs:   []string{"list"},
			ContentHash:   "h-k8s",
		},
		{
			ID: "docker@default/ps", Skill: "docker", Instance: "default", Tool: "ps",
			Description:   "list running containers",
			ParameterText: "all: include stopped containers",
			ActionVerbs:   []string{"list"},
			ContentHash:   "h-docker",
		},
		{
			ID: "git@default/log", Skill: "git", Instance: "default", Tool: "log",
			Description:   "show commit history",
			ParameterText: "limit: number of commits",
			ActionVerbs:   []string{"show"},
			ContentHash:   "h-git",
		},
	}
}

func TestIndexThenSearch_EndToEnd(t *testing.T) {
	ctx := context.Background()
	engine := testEngine(t)

	require.NoError(t, engine.Index(ctx, sampleToolDocuments()))

	results, err := engine.Search(ctx, "show me running pods", search.SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// The kubernetes pod-listing tool wins over the container and commit
	// tools for a pod-shaped query.
	assert.Equal(t, "kubernetes@default/get", results[0].Document.ID)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Document.ID)
	}
	assert.NotContains(t, ids[:1], "git@default/log")
}

func TestIndexThenSearch_Deterministic(t *testing.T) {
	ctx := context.Background()
	engine := testEngine(t)
	require.NoError(t, engine.Index(ctx, sampleToolDocuments()))

	first, err := engine.Search(ctx, "list containers", search.SearchOptions{Limit: 3})
	require.NoError(t, err)
	second, err := engine.Search(ctx, "list containers", search.SearchOptions{Limit: 3})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Document.ID, second[i].Document.ID)
		assert.InDelta(t, first[i].Score, second[i].Score, 1e-9)
	}
}

func TestIndexThenSearch_SkillFilter(t *testing.T) {
	ctx := context.Background()
	engine := testEngine(t)
	require.NoError(t, engine.Index(ctx, sampleToolDocuments()))

	results, err := engine.Search(ctx, "list", search.SearchOptions{Limit: 5, SkillFilter: "docker"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "docker", r.Document.Skill)
	}
}

func TestIndexDeleteSearch_RemovedToolGone(t *testing.T) {
	ctx := context.Background()
	engine := testEngine(t)
	require.NoError(t, engine.Index(ctx, sampleToolDocuments()))

	require.NoError(t, engine.Delete(ctx, []string{"docker@default/ps"}))

	results, err := engine.Search(ctx, "list running containers", search.SearchOptions{Limit: 5})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "docker@default/ps", r.Document.ID)
	}
}

func TestSearch_SingleDocumentRankOne(t *testing.T) {
	ctx := context.Background()
	engine := testEngine(t)

	doc := &catalog.ToolDocument{
		ID: "mail@default/send", Skill: "mail", Instance: "default", Tool: "send",
		Description: "send an email message", ContentHash: "h-mail",
	}
	require.NoError(t, engine.Index(ctx, []*catalog.ToolDocument{doc}))

	results, err := engine.Search(ctx, "send an email message", search.SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mail@default/send", results[0].Document.ID)
}
