// Package index provides indexing operations: the Coordinator applies
// incremental manifest diffs, and the Runner performs a full rebuild of
// the Tool Document catalog from a manifest on disk.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
	"github.com/skillrunner/skillrunner/internal/ui"
)

// RunnerConfig configures a full index build.
type RunnerConfig struct {
	// ManifestPath is the manifest file to load.
	ManifestPath string
}

// RunnerResult contains the outcome of a build.
type RunnerResult struct {
	Skills   int
	Tools    int
	Duration time.Duration
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	Renderer ui.Renderer
	Engine   *search.Engine
	Embedder embed.Embedder // used only to report backend/model in the completion summary
}

// Runner performs a full rebuild of the Tool Document catalog with
// progress reporting: load the manifest, derive tool documents, embed,
// and index. A skill manifest holds dozens to low hundreds of tools, so
// there is no checkpoint/resume stage; the whole run is expected to
// complete in seconds.
type Runner struct {
	renderer ui.Renderer
	engine   *search.Engine
	embedder embed.Embedder
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	return &Runner{
		renderer: deps.Renderer,
		engine:   deps.Engine,
		embedder: deps.Embedder,
	}, nil
}

// Run executes a full rebuild of the Tool Document catalog.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	startTime := time.Now()

	loadStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Message: "Loading manifest..."})
	m, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	loadDuration := time.Since(loadStart)

	var docs []*catalog.ToolDocument
	for _, sk := range m.Skills {
		docs = append(docs, buildToolDocuments(sk)...)
	}

	if len(docs) == 0 {
		r.renderer.Complete(ui.CompletionStats{Skills: len(m.Skills), Duration: time.Since(startTime)})
		return &RunnerResult{Skills: len(m.Skills), Duration: time.Since(startTime)}, nil
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Total: len(docs)})
	indexStart := time.Now()
	if err := r.engine.Index(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to index tool documents: %w", err)
	}
	indexDuration := time.Since(indexStart)
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Current: len(docs), Total: len(docs)})

	duration := time.Since(startTime)
	embedderInfo := embed.GetInfo(ctx, r.embedder)

	r.renderer.Complete(ui.CompletionStats{
		Skills:   len(m.Skills),
		Tools:    len(docs),
		Duration: duration,
		Stages: ui.StageTimings{
			Load:  loadDuration,
			Index: indexDuration,
		},
		Embedder: ui.EmbedderInfo{
			Backend:    string(embedderInfo.Provider),
			Model:      embedderInfo.Model,
			Dimensions: embedderInfo.Dimensions,
		},
	})

	slog.Info("index_build_complete",
		slog.Int("skills", len(m.Skills)),
		slog.Int("tools", len(docs)),
		slog.String("duration_total", duration.String()),
		slog.String("embedder_backend", string(embedderInfo.Provider)),
		slog.String("embedder_model", embedderInfo.Model))

	return &RunnerResult{
		Skills:   len(m.Skills),
		Tools:    len(docs),
		Duration: duration,
	}, nil
}
