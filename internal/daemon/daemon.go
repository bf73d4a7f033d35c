package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/skillrunner/skillrunner/internal/execute"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
	"github.com/skillrunner/skillrunner/internal/session"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// Runner is the execution-side dependency; implemented by execute.Executor.
type Runner interface {
	Execute(ctx context.Context, skill, tool, instance string, argumentsJSON []byte) (*execute.Result, error)
}

// Daemon holds the loaded catalog state between requests: the search
// engine with its embedder warm, the executor with its permit sets, and
// the current manifest. CLI commands connect over the Unix socket instead
// of paying engine startup on every invocation.
type Daemon struct {
	cfg    Config
	engine search.SearchEngine
	runner Runner

	manifest atomic.Pointer[manifest.Manifest]

	history    *session.Log
	compaction *CompactionManager

	embedderType string
	started      time.Time
}

// Deps are the collaborators a Daemon serves with. Engine and Runner are
// required; History and Compaction are optional.
type Deps struct {
	Config       Config
	Engine       search.SearchEngine
	Runner       Runner
	Manifest     *manifest.Manifest
	History      *session.Log
	Compaction   *CompactionManager
	EmbedderType string
}

// NewDaemon wires a Daemon from explicit dependencies.
func NewDaemon(deps Deps) (*Daemon, error) {
	if deps.Engine == nil {
		return nil, errors.New("search engine is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("executor is required")
	}
	d := &Daemon{
		cfg:          deps.Config,
		engine:       deps.Engine,
		runner:       deps.Runner,
		history:      deps.History,
		compaction:   deps.Compaction,
		embedderType: deps.EmbedderType,
		started:      time.Now(),
	}
	d.manifest.Store(deps.Manifest)
	return d, nil
}

// Manifest returns the currently loaded manifest; nil before the first
// SetManifest.
func (d *Daemon) Manifest() *manifest.Manifest {
	return d.manifest.Load()
}

// SetManifest atomically swaps the served manifest, e.g. after the watcher
// reports a manifest file change and the Index Manager has resynced.
func (d *Daemon) SetManifest(m *manifest.Manifest) {
	d.manifest.Store(m)
}

// Serve acquires the PID file, starts the socket server, and blocks until
// ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	pidfile := NewPIDFile(d.cfg.PIDPath)
	if pidfile.IsRunning() {
		return fmt.Errorf("daemon already running (pid file %s)", d.cfg.PIDPath)
	}
	if err := pidfile.Write(); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	defer func() { _ = pidfile.Remove() }()

	if d.compaction != nil {
		d.compaction.Start(ctx)
		defer d.compaction.Stop()
	}

	server, err := NewServer(d.cfg.SocketPath)
	if err != nil {
		return err
	}
	server.SetHandler(d)
	return server.ListenAndServe(ctx)
}

// HandleSearch serves one search_skills request against the warm engine.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	opts := search.SearchOptions{
		Limit:       params.TopK,
		SkillFilter: params.Skill,
		BM25Only:    params.BM25Only,
		Explain:     params.Explain,
	}

	results, err := d.engine.Search(ctx, params.Query, opts)
	if err != nil {
		return nil, err
	}

	if d.compaction != nil {
		d.compaction.OnSearchComplete()
	}

	m := d.Manifest()
	out := make([]SearchResult, 0, len(results))
	for i, r := range results {
		if r == nil || r.Document == nil {
			continue
		}
		summary := r.CompressedDescription
		if summary == "" {
			summary = r.Document.Description
		}
		sr := SearchResult{
			ToolID:    r.Document.ID,
			Skill:     r.Document.Skill,
			Instance:  r.Document.Instance,
			Tool:      r.Document.Tool,
			Summary:   summary,
			Signature: signatureFor(m, r.Document.Skill, r.Document.Tool),
			Score:     r.Score,
		}
		if params.Explain {
			sr.BM25Score = r.BM25Score
			sr.VecScore = r.VecScore
			sr.BM25Rank = r.BM25Rank
			sr.VecRank = r.VecRank
			if i == 0 && r.Explain != nil {
				sr.Explain = &ExplainData{
					Query:             r.Explain.Query,
					BM25ResultCount:   r.Explain.BM25ResultCount,
					VectorResultCount: r.Explain.VectorResultCount,
					BM25Weight:        r.Explain.Weights.BM25,
					SemanticWeight:    r.Explain.Weights.Semantic,
					RRFConstant:       r.Explain.RRFConstant,
					BM25Only:          r.Explain.BM25Only,
					DimensionMismatch: r.Explain.DimensionMismatch,
				}
			}
		}
		out = append(out, sr)
	}
	return out, nil
}

// HandleExecute serves one execute request. Executor failures with a
// skillerr category are reported inside the result rather than as a
// protocol error, so the CLI can render the category.
func (d *Daemon) HandleExecute(ctx context.Context, params ExecuteParams) (*ExecuteResult, error) {
	argsJSON, err := json.Marshal(params.Arguments)
	if err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	start := time.Now()
	result, err := d.runner.Execute(ctx, params.Skill, params.Tool, params.Instance, argsJSON)
	if err != nil {
		out := &ExecuteResult{
			Success:      false,
			DurationMS:   time.Since(start).Milliseconds(),
			ErrorMessage: err.Error(),
		}
		var se *skillerr.Error
		if errors.As(err, &se) {
			out.ErrorCategory = se.Code
		}
		return out, nil
	}

	return &ExecuteResult{
		Success:    true,
		Output:     result.OutputJSON,
		Truncated:  result.Truncated,
		DurationMS: result.DurationMS,
	}, nil
}

// HandleListSkills serves one list_skills page from the loaded manifest.
func (d *Daemon) HandleListSkills(ctx context.Context, params ListSkillsParams) (*ListSkillsResult, error) {
	m := d.Manifest()
	if m == nil {
		return nil, errors.New("no manifest is loaded")
	}

	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	names := make([]string, 0, len(m.Skills))
	for name := range m.Skills {
		if params.Filter != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(params.Filter)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := &ListSkillsResult{Total: len(names), Offset: offset}
	for i := offset; i < len(names) && len(out.Skills) < limit; i++ {
		sk := m.Skills[names[i]]
		summary := SkillSummary{
			Name:        sk.Name,
			Runtime:     string(sk.Runtime),
			Description: sk.Description,
		}
		for instName := range sk.Instances {
			summary.Instances = append(summary.Instances, instName)
		}
		sort.Strings(summary.Instances)
		for _, t := range sk.Tools {
			summary.Tools = append(summary.Tools, t.Signature(sk.Name))
		}
		out.Skills = append(out.Skills, summary)
	}
	_ = ctx
	return out, nil
}

// GetStatus reports the daemon's loaded state.
func (d *Daemon) GetStatus() StatusResult {
	status := StatusResult{
		Running:        true,
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		EmbedderType:   d.embedderType,
		EmbedderStatus: "ready",
	}
	if m := d.Manifest(); m != nil {
		status.SkillsLoaded = len(m.Skills)
	}
	if stats := d.engine.Stats(); stats != nil {
		status.ToolsIndexed = stats.VectorCount
	}
	return status
}

// History returns the bounded execution log, if one is attached.
func (d *Daemon) History() *session.Log {
	return d.history
}

// signatureFor resolves a skill/tool pair to its execution signature;
// empty when the tool is gone from the manifest.
func signatureFor(m *manifest.Manifest, skillName, toolName string) string {
	if m == nil {
		return ""
	}
	sk, ok := m.Skills[skillName]
	if !ok {
		return ""
	}
	for _, t := range sk.Tools {
		if t.Name == toolName {
			return t.Signature(skillName)
		}
	}
	return ""
}
