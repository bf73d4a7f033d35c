// Package mcp exposes the agent command protocol: exactly three operations
// (list_skills, search_skills, execute) served over the Model Context
// Protocol so any MCP client can discover and run skills.
package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skillrunner/skillrunner/internal/async"
	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/config"
	"github.com/skillrunner/skillrunner/internal/embed"
	"github.com/skillrunner/skillrunner/internal/execute"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
	"github.com/skillrunner/skillrunner/internal/telemetry"
	"github.com/skillrunner/skillrunner/pkg/version"
)

// Runner is the execute-side dependency: one call runs one tool under one
// instance. Implemented by execute.Executor; faked in tests.
type Runner interface {
	Execute(ctx context.Context, skill, tool, instance string, argumentsJSON []byte) (*execute.Result, error)
}

// ManifestProvider returns the currently loaded manifest. The daemon swaps
// the manifest atomically on reload, so the server re-reads it per request
// instead of holding a copy.
type ManifestProvider interface {
	Manifest() *manifest.Manifest
}

// Server bridges AI clients (Claude Code, Cursor) to the discovery and
// execution cores.
type Server struct {
	mcp      *mcp.Server
	engine   search.SearchEngine
	metadata catalog.MetadataStore
	runner   Runner
	skills   ManifestProvider
	embedder embed.Embedder // capability signaling; may be nil
	config   *config.Config
	logger   *slog.Logger

	// Background reindexing progress (nil when no sync is running).
	indexProgress *async.IndexProgress

	// Query telemetry (optional, set via SetMetrics).
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo describes a registered protocol operation.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates the MCP server. engine, metadata, runner, and skills are
// required; embedder may be nil and is then reported as unavailable.
func NewServer(engine search.SearchEngine, metadata catalog.MetadataStore, runner Runner, skills ManifestProvider, embedder embed.Embedder, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if metadata == nil {
		return nil, errors.New("metadata store is required")
	}
	if runner == nil {
		return nil, errors.New("executor is required")
	}
	if skills == nil {
		return nil, errors.New("manifest provider is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		metadata: metadata,
		runner:   runner,
		skills:   skills,
		embedder: embedder,
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "skillrunner",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// SetIndexProgress attaches the reindex progress tracker so search_skills
// can tell the agent the catalog is mid-rebuild instead of returning a
// partial ranking.
func (s *Server) SetIndexProgress(progress *async.IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexProgress = progress
}

// SetMetrics attaches the query metrics collector. When set, a
// query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "skillrunner", version.Version
}

// ListTools returns the registered protocol operations.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "list_skills",
			Description: "List installed skills with their instances and tools. Paginated; use this to browse the whole catalog when you already know roughly what is installed.",
		},
		{
			Name:        "search_skills",
			Description: "Find the right tool for a task. Hybrid keyword + semantic search over every installed tool's description, parameters, and examples. Describe what you want to do in plain language.",
		},
		{
			Name:        "execute",
			Description: "Run a named tool of an installed skill inside its sandbox. Arguments are validated against the tool's declared parameters before anything runs.",
		},
	}
}

// CallTool invokes an operation by name with loosely-typed arguments. The
// MCP transport goes through the typed handlers instead; this entry point
// exists for the daemon protocol and for tests.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case "list_skills":
		return s.handleListSkills(ctx, args)
	case "search_skills":
		return s.handleSearchSkills(ctx, args)
	case "execute":
		return s.handleExecute(ctx, args)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	for _, t := range s.ListTools() {
		tool := &mcp.Tool{Name: t.Name, Description: t.Description}
		switch t.Name {
		case "list_skills":
			mcp.AddTool(s.mcp, tool, s.mcpListSkillsHandler)
		case "search_skills":
			mcp.AddTool(s.mcp, tool, s.mcpSearchSkillsHandler)
		case "execute":
			mcp.AddTool(s.mcp, tool, s.mcpExecuteHandler)
		}
		s.logger.Debug("Registered tool", slog.String("name", t.Name))
	}

	s.logger.Info("MCP tools registered", slog.Int("count", len(s.ListTools())))
}

// --- list_skills ---

func (s *Server) mcpListSkillsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListSkillsInput) (*mcp.CallToolResult, ListSkillsOutput, error) {
	out, err := s.listSkills(ctx, input)
	if err != nil {
		return nil, ListSkillsOutput{}, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) handleListSkills(ctx context.Context, args map[string]any) (any, error) {
	var input ListSkillsInput
	if v, ok := args["offset"].(float64); ok {
		input.Offset = int(v)
	}
	if v, ok := args["limit"].(float64); ok {
		input.Limit = int(v)
	}
	if v, ok := args["filter"].(string); ok {
		input.Filter = v
	}
	out, err := s.listSkills(ctx, input)
	if err != nil {
		return nil, MapError(err)
	}
	return FormatSkillList(out), nil
}

func (s *Server) listSkills(ctx context.Context, input ListSkillsInput) (ListSkillsOutput, error) {
	requestID := generateRequestID()
	m := s.skills.Manifest()
	if m == nil {
		return ListSkillsOutput{}, NewInvalidParamsError("no manifest is loaded")
	}

	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	limit := clampLimit(input.Limit, 20, 1, 100)

	names := make([]string, 0, len(m.Skills))
	for name := range m.Skills {
		if input.Filter != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(input.Filter)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := ListSkillsOutput{Total: len(names), Offset: offset}
	for i := offset; i < len(names) && len(out.Skills) < limit; i++ {
		sk := m.Skills[names[i]]
		out.Skills = append(out.Skills, skillSummary(sk))
	}

	s.logger.Info("list_skills completed",
		slog.String("request_id", requestID),
		slog.Int("total", out.Total),
		slog.Int("returned", len(out.Skills)))
	_ = ctx
	return out, nil
}

func skillSummary(sk *manifest.Skill) SkillEntry {
	entry := SkillEntry{
		Name:        sk.Name,
		Runtime:     string(sk.Runtime),
		Description: sk.Description,
	}
	for name := range sk.Instances {
		entry.Instances = append(entry.Instances, name)
	}
	sort.Strings(entry.Instances)
	for _, t := range sk.Tools {
		entry.Tools = append(entry.Tools, ToolEntry{
			Name:        t.Name,
			Description: t.Description,
			Signature:   executionSignature(sk.Name, t),
		})
	}
	return entry
}

// --- search_skills ---

func (s *Server) mcpSearchSkillsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchSkillsInput) (*mcp.CallToolResult, SearchSkillsOutput, error) {
	out, _, err := s.searchSkills(ctx, input)
	if err != nil {
		return nil, SearchSkillsOutput{}, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) handleSearchSkills(ctx context.Context, args map[string]any) (any, error) {
	var input SearchSkillsInput
	if v, ok := args["query"].(string); ok {
		input.Query = v
	}
	if v, ok := args["top_k"].(float64); ok {
		input.TopK = int(v)
	}
	if v, ok := args["skill"].(string); ok {
		input.Skill = v
	}
	_, text, err := s.searchSkills(ctx, input)
	if err != nil {
		return nil, MapError(err)
	}
	return text, nil
}

func (s *Server) searchSkills(ctx context.Context, input SearchSkillsInput) (SearchSkillsOutput, string, error) {
	s.mu.RLock()
	progress := s.indexProgress
	s.mu.RUnlock()

	if progress != nil && progress.IsIndexing() {
		snap := progress.Snapshot()
		text := fmt.Sprintf("## Catalog Rebuild in Progress\n\n"+
			"**Progress:** %.1f%% (%d/%d skills)\n"+
			"**Stage:** %s\n\n"+
			"Search results may be incomplete. Please try again in a moment.",
			snap.ProgressPct, snap.SkillsLoaded, snap.SkillsTotal, snap.Stage)
		return SearchSkillsOutput{Query: input.Query}, text, nil
	}

	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.Query) == "" {
		return SearchSkillsOutput{}, "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	topK := clampLimit(input.TopK, 5, 1, 50)

	s.logger.Info("search_skills started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("top_k", topK))

	opts := search.SearchOptions{
		Limit:            topK,
		SkillFilter:      input.Skill,
		MaxContextTokens: s.config.Search.MaxContextTokens,
	}

	results, err := s.engine.Search(ctx, input.Query, opts)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search_skills failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return SearchSkillsOutput{}, "", err
	}

	s.logger.Info("search_skills completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	m := s.skills.Manifest()
	out := SearchSkillsOutput{
		Query:     input.Query,
		Total:     len(results),
		LatencyMS: duration.Milliseconds(),
	}
	for _, r := range results {
		if r == nil || r.Document == nil {
			continue
		}
		summary := r.CompressedDescription
		if summary == "" {
			summary = r.Document.Description
		}
		out.Results = append(out.Results, SearchResultEntry{
			ID:        r.Document.ID,
			Skill:     r.Document.Skill,
			Instance:  r.Document.Instance,
			Tool:      r.Document.Tool,
			Summary:   summary,
			Signature: signatureFor(m, r.Document.Skill, r.Document.Tool),
			Score:     r.Score,
		})
	}

	return out, FormatSearchResults(input.Query, results, m), nil
}

// --- execute ---

func (s *Server) mcpExecuteHandler(ctx context.Context, _ *mcp.CallToolRequest, input ExecuteInput) (*mcp.CallToolResult, ExecuteOutput, error) {
	out, err := s.executeTool(ctx, input)
	if err != nil {
		return nil, ExecuteOutput{}, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) handleExecute(ctx context.Context, args map[string]any) (any, error) {
	var input ExecuteInput
	if v, ok := args["skill"].(string); ok {
		input.Skill = v
	}
	if v, ok := args["tool"].(string); ok {
		input.Tool = v
	}
	if v, ok := args["instance"].(string); ok {
		input.Instance = v
	}
	if v, ok := args["arguments"].(map[string]any); ok {
		input.Arguments = v
	}
	out, err := s.executeTool(ctx, input)
	if err != nil {
		return nil, MapError(err)
	}
	return FormatExecutionResult(input, out), nil
}

func (s *Server) executeTool(ctx context.Context, input ExecuteInput) (ExecuteOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	if input.Skill == "" || input.Tool == "" {
		return ExecuteOutput{}, NewInvalidParamsError("skill and tool parameters are required")
	}
	instance := input.Instance
	if instance == "" {
		instance = "default"
	}

	argsJSON, err := json.Marshal(input.Arguments)
	if err != nil {
		return ExecuteOutput{}, NewInvalidParamsError("arguments must be a JSON object")
	}

	s.logger.Info("execute started",
		slog.String("request_id", requestID),
		slog.String("skill", input.Skill),
		slog.String("tool", input.Tool),
		slog.String("instance", instance))

	result, err := s.runner.Execute(ctx, input.Skill, input.Tool, instance, argsJSON)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("execute failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return ExecuteOutput{}, err
	}

	s.logger.Info("execute completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Bool("truncated", result.Truncated))

	return ExecuteOutput{
		Success:    true,
		Output:     result.OutputJSON,
		Truncated:  result.Truncated,
		DurationMS: result.DurationMS,
	}, nil
}

// Serve starts the server with the specified transport. Only stdio is
// wired; the protocol spec treats HTTP mounting as a transport concern
// for a future front end.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		s.logger.Debug("Using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "req-unknown"
	}
	return "req-" + hex.EncodeToString(b)
}
