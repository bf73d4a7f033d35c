package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/execute"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// --- fakes ---

type fakeEngine struct {
	results []*search.SearchResult
	err     error
	lastOpt search.SearchOptions
}

func (f *fakeEngine) Search(_ context.Context, _ string, opts search.SearchOptions) ([]*search.SearchResult, error) {
	f.lastOpt = opts
	return f.results, f.err
}
func (f *fakeEngine) Index(context.Context, []*catalog.ToolDocument) error { return nil }
func (f *fakeEngine) Delete(context.Context, []string) error               { return nil }
func (f *fakeEngine) Stats() *search.EngineStats                           { return &search.EngineStats{} }
func (f *fakeEngine) Close() error                                         { return nil }

type fakeMetadata struct {
	docIDs []string
}

func (f *fakeMetadata) SaveDocuments(context.Context, []*catalog.ToolDocument) error { return nil }
func (f *fakeMetadata) GetDocument(context.Context, string) (*catalog.ToolDocument, error) {
	return nil, nil
}
func (f *fakeMetadata) GetDocuments(context.Context, []string) ([]*catalog.ToolDocument, error) {
	return nil, nil
}
func (f *fakeMetadata) AllDocumentIDs(context.Context) ([]string, error) { return f.docIDs, nil }
func (f *fakeMetadata) DeleteDocuments(context.Context, []string) error  { return nil }
func (f *fakeMetadata) RecordUsage(context.Context, string, bool, time.Time) error {
	return nil
}
func (f *fakeMetadata) GetState(context.Context, string) (string, error) { return "", nil }
func (f *fakeMetadata) SetState(context.Context, string, string) error   { return nil }
func (f *fakeMetadata) Close() error                                     { return nil }

type fakeRunner struct {
	result *execute.Result
	err    error

	gotSkill, gotTool, gotInstance string
	gotArgs                        []byte
}

func (f *fakeRunner) Execute(_ context.Context, skill, tool, instance string, args []byte) (*execute.Result, error) {
	f.gotSkill, f.gotTool, f.gotInstance, f.gotArgs = skill, tool, instance, args
	return f.result, f.err
}

type fakeManifest struct {
	m *manifest.Manifest
}

func (f *fakeManifest) Manifest() *manifest.Manifest { return f.m }

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Version: 1,
		Skills: map[string]*manifest.Skill{
			"kubernetes": {
				Name:        "kubernetes",
				Runtime:     manifest.RuntimeNative,
				Description: "Inspect Kubernetes clusters",
				Tools: []*manifest.Tool{
					{
						Name:        "get",
						Description: "list pods and deployments",
						Parameters: []manifest.ToolParameter{
							{Name: "resource", Type: "string", Required: true},
							{Name: "namespace", Type: "string"},
						},
					},
				},
				Instances: map[string]*manifest.Instance{
					"default": {Name: "default", SkillName: "kubernetes"},
				},
			},
			"git": {
				Name:    "git",
				Runtime: manifest.RuntimeNative,
				Tools: []*manifest.Tool{
					{Name: "log", Description: "show commit history"},
				},
				Instances: map[string]*manifest.Instance{
					"default": {Name: "default", SkillName: "git"},
				},
			},
		},
	}
}

func newTestServer(t *testing.T, engine *fakeEngine, runner *fakeRunner) *Server {
	t.Helper()
	if engine == nil {
		engine = &fakeEngine{}
	}
	if runner == nil {
		runner = &fakeRunner{result: &execute.Result{}}
	}
	s, err := NewServer(engine, &fakeMetadata{}, runner, &fakeManifest{m: testManifest()}, nil, nil)
	require.NoError(t, err)
	return s
}

// --- construction ---

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, &fakeMetadata{}, &fakeRunner{}, &fakeManifest{}, nil, nil)
	assert.Error(t, err)

	_, err = NewServer(&fakeEngine{}, nil, &fakeRunner{}, &fakeManifest{}, nil, nil)
	assert.Error(t, err)

	_, err = NewServer(&fakeEngine{}, &fakeMetadata{}, nil, &fakeManifest{}, nil, nil)
	assert.Error(t, err)

	_, err = NewServer(&fakeEngine{}, &fakeMetadata{}, &fakeRunner{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestListTools_ExactlyThreeOperations(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tools := s.ListTools()
	require.Len(t, tools, 3)
	assert.Equal(t, "list_skills", tools[0].Name)
	assert.Equal(t, "search_skills", tools[1].Name)
	assert.Equal(t, "execute", tools[2].Name)
}

func TestCallTool_UnknownOperation(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_, err := s.CallTool(context.Background(), "search_code", nil)
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

// --- list_skills ---

func TestListSkills_ReturnsAllSorted(t *testing.T) {
	s := newTestServer(t, nil, nil)
	out, err := s.listSkills(context.Background(), ListSkillsInput{})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Skills, 2)
	assert.Equal(t, "git", out.Skills[0].Name)
	assert.Equal(t, "kubernetes", out.Skills[1].Name)
	assert.Equal(t, []string{"default"}, out.Skills[1].Instances)
}

func TestListSkills_Pagination(t *testing.T) {
	s := newTestServer(t, nil, nil)

	out, err := s.listSkills(context.Background(), ListSkillsInput{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Skills, 1)
	assert.Equal(t, "kubernetes", out.Skills[0].Name)

	out, err = s.listSkills(context.Background(), ListSkillsInput{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, out.Skills)
}

func TestListSkills_Filter(t *testing.T) {
	s := newTestServer(t, nil, nil)
	out, err := s.listSkills(context.Background(), ListSkillsInput{Filter: "KUBE"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
	require.Len(t, out.Skills, 1)
	assert.Equal(t, "kubernetes", out.Skills[0].Name)
}

func TestListSkills_IncludesExecutionSignature(t *testing.T) {
	s := newTestServer(t, nil, nil)
	out, err := s.listSkills(context.Background(), ListSkillsInput{Filter: "kubernetes"})
	require.NoError(t, err)
	require.Len(t, out.Skills[0].Tools, 1)
	assert.Equal(t, "kubernetes:get(resource: string)", out.Skills[0].Tools[0].Signature)
}

// --- search_skills ---

func TestSearchSkills_EmptyQueryRejected(t *testing.T) {
	s := newTestServer(t, nil, nil)

	_, _, err := s.searchSkills(context.Background(), SearchSkillsInput{Query: "   "})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchSkills_FormatsResults(t *testing.T) {
	engine := &fakeEngine{
		results: []*search.SearchResult{
			{
				Document: &catalog.ToolDocument{
					ID:          "kubernetes@default/get",
					Skill:       "kubernetes",
					Instance:    "default",
					Tool:        "get",
					Description: "list pods and deployments",
				},
				Score: 0.92,
			},
		},
	}
	s := newTestServer(t, engine, nil)

	_, text, err := s.searchSkills(context.Background(), SearchSkillsInput{Query: "show me running pods"})
	require.NoError(t, err)
	assert.Contains(t, text, "kubernetes@default/get")
	assert.Contains(t, text, "list pods and deployments")
	assert.Contains(t, text, "kubernetes:get(resource: string)")
}

func TestSearchSkills_TopKClamped(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(t, engine, nil)

	_, _, err := s.searchSkills(context.Background(), SearchSkillsInput{Query: "anything", TopK: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, engine.lastOpt.Limit)

	_, _, err = s.searchSkills(context.Background(), SearchSkillsInput{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, 5, engine.lastOpt.Limit)
}

func TestSearchSkills_SkillFilterForwarded(t *testing.T) {
	engine := &fakeEngine{}
	s := newTestServer(t, engine, nil)

	_, _, err := s.searchSkills(context.Background(), SearchSkillsInput{Query: "logs", Skill: "git"})
	require.NoError(t, err)
	assert.Equal(t, "git", engine.lastOpt.SkillFilter)
}

func TestSearchSkills_EngineErrorMapped(t *testing.T) {
	engine := &fakeEngine{err: skillerr.SearchOverloaded("too many inflight queries")}
	s := newTestServer(t, engine, nil)

	_, err := s.CallTool(context.Background(), "search_skills", map[string]any{"query": "pods"})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeResourceLimit, mcpErr.Code)
}

// --- execute ---

func TestExecute_DefaultsInstance(t *testing.T) {
	runner := &fakeRunner{result: &execute.Result{
		OutputJSON: json.RawMessage(`{"stdout":"hello\n"}`),
		DurationMS: 12,
	}}
	s := newTestServer(t, nil, runner)

	out, err := s.executeTool(context.Background(), ExecuteInput{
		Skill:     "kubernetes",
		Tool:      "get",
		Arguments: map[string]any{"resource": "pods"},
	})
	require.NoError(t, err)

	assert.Equal(t, "default", runner.gotInstance)
	assert.True(t, out.Success)
	assert.JSONEq(t, `{"resource":"pods"}`, string(runner.gotArgs))
	assert.Equal(t, int64(12), out.DurationMS)
}

func TestExecute_MissingSkillOrTool(t *testing.T) {
	s := newTestServer(t, nil, nil)

	_, err := s.executeTool(context.Background(), ExecuteInput{Tool: "get"})
	require.Error(t, err)

	_, err = s.executeTool(context.Background(), ExecuteInput{Skill: "kubernetes"})
	require.Error(t, err)
}

func TestExecute_RunnerErrorPassedThrough(t *testing.T) {
	runner := &fakeRunner{err: skillerr.CapabilityDenied("network access is not declared")}
	s := newTestServer(t, nil, runner)

	_, err := s.CallTool(context.Background(), "execute", map[string]any{
		"skill": "db", "tool": "ping",
	})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeCapabilityDenied, mcpErr.Code)
}

func TestExecute_TruncatedFlagSurfaced(t *testing.T) {
	runner := &fakeRunner{result: &execute.Result{
		OutputJSON: json.RawMessage(`{"stdout":"..."}`),
		Truncated:  true,
	}}
	s := newTestServer(t, nil, runner)

	out, err := s.executeTool(context.Background(), ExecuteInput{Skill: "kubernetes", Tool: "get"})
	require.NoError(t, err)
	assert.True(t, out.Truncated)

	text := FormatExecutionResult(ExecuteInput{Skill: "kubernetes", Tool: "get"}, out)
	assert.Contains(t, text, "truncated")
}
