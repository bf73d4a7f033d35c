package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	out := FormatSearchResults("deploy app", nil, nil)
	assert.Contains(t, out, "No tools found")
	assert.Contains(t, out, "deploy app")
}

func TestFormatSearchResults_SkipsNilDocuments(t *testing.T) {
	results := []*search.SearchResult{
		nil,
		{Document: nil},
		{Document: &catalog.ToolDocument{ID: "git@default/log", Skill: "git", Tool: "log"}, Score: 0.5},
	}
	out := FormatSearchResults("history", results, nil)
	assert.Contains(t, out, "Found 1 tool")
	assert.Contains(t, out, "git@default/log")
}

func TestFormatSearchResults_PrefersCompressedDescription(t *testing.T) {
	results := []*search.SearchResult{
		{
			Document: &catalog.ToolDocument{
				ID:          "git@default/log",
				Skill:       "git",
				Tool:        "log",
				Description: "a very long description that compression already shortened",
			},
			CompressedDescription: "show commit history",
			Score:                 0.8,
		},
	}
	out := FormatSearchResults("history", results, nil)
	assert.Contains(t, out, "show commit history")
	assert.NotContains(t, out, "very long description")
}

func TestFormatSkillList_Empty(t *testing.T) {
	assert.Equal(t, "No skills installed.", FormatSkillList(ListSkillsOutput{}))
}

func TestFormatSkillList_RendersPageBounds(t *testing.T) {
	out := FormatSkillList(ListSkillsOutput{
		Total:  10,
		Offset: 2,
		Skills: []SkillEntry{
			{Name: "git", Runtime: "native", Tools: []ToolEntry{
				{Name: "log", Signature: "git:log()", Description: "show commit history"},
			}},
		},
	})
	assert.Contains(t, out, "3–3 of 10")
	assert.Contains(t, out, "`git:log()`")
	assert.Contains(t, out, "show commit history")
}

func TestExecutionSignature(t *testing.T) {
	tool := &manifest.Tool{
		Name: "get",
		Parameters: []manifest.ToolParameter{
			{Name: "resource", Type: "string", Required: true},
			{Name: "namespace", Type: "string"},
			{Name: "replicas", Type: "integer", Required: true},
		},
	}
	assert.Equal(t, "kubernetes:get(resource: string, replicas: integer)", executionSignature("kubernetes", tool))

	assert.Equal(t, "git:log()", executionSignature("git", &manifest.Tool{Name: "log"}))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, clampLimit(0, 20, 1, 100))
	assert.Equal(t, 1, clampLimit(-5, 20, 1, 100))
	assert.Equal(t, 100, clampLimit(500, 20, 1, 100))
	assert.Equal(t, 42, clampLimit(42, 20, 1, 100))
}
