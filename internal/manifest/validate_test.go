package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Clean(t *testing.T) {
	m, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)
	assert.Empty(t, Validate(m))
}

func TestValidate_AccumulatesAllIssues(t *testing.T) {
	m := &Manifest{Skills: map[string]*Skill{
		"broken": {
			Name:    "broken",
			Runtime: RuntimeContainer, // missing container spec
			Tools: []*Tool{
				{Name: ""},               // missing name
				{Name: "dup"},
				{Name: "dup"},            // duplicate name
			},
			Instances: map[string]*Instance{
				"bad": {
					Name: "bad",
					Capabilities: Capabilities{
						Filesystem: []FilesystemMount{{HostPath: "relative/path"}},
					},
					ResourceLimits: ResourceLimits{MemoryMB: -1},
					Secrets: map[string]SecretRef{
						"x": {Namespace: "", Key: ""},
					},
				},
			},
		},
	}}

	issues := Validate(m)
	// source missing, runtime container missing spec, empty tool name,
	// duplicate tool name, non-absolute host path, negative memory,
	// incomplete secret ref — every one of these must be reported, not
	// just the first.
	require.GreaterOrEqual(t, len(issues), 7)
}

func TestValidate_ContainerSpecRequiredForContainerRuntime(t *testing.T) {
	m := &Manifest{Skills: map[string]*Skill{
		"s": {Name: "s", Source: "x", Runtime: RuntimeContainer},
	}}
	issues := Validate(m)
	require.NotEmpty(t, issues)
	found := false
	for _, i := range issues {
		if i.Message == "container spec is required for a container-runtime skill" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_UnknownRuntime(t *testing.T) {
	m := &Manifest{Skills: map[string]*Skill{
		"s": {Name: "s", Source: "x", Runtime: "magic"},
	}}
	issues := Validate(m)
	require.NotEmpty(t, issues)
}

func TestValidate_ParameterTypeAndEnum(t *testing.T) {
	m := &Manifest{Skills: map[string]*Skill{
		"s": {Name: "s", Source: "x", Runtime: RuntimeNative, Tools: []*Tool{
			{Name: "t", Parameters: []ToolParameter{
				{Name: "bad-type", Type: "decimal"},
				{Name: "bare-enum", Type: "enum"},
				{Name: "misplaced-enum", Type: "integer", Enum: []string{"a"}},
				{Name: "bad-default", Type: "enum", Enum: []string{"dev", "prod"}, Default: "qa"},
				{Name: "ok", Type: "enum", Enum: []string{"dev", "prod"}, Default: "dev"},
			}},
		}},
	}}

	issues := Validate(m)
	require.Len(t, issues, 4)

	var messages []string
	for _, i := range issues {
		messages = append(messages, i.Message)
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, `unknown type "decimal"`)
	assert.Contains(t, joined, "declares no values")
	assert.Contains(t, joined, `has type "integer"`)
	assert.Contains(t, joined, "not one of its enum values")
}
