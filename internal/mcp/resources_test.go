package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skillrunner/skillrunner/internal/manifest"
)

func TestSkillDocument_RendersToolsAndInstances(t *testing.T) {
	sk := &manifest.Skill{
		Name:        "kubernetes",
		Runtime:     manifest.RuntimeNative,
		Description: "Inspect Kubernetes clusters",
		Tools: []*manifest.Tool{
			{
				Name:        "get",
				Description: "list pods and deployments",
				Parameters: []manifest.ToolParameter{
					{Name: "resource", Type: "string", Required: true, Description: "resource kind"},
				},
				Examples: []string{"get resource=pods"},
			},
		},
		Instances: map[string]*manifest.Instance{
			"prod": {Name: "prod", Config: map[string]string{"kubeconfig": "secret://prod/kubeconfig"}},
		},
	}

	doc := skillDocument(sk)

	assert.Contains(t, doc, "# kubernetes")
	assert.Contains(t, doc, "Runtime: `native`")
	assert.Contains(t, doc, "### get")
	assert.Contains(t, doc, "`resource` string (required)")
	assert.Contains(t, doc, "Example: `get resource=pods`")
	// Instance config is listed by key only; the value may be a secret
	// reference and must never be rendered.
	assert.Contains(t, doc, "config keys: kubeconfig")
	assert.NotContains(t, doc, "secret://prod/kubeconfig")
}

func TestSemanticQuality(t *testing.T) {
	assert.Equal(t, "low", semanticQuality("static"))
	assert.Equal(t, "high", semanticQuality("qwen3-embedding:8b"))
}

func TestSkillDocument_RendersEnumAndDefault(t *testing.T) {
	sk := &manifest.Skill{
		Name:    "logs",
		Runtime: manifest.RuntimeNative,
		Tools: []*manifest.Tool{
			{
				Name: "tail",
				Parameters: []manifest.ToolParameter{
					{Name: "level", Type: "enum", Enum: []string{"debug", "info"}, Default: "info"},
				},
			},
		},
	}

	doc := skillDocument(sk)
	assert.Contains(t, doc, "[one of: debug, info]")
	assert.Contains(t, doc, "(default: info)")
}
