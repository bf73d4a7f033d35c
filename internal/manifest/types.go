// Package manifest loads and validates the declarative manifest that
// describes what skills exist, how their tools are shaped, and which
// instances bind them to a concrete runtime configuration and capability
// grant. It never resolves secret values and never launches a runtime
// adapter; it only produces and diffs a static model of intent.
package manifest

import "strings"

// RuntimeKind identifies which Runtime Adapter a skill's tools execute
// under.
type RuntimeKind string

const (
	RuntimeComponent RuntimeKind = "component"
	RuntimeContainer RuntimeKind = "container"
	RuntimeNative    RuntimeKind = "native"
)

// Manifest is the root of a loaded, expanded, and validated manifest file.
type Manifest struct {
	Version  int                  `yaml:"version" json:"version"`
	Defaults Defaults             `yaml:"defaults" json:"defaults"`
	Skills   map[string]*Skill    `yaml:"skills" json:"skills"`
}

// Defaults are deep-merged into every skill/instance that does not
// override the corresponding field.
type Defaults struct {
	Capabilities   Capabilities   `yaml:"capabilities" json:"capabilities"`
	ResourceLimits ResourceLimits `yaml:"resource_limits" json:"resource_limits"`
}

// Skill groups one or more tools that share a runtime and a source.
type Skill struct {
	Name        string       `yaml:"-" json:"name"`
	Source      string       `yaml:"source" json:"source"`
	Runtime     RuntimeKind  `yaml:"runtime" json:"runtime"`
	Description string       `yaml:"description" json:"description"`
	Container   *ContainerSpec `yaml:"container,omitempty" json:"container,omitempty"`
	Tools       []*Tool      `yaml:"tools" json:"tools"`
	Instances   map[string]*Instance `yaml:"instances" json:"instances"`

	// ContentHash is computed at Load time from the skill's normalized
	// fields (source, runtime, container spec, tool signatures) and used
	// by Diff to detect "changed" without a deep structural comparison.
	ContentHash string `yaml:"-" json:"content_hash"`
}

// ContainerSpec is required when Runtime == RuntimeContainer.
type ContainerSpec struct {
	Image      string   `yaml:"image" json:"image"`
	Entrypoint []string `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`
	Tag        string   `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// Tool is one invocable operation a skill exposes.
type Tool struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Parameters  []ToolParameter `yaml:"parameters" json:"parameters"`
	Examples    []string        `yaml:"examples,omitempty" json:"examples,omitempty"`
	Deprecated  bool            `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`

	// Streaming marks a tool whose output is produced incrementally
	// rather than as one captured blob.
	Streaming bool `yaml:"streaming,omitempty" json:"streaming,omitempty"`
}

// ToolParameter documents one named input a tool accepts. Type is one of
// the categories string, integer, number, boolean, array, object, enum.
type ToolParameter struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`

	// Enum lists the accepted values for an enum-typed parameter.
	Enum []string `yaml:"enum,omitempty" json:"enum,omitempty"`

	// Default is applied when the caller omits the parameter.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`
}

// Instance binds a skill to a concrete configuration, capability grant,
// and resource limits. A skill with no declared instances is not
// executable but may still be discovered.
type Instance struct {
	Name           string            `yaml:"-" json:"name"`
	SkillName      string            `yaml:"-" json:"skill_name"`
	Config         map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
	Capabilities   Capabilities      `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	ResourceLimits ResourceLimits    `yaml:"resource_limits,omitempty" json:"resource_limits,omitempty"`
	Secrets        map[string]SecretRef `yaml:"secrets,omitempty" json:"secrets,omitempty"`

	ContentHash string `yaml:"-" json:"content_hash"`
}

// Capabilities is the declared (never inferred) permission grant for an
// instance. Instances may only narrow what their skill's defaults allow,
// never broaden them — enforced by the Sandbox Assembler, not here.
type Capabilities struct {
	Network     *NetworkCapability `yaml:"network,omitempty" json:"network,omitempty"`
	Filesystem  []FilesystemMount  `yaml:"filesystem,omitempty" json:"filesystem,omitempty"`
	Environment []string           `yaml:"environment,omitempty" json:"environment,omitempty"`
}

// NetworkCapability restricts outbound network access to an explicit
// allow-list of hosts; nil or Allow==nil means no network access at all.
type NetworkCapability struct {
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// FilesystemMount grants access to one host path, optionally read-only,
// projected into the sandbox at GuestPath (defaults to HostPath).
type FilesystemMount struct {
	HostPath  string `yaml:"host_path" json:"host_path"`
	GuestPath string `yaml:"guest_path,omitempty" json:"guest_path,omitempty"`
	ReadOnly  bool   `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// ResourceLimits bounds what a single execution may consume.
type ResourceLimits struct {
	MemoryMB      int `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	CPUPercent    int `yaml:"cpu_percent,omitempty" json:"cpu_percent,omitempty"`
	TimeoutSecond int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	MaxOutputKB   int `yaml:"max_output_kb,omitempty" json:"max_output_kb,omitempty"`

	// MaxConcurrent bounds simultaneous executions of this instance;
	// zero selects the executor's default.
	MaxConcurrent int `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
}

// SecretRef names a secret to be resolved from the Secret Store at
// execution time; it never carries a value.
type SecretRef struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Key       string `yaml:"key" json:"key"`
}

// ToolID uniquely addresses one tool of one instance: "{skill}@{instance}/{tool}".
func ToolID(skill, instance, tool string) string {
	return skill + "@" + instance + "/" + tool
}

// Signature renders the compressed execution signature an agent needs to
// invoke this tool: "skill:tool(param: type, ...)", required parameters
// only.
func (t *Tool) Signature(skillName string) string {
	var sb strings.Builder
	sb.WriteString(skillName)
	sb.WriteString(":")
	sb.WriteString(t.Name)
	sb.WriteString("(")
	first := true
	for _, p := range t.Parameters {
		if !p.Required {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(p.Name)
		sb.WriteString(": ")
		sb.WriteString(p.Type)
	}
	sb.WriteString(")")
	return sb.String()
}
