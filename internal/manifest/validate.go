package manifest

import (
	"fmt"
	"path/filepath"
)

// ValidationIssue is one accumulated problem found by Validate. Validate
// never fails fast: every skill and instance is checked and every issue
// found is reported in one pass, so a user fixing a manifest sees all
// problems at once.
type ValidationIssue struct {
	Skill    string
	Instance string
	Message  string
}

func (i ValidationIssue) String() string {
	if i.Instance != "" {
		return fmt.Sprintf("skill %q instance %q: %s", i.Skill, i.Instance, i.Message)
	}
	return fmt.Sprintf("skill %q: %s", i.Skill, i.Message)
}

// Validate checks every skill and instance in m and returns every problem
// found, or nil if m is well-formed.
func Validate(m *Manifest) []ValidationIssue {
	var issues []ValidationIssue

	for name, sk := range m.Skills {
		issues = append(issues, validateSkill(name, sk)...)
	}

	return issues
}

func validateSkill(name string, sk *Skill) []ValidationIssue {
	var issues []ValidationIssue
	add := func(format string, args ...any) {
		issues = append(issues, ValidationIssue{Skill: name, Message: fmt.Sprintf(format, args...)})
	}

	if sk.Source == "" {
		add("source is required")
	}

	switch sk.Runtime {
	case RuntimeComponent, RuntimeContainer, RuntimeNative:
	case "":
		add("runtime is required")
	default:
		add("unknown runtime %q", sk.Runtime)
	}

	if sk.Runtime == RuntimeContainer {
		if sk.Container == nil {
			add("container spec is required for a container-runtime skill")
		} else if sk.Container.Image == "" {
			add("container.image is required for a container-runtime skill")
		}
	} else if sk.Container != nil {
		add("container spec is only meaningful for runtime %q", RuntimeContainer)
	}

	seenTool := map[string]bool{}
	for _, t := range sk.Tools {
		if t.Name == "" {
			add("a tool is missing a name")
			continue
		}
		if seenTool[t.Name] {
			add("duplicate tool name %q", t.Name)
		}
		seenTool[t.Name] = true
		for _, p := range t.Parameters {
			if p.Name == "" {
				add("tool %q has a parameter with no name", t.Name)
				continue
			}
			switch p.Type {
			case "", "string", "integer", "number", "boolean", "array", "object", "enum":
			default:
				add("tool %q parameter %q has unknown type %q", t.Name, p.Name, p.Type)
			}
			if p.Type == "enum" && len(p.Enum) == 0 {
				add("tool %q parameter %q is enum-typed but declares no values", t.Name, p.Name)
			}
			if len(p.Enum) > 0 && p.Type != "" && p.Type != "enum" && p.Type != "string" {
				add("tool %q parameter %q declares enum values but has type %q", t.Name, p.Name, p.Type)
			}
			if p.Default != nil && len(p.Enum) > 0 {
				def := fmt.Sprintf("%v", p.Default)
				found := false
				for _, e := range p.Enum {
					if e == def {
						found = true
						break
					}
				}
				if !found {
					add("tool %q parameter %q default %q is not one of its enum values", t.Name, p.Name, def)
				}
			}
		}
	}

	for iname, inst := range sk.Instances {
		issues = append(issues, validateInstance(name, iname, inst)...)
	}

	return issues
}

func validateInstance(skill, name string, inst *Instance) []ValidationIssue {
	var issues []ValidationIssue
	add := func(format string, args ...any) {
		issues = append(issues, ValidationIssue{Skill: skill, Instance: name, Message: fmt.Sprintf(format, args...)})
	}

	for _, m := range inst.Capabilities.Filesystem {
		if m.HostPath == "" {
			add("filesystem capability is missing host_path")
			continue
		}
		if !filepath.IsAbs(m.HostPath) {
			add("filesystem capability host_path %q must be absolute", m.HostPath)
		}
	}

	rl := inst.ResourceLimits
	if rl.MemoryMB < 0 {
		add("resource_limits.memory_mb must be non-negative")
	}
	if rl.CPUPercent < 0 {
		add("resource_limits.cpu_percent must be non-negative")
	}
	if rl.TimeoutSecond < 0 {
		add("resource_limits.timeout_seconds must be non-negative")
	}
	if rl.MaxOutputKB < 0 {
		add("resource_limits.max_output_kb must be non-negative")
	}

	for ref, s := range inst.Secrets {
		if s.Namespace == "" || s.Key == "" {
			add("secret reference %q must set both namespace and key", ref)
		}
	}

	return issues
}

// ValidateInstanceRefs checks that every instance names a skill that
// actually exists in m — trivially true for instances nested under
// Skill.Instances in the current format, but kept as a separate pass so a
// future flat instance-list format (instances referencing skills by name)
// can reuse it without restructuring Validate.
func ValidateInstanceRefs(m *Manifest) []ValidationIssue {
	var issues []ValidationIssue
	for name, sk := range m.Skills {
		for iname, inst := range sk.Instances {
			if inst.SkillName != "" && inst.SkillName != name {
				issues = append(issues, ValidationIssue{
					Skill: name, Instance: iname,
					Message: fmt.Sprintf("instance bound to skill %q but nested under %q", inst.SkillName, name),
				})
			}
		}
	}
	return issues
}
