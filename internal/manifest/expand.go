package manifest

import (
	"fmt"
	"os"
	"strings"
)

// expandVars rewrites ${NAME}, ${NAME:-default}, and ${NAME:?message}
// references in s against the supplied lookup function. It is applied to
// every string-valued field read from a manifest file before the value is
// used anywhere else, so downstream code never sees unexpanded syntax.
//
// Only the three shell forms are recognized; anything else inside
// ${...} is a parse error rather than a silent passthrough.
func expandVars(s string, lookup func(string) (string, bool)) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		out.WriteString(s[i : i+start])
		i += start

		end := matchingBrace(s, i+2)
		if end < 0 {
			return "", fmt.Errorf("manifest: unterminated variable reference at offset %d", i)
		}
		expr := s[i+2 : end]
		val, err := resolveExpr(expr, lookup)
		if err != nil {
			return "", err
		}
		out.WriteString(val)
		i = end + 1
	}
	return out.String(), nil
}

// matchingBrace returns the index of the "}" matching the "{" that opened
// at from-2 (i.e. scanning starts right after "${"), respecting nested
// "${" so a default value may itself reference a variable.
func matchingBrace(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "${"):
			depth++
		case s[i] == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func resolveExpr(expr string, lookup func(string) (string, bool)) (string, error) {
	name := expr
	op := ""
	arg := ""

	if idx := strings.Index(expr, ":-"); idx >= 0 {
		name, op, arg = expr[:idx], ":-", expr[idx+2:]
	} else if idx := strings.Index(expr, ":?"); idx >= 0 {
		name, op, arg = expr[:idx], ":?", expr[idx+2:]
	}

	val, ok := lookup(name)
	if ok && val != "" {
		return expandVars(val, lookup)
	}

	switch op {
	case ":-":
		return expandVars(arg, lookup)
	case ":?":
		msg := arg
		if msg == "" {
			msg = fmt.Sprintf("variable %q is required but not set", name)
		}
		return "", fmt.Errorf("manifest: %s", msg)
	default:
		// The bare form is the required form: an unset variable fails the
		// load, naming the variable. Set-but-empty expands to "".
		if ok {
			return "", nil
		}
		return "", fmt.Errorf("manifest: required variable %q is not set", name)
	}
}

// expandAll walks every string field where a manifest author would
// plausibly reference an environment variable (sources, descriptions,
// container image/tag, tool docs, instance config values, capability
// paths and hosts) and rewrites it in place using os.LookupEnv.
func expandAll(m *Manifest) error {
	lookup := os.LookupEnv
	exp := func(s string) (string, error) { return expandVars(s, lookup) }

	for name, sk := range m.Skills {
		sk.Name = name
		var err error
		if sk.Source, err = exp(sk.Source); err != nil {
			return err
		}
		if sk.Description, err = exp(sk.Description); err != nil {
			return err
		}
		if sk.Container != nil {
			if sk.Container.Image, err = exp(sk.Container.Image); err != nil {
				return err
			}
			if sk.Container.Tag, err = exp(sk.Container.Tag); err != nil {
				return err
			}
		}
		for _, t := range sk.Tools {
			if t.Description, err = exp(t.Description); err != nil {
				return err
			}
			for i, ex := range t.Examples {
				if t.Examples[i], err = exp(ex); err != nil {
					return err
				}
			}
		}
		for iname, inst := range sk.Instances {
			inst.Name = iname
			inst.SkillName = name
			for k, v := range inst.Config {
				if inst.Config[k], err = exp(v); err != nil {
					return err
				}
			}
			if err = expandCapabilities(&inst.Capabilities, exp); err != nil {
				return err
			}
		}
	}
	return expandCapabilities(&m.Defaults.Capabilities, exp)
}

func expandCapabilities(c *Capabilities, exp func(string) (string, error)) error {
	var err error
	if c.Network != nil {
		for i, h := range c.Network.Allow {
			if c.Network.Allow[i], err = exp(h); err != nil {
				return err
			}
		}
	}
	for i := range c.Filesystem {
		if c.Filesystem[i].HostPath, err = exp(c.Filesystem[i].HostPath); err != nil {
			return err
		}
		if c.Filesystem[i].GuestPath, err = exp(c.Filesystem[i].GuestPath); err != nil {
			return err
		}
	}
	for i, e := range c.Environment {
		if c.Environment[i], err = exp(e); err != nil {
			return err
		}
	}
	return nil
}
