package execute

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// validateArguments checks argumentsJSON against tool.Parameters and
// returns the normalized argument object the adapter receives: unknown
// parameters are rejected, missing required ones accumulate into one
// error, declared defaults are applied, scalar values are coerced to the
// parameter's declared type category, and enum-typed values must be one
// of the declared enum values.
func validateArguments(tool *manifest.Tool, argumentsJSON []byte) ([]byte, error) {
	if len(argumentsJSON) == 0 {
		argumentsJSON = []byte("{}")
	}

	var args map[string]json.RawMessage
	if err := json.Unmarshal(argumentsJSON, &args); err != nil {
		return nil, skillerr.ParseError("tool arguments must be a JSON object", err)
	}

	params := make(map[string]*manifest.ToolParameter, len(tool.Parameters))
	for i := range tool.Parameters {
		params[tool.Parameters[i].Name] = &tool.Parameters[i]
	}

	var unknown []string
	for name := range args {
		if _, ok := params[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	if len(unknown) > 0 {
		err := skillerr.InvalidArguments("unknown argument(s): "+strings.Join(unknown, ", "), nil)
		for _, name := range unknown {
			err.WithDetail(name, "unknown")
		}
		return nil, err
	}

	normalized := make(map[string]any, len(tool.Parameters))
	var missing []string
	var bad []string

	for i := range tool.Parameters {
		p := &tool.Parameters[i]

		raw, provided := args[p.Name]
		if !provided {
			if p.Default != nil {
				normalized[p.Name] = p.Default
				continue
			}
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}

		value, err := coerceValue(p, raw)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		normalized[p.Name] = value
	}

	if len(missing) > 0 {
		err := skillerr.InvalidArguments("missing required argument(s): "+strings.Join(missing, ", "), nil)
		for _, name := range missing {
			err.WithDetail(name, "required")
		}
		return nil, err
	}
	if len(bad) > 0 {
		return nil, skillerr.InvalidArguments("invalid argument(s): "+strings.Join(bad, "; "), nil)
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, skillerr.Internal("failed to encode normalized arguments", err)
	}
	return out, nil
}

// coerceValue converts one raw JSON value to the parameter's declared type
// category. Scalars are coerced liberally (the CLI hands everything over
// as strings); arrays and objects only get a shape check.
func coerceValue(p *manifest.ToolParameter, raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("not valid JSON")
	}

	switch p.Type {
	case "", "string":
		return coerceString(v)

	case "integer":
		switch t := v.(type) {
		case float64:
			if t != math.Trunc(t) {
				return nil, fmt.Errorf("expected an integer, got %v", t)
			}
			return int64(t), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("expected an integer, got %q", t)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("expected an integer")
		}

	case "number":
		switch t := v.(type) {
		case float64:
			return t, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", t)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected a number")
		}

	case "boolean":
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", t)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected a boolean")
		}

	case "enum":
		s, err := coerceString(v)
		if err != nil {
			return nil, err
		}
		for _, e := range p.Enum {
			if e == s {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of [%s]", s, strings.Join(p.Enum, ", "))

	case "array":
		if _, ok := v.([]any); !ok {
			return nil, fmt.Errorf("expected an array")
		}
		return v, nil

	case "object":
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("expected an object")
		}
		return v, nil

	default:
		// Validate reports unknown type categories at load time; pass the
		// value through rather than failing an execution over it.
		return v, nil
	}
}

// coerceString renders any scalar as a string; composites are rejected.
func coerceString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10), nil
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("expected a string")
	}
}
