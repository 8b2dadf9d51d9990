package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {{resolved:<kind>:<mention>}} and
// {{result:<step_id>[.<field>...]}}.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(resolved|result):([^{}]+?)\s*\}\}`)

// Env holds the values a step's placeholders may refer to.
type Env struct {
	Resolutions Resolutions
	// Results of completed dependencies, by step id.
	Results map[string]map[string]any
}

// Substitute returns a copy of params with every placeholder replaced.
// A string that is exactly one placeholder takes the referenced value as-is,
// so a resolved contact becomes a nested object rather than its JSON text.
// Placeholders embedded in longer text are rendered inline within that string
// only. Any placeholder without a value fails with ErrUnresolvedPlaceholder.
func Substitute(params map[string]any, env Env) (map[string]any, error) {
	if params == nil {
		return nil, nil
	}
	out, err := substituteValue(params, env)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func substituteValue(value any, env Env) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			replaced, err := substituteValue(item, env)
			if err != nil {
				return nil, err
			}
			out[key] = replaced
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			replaced, err := substituteValue(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = replaced
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			replaced, err := substituteString(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = replaced
		}
		return out, nil
	case string:
		return substituteString(v, env)
	default:
		return value, nil
	}
}

func substituteString(s string, env Env) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && strings.TrimSpace(s) == s[matches[0][0]:matches[0][1]] {
		m := matches[0]
		return lookupPlaceholder(s[m[2]:m[3]], strings.TrimSpace(s[m[4]:m[5]]), s[m[0]:m[1]], env)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		value, err := lookupPlaceholder(s[m[2]:m[3]], strings.TrimSpace(s[m[4]:m[5]]), s[m[0]:m[1]], env)
		if err != nil {
			return nil, err
		}
		b.WriteString(renderInline(value))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func lookupPlaceholder(source, ref, token string, env Env) (any, error) {
	switch source {
	case "resolved":
		entity, ok := env.Resolutions[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, token)
		}
		return normalizeRecord(entity.Record), nil
	case "result":
		stepID, path, _ := strings.Cut(ref, ".")
		result, ok := env.Results[stepID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, token)
		}
		var current any = normalizeRecord(result)
		if path == "" {
			return current, nil
		}
		for _, field := range strings.Split(path, ".") {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, token)
			}
			current, ok = obj[field]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, token)
			}
		}
		return current, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, token)
}

// normalizeRecord converts a record to its JSON shape (structs become maps)
// and detaches it from the caller's copy.
func normalizeRecord(record any) any {
	if record == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return record
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return record
	}
	return out
}

func renderInline(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
