package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rahul/conduit/internal/orchestrator"
)

// stringParam returns the first non-empty string among keys.
func stringParam(params map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := params[key]
		if !ok || value == nil {
			continue
		}
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case map[string]any, []any:
			continue
		default:
			s = fmt.Sprintf("%v", v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func intParam(params map[string]any, key string) (int64, bool) {
	switch v := params[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	case map[string]any:
		// a substituted record
		return intParam(v, "id")
	}
	return 0, false
}

// recordField reads a field from a substituted record parameter.
func recordField(params map[string]any, key, field string) string {
	record, ok := params[key].(map[string]any)
	if !ok {
		return ""
	}
	return stringParam(record, field)
}

// addressOf extracts an email address from a string, a contact record or a
// list of either.
func addressOf(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case map[string]any:
		if email := stringParam(v, "email"); email != "" {
			return []string{email}
		}
		return nil
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, addressOf(item)...)
		}
		return out
	case []string:
		var out []string
		for _, item := range v {
			out = append(out, addressOf(item)...)
		}
		return out
	}
	return nil
}

// chatOf picks the target chat: explicit chat_id, else the run's session.
func chatOf(ctx context.Context, params map[string]any) string {
	if id := stringParam(params, "chat_id", "channel"); id != "" {
		return id
	}
	return orchestrator.SessionFrom(ctx)
}

func requireParam(tool, name, value string) error {
	if value == "" {
		return fmt.Errorf("%s: missing required parameter %q", tool, name)
	}
	return nil
}
