package resolver

import (
	"fmt"
	"strings"
)

// Missing renders the question sent back to the user when some mentions
// could not be resolved. Extra free-form gaps reported by the classifier can
// be appended with details.
func Missing(unresolved []string, details ...string) string {
	var lines []string
	for _, key := range unresolved {
		kind, mention, ok := strings.Cut(key, ":")
		if !ok {
			lines = append(lines, fmt.Sprintf("- %s", key))
			continue
		}
		switch Kind(kind) {
		case KindContact:
			lines = append(lines, fmt.Sprintf("- I couldn't find a contact named %q. What is their email address?", mention))
		case KindDocument:
			lines = append(lines, fmt.Sprintf("- Which document do you mean by %q?", mention))
		case KindTask:
			lines = append(lines, fmt.Sprintf("- Which task do you mean by %q?", mention))
		default:
			lines = append(lines, fmt.Sprintf("- I couldn't identify %q.", mention))
		}
	}
	for _, d := range details {
		if d = strings.TrimSpace(d); d != "" {
			lines = append(lines, "- "+d)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "I need a bit more information before I can do that:\n" + strings.Join(lines, "\n")
}
