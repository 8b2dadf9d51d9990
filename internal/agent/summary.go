package agent

import (
	"fmt"
	"strings"

	"github.com/rahul/conduit/internal/orchestrator"
)

// detailKeys are the result fields worth echoing back, in preference order.
var detailKeys = []string{"digest", "link", "file_path", "subject", "title", "description", "text", "query"}

// chatActions post into the chat themselves; a run made only of them needs no
// extra summary message.
var chatActions = map[string]bool{
	"reply":          true,
	"send_reply":     true,
	"send_message":   true,
	"generate_reply": true,
}

// Summarize renders a run for the user, one line per step in plan order.
func Summarize(res *orchestrator.ExecutionResult) string {
	if res == nil || res.TotalActions == 0 {
		return "There was nothing to do."
	}

	var b strings.Builder
	switch {
	case res.Completed == res.TotalActions:
		fmt.Fprintf(&b, "Done: %d of %d actions completed.", res.Completed, res.TotalActions)
	default:
		fmt.Fprintf(&b, "Finished with problems: %d of %d actions completed, %d failed, %d skipped.",
			res.Completed, res.TotalActions, res.Failed, res.Skipped)
	}

	for _, step := range res.Steps {
		b.WriteString("\n- ")
		b.WriteString(step.Action)
		switch step.Status {
		case orchestrator.StatusCompleted:
			if detail := resultDetail(step.Result); detail != "" {
				b.WriteString(": ")
				b.WriteString(detail)
			} else {
				b.WriteString(": done")
			}
		case orchestrator.StatusFailed:
			fmt.Fprintf(&b, ": failed (%s)", step.Error)
		case orchestrator.StatusSkipped:
			fmt.Fprintf(&b, ": skipped (%s)", step.Error)
		default:
			fmt.Fprintf(&b, ": %s", step.Status)
		}
	}
	return b.String()
}

// SpokeForItself reports whether every step completed and only posted to
// the chat, so the posted messages already are the answer.
func SpokeForItself(res *orchestrator.ExecutionResult) bool {
	if res == nil || res.TotalActions == 0 || res.Completed != res.TotalActions {
		return false
	}
	for _, step := range res.Steps {
		if !chatActions[strings.ToLower(step.Action)] {
			return false
		}
	}
	return true
}

func resultDetail(result map[string]any) string {
	for _, key := range detailKeys {
		v, ok := result[key]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			continue
		}
		if len(s) > 200 {
			s = s[:200] + "..."
		}
		return s
	}
	if status, ok := result["status"].(string); ok {
		return status
	}
	return ""
}
