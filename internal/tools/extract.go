package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const extractPrompt = `Extract any tasks or action items from the following text. Look for:
- Direct commitments ("I'll do X", "I will send Y")
- Requests ("Can you do X?", "Please send Y")
- Deadlines ("by tomorrow", "before Friday")
- Assignments ("John should do X")

Return a JSON object {"tasks": [...]} where each task has:
- description: what needs to be done
- assignee: who should do it (or null if unclear)
- due_date: when it should be done (as written, or null)
- priority: low, medium, or high
- source_quote: the exact text that indicates this task`

type extractedTask struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	DueDate     string `json:"due_date"`
	Priority    string `json:"priority"`
	SourceQuote string `json:"source_quote"`
}

// ExtractTasksTool finds action items in free text and records them.
type ExtractTasksTool struct {
	Model llms.Model
	Tasks *TaskTool
}

func NewExtractTasksTool(model llms.Model, tasks *TaskTool) *ExtractTasksTool {
	return &ExtractTasksTool{Model: model, Tasks: tasks}
}

func (e *ExtractTasksTool) Name() string {
	return "task_extractor"
}

func (e *ExtractTasksTool) Actions() map[string]string {
	return map[string]string{
		"extract_tasks": "Find action items in text and create them as tasks. Params: text.",
	}
}

func (e *ExtractTasksTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	if action != "extract_tasks" {
		return nil, unknownAction(e.Name(), action)
	}
	text := stringParam(params, "text", "content", "message")
	if err := requireParam(action, "text", text); err != nil {
		return nil, err
	}

	resp, err := e.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extractPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}, llms.WithJSONMode(), llms.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("extract tasks: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extract tasks: empty response")
	}

	var parsed struct {
		Tasks []extractedTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Content)), &parsed); err != nil {
		return nil, fmt.Errorf("extract tasks: invalid json: %w", err)
	}

	var created []any
	var skipped []string
	for _, task := range parsed.Tasks {
		if strings.TrimSpace(task.Description) == "" {
			continue
		}
		p := map[string]any{
			"description": task.Description,
			"priority":    task.Priority,
		}
		if task.Assignee != "" {
			p["assignee"] = task.Assignee
		}
		if task.DueDate != "" {
			p["due_date"] = task.DueDate
		}
		if !validPriorityName(task.Priority) {
			delete(p, "priority")
		}
		out, err := e.Tasks.create(ctx, p)
		if err != nil {
			// an unparseable date should not lose the task
			delete(p, "due_date")
			out, err = e.Tasks.create(ctx, p)
		}
		if err != nil {
			skipped = append(skipped, task.Description)
			continue
		}
		created = append(created, out["task"])
	}
	return map[string]any{"count": len(created), "tasks": created, "skipped": skipped}, nil
}

func validPriorityName(p string) bool {
	switch p {
	case "low", "medium", "high":
		return true
	}
	return false
}

// stripFences removes a ```json fence some models wrap around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
