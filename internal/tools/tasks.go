package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rahul/conduit/internal/store"
)

type TaskStore interface {
	CreateTask(ctx context.Context, t store.Task) (*store.Task, error)
	UpdateTask(ctx context.Context, id int64, upd store.TaskUpdate) (*store.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error)
	OverdueTasks(ctx context.Context, now time.Time) ([]store.Task, error)
	SearchContactsByName(ctx context.Context, query string, limit int) ([]store.Contact, error)
}

// TaskTool manages the task list.
type TaskTool struct {
	Store TaskStore
	Now   func() time.Time
}

func NewTaskTool(s TaskStore) *TaskTool {
	return &TaskTool{Store: s, Now: time.Now}
}

func (t *TaskTool) Name() string {
	return "tasks"
}

func (t *TaskTool) Actions() map[string]string {
	return map[string]string{
		"create_task":   "Create a task. Params: description, assignee (optional name, email or resolved contact), due_date (optional, e.g. 'tomorrow', 'friday', ISO date), priority (low|medium|high).",
		"update_task":   "Update a task. Params: task (resolved task) or task_id, and any of description, assignee, due_date, priority, status (pending|in_progress|completed|cancelled).",
		"list_tasks":    "List tasks. Params: assignee (optional), status (optional), all_chats (optional bool).",
		"check_overdue": "List pending tasks that are past their due date.",
	}
}

func (t *TaskTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	switch action {
	case "create_task":
		return t.create(ctx, params)
	case "update_task":
		return t.update(ctx, params)
	case "list_tasks":
		filter := store.TaskFilter{
			Assignee: t.assignee(ctx, params),
			Status:   stringParam(params, "status"),
		}
		if all, _ := params["all_chats"].(bool); !all {
			filter.ChatID = chatOf(ctx, params)
		}
		tasks, err := t.Store.ListTasks(ctx, filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": len(tasks), "tasks": tasks}, nil
	case "check_overdue":
		tasks, err := t.Store.OverdueTasks(ctx, t.Now())
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": len(tasks), "tasks": tasks, "digest": Digest(tasks)}, nil
	}
	return nil, unknownAction(t.Name(), action)
}

func (t *TaskTool) create(ctx context.Context, params map[string]any) (map[string]any, error) {
	desc := stringParam(params, "description", "task", "title")
	if err := requireParam("create_task", "description", desc); err != nil {
		return nil, err
	}
	in := store.Task{
		Description: desc,
		Assignee:    t.assignee(ctx, params),
		Priority:    strings.ToLower(stringParam(params, "priority")),
		ChatID:      chatOf(ctx, params),
	}
	if due := stringParam(params, "due_date", "due"); due != "" {
		parsed, ok := store.ParseDueDate(due, t.Now())
		if !ok {
			return nil, fmt.Errorf("create_task: cannot understand due date %q", due)
		}
		in.DueAt = &parsed
	}
	task, err := t.Store.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "created", "task": task, "id": task.ID}, nil
}

func (t *TaskTool) update(ctx context.Context, params map[string]any) (map[string]any, error) {
	id, ok := intParam(params, "task_id")
	if !ok {
		id, ok = intParam(params, "task")
	}
	if !ok {
		return nil, fmt.Errorf("update_task: missing required parameter \"task_id\"")
	}

	var upd store.TaskUpdate
	if v := stringParam(params, "description"); v != "" {
		upd.Description = &v
	}
	if _, present := params["assignee"]; present {
		v := t.assignee(ctx, params)
		upd.Assignee = &v
	}
	if v := stringParam(params, "priority"); v != "" {
		v = strings.ToLower(v)
		upd.Priority = &v
	}
	if v := stringParam(params, "status"); v != "" {
		v = strings.ToLower(v)
		upd.Status = &v
	}
	if due := stringParam(params, "due_date", "due"); due != "" {
		parsed, ok := store.ParseDueDate(due, t.Now())
		if !ok {
			return nil, fmt.Errorf("update_task: cannot understand due date %q", due)
		}
		upd.DueAt = &parsed
	}

	task, err := t.Store.UpdateTask(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("update_task %d: %w", id, err)
	}
	return map[string]any{"status": "updated", "task": task, "id": task.ID}, nil
}

// assignee resolves the assignee parameter to an email when possible: a
// resolved contact, a literal address, or a unique-enough name lookup.
func (t *TaskTool) assignee(ctx context.Context, params map[string]any) string {
	if addrs := addressOf(params["assignee"]); len(addrs) > 0 {
		a := addrs[0]
		if strings.Contains(a, "@") {
			return store.NormalizeEmail(a)
		}
		if contacts, err := t.Store.SearchContactsByName(ctx, a, 1); err == nil && len(contacts) > 0 {
			return contacts[0].Email
		}
		return a
	}
	return ""
}

// Digest renders tasks as a short chat message.
func Digest(tasks []store.Task) string {
	if len(tasks) == 0 {
		return "No overdue tasks."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d overdue task(s):\n", len(tasks))
	for _, task := range tasks {
		line := "- " + task.Description
		if task.Assignee != "" {
			line += " (" + task.Assignee + ")"
		}
		if task.DueAt != nil {
			line += ", due " + task.DueAt.Format("2006-01-02")
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
