package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

var (
	ErrNoUpdates  = errors.New("no valid fields to update")
	validStatus   = map[string]bool{TaskPending: true, TaskInProgress: true, TaskCompleted: true, TaskCancelled: true}
	validPriority = map[string]bool{"low": true, "medium": true, "high": true}
)

type Task struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Assignee    string     `json:"assignee,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	ChatID      string     `json:"chat_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TaskUpdate carries the fields to change; nil fields are left alone.
type TaskUpdate struct {
	Description *string
	Assignee    *string
	DueAt       *time.Time
	Priority    *string
	Status      *string
}

type TaskFilter struct {
	ChatID   string
	Assignee string
	Status   string
	Limit    int
}

const taskColumns = `id, description, assignee, due_at_unix, priority, status, chat_id, created_at_unix, updated_at_unix`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var due, created, updated sql.NullInt64
	if err := row.Scan(&t.ID, &t.Description, &t.Assignee, &due, &t.Priority, &t.Status, &t.ChatID, &created, &updated); err != nil {
		return Task{}, err
	}
	if due.Valid {
		d := fromUnix(due)
		t.DueAt = &d
	}
	t.CreatedAt = fromUnix(created)
	t.UpdatedAt = fromUnix(updated)
	return t, nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTask(ctx context.Context, in Task) (*Task, error) {
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return nil, fmt.Errorf("%w: task without description", ErrInvalidRecord)
	}
	if in.Priority == "" {
		in.Priority = "medium"
	}
	if !validPriority[in.Priority] {
		return nil, fmt.Errorf("%w: priority %q", ErrInvalidRecord, in.Priority)
	}
	if in.Status == "" {
		in.Status = TaskPending
	}
	if !validStatus[in.Status] {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidRecord, in.Status)
	}

	var due any
	if in.DueAt != nil {
		due = unixOrNil(*in.DueAt)
	}
	now := time.Now().UTC().Unix()
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO tasks (description, assignee, due_at_unix, priority, status, chat_id, created_at_unix, updated_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Description, strings.TrimSpace(in.Assignee), due, in.Priority, in.Status, in.ChatID, now, now)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.TaskByID(ctx, id)
}

func (s *Store) TaskByID(ctx context.Context, id int64) (*Task, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task by id: %w", err)
	}
	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, id int64, upd TaskUpdate) (*Task, error) {
	var sets []string
	var args []any
	if upd.Description != nil && strings.TrimSpace(*upd.Description) != "" {
		sets = append(sets, "description = ?")
		args = append(args, strings.TrimSpace(*upd.Description))
	}
	if upd.Assignee != nil {
		sets = append(sets, "assignee = ?")
		args = append(args, strings.TrimSpace(*upd.Assignee))
	}
	if upd.DueAt != nil {
		sets = append(sets, "due_at_unix = ?")
		args = append(args, unixOrNil(*upd.DueAt))
	}
	if upd.Priority != nil {
		if !validPriority[*upd.Priority] {
			return nil, fmt.Errorf("%w: priority %q", ErrInvalidRecord, *upd.Priority)
		}
		sets = append(sets, "priority = ?")
		args = append(args, *upd.Priority)
	}
	if upd.Status != nil {
		if !validStatus[*upd.Status] {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidRecord, *upd.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if len(sets) == 0 {
		return nil, ErrNoUpdates
	}

	sets = append(sets, "updated_at_unix = ?")
	args = append(args, time.Now().UTC().Unix(), id)
	res, err := s.DB.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.TaskByID(ctx, id)
}

// ListTasks returns tasks matching every non-empty filter field, earliest due
// date first.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	var where []string
	var args []any
	if f.ChatID != "" {
		where = append(where, "chat_id = ?")
		args = append(args, f.ChatID)
	}
	if f.Assignee != "" {
		where = append(where, "LOWER(assignee) = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(f.Assignee)))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	query += ` ORDER BY due_at_unix IS NULL, due_at_unix, id LIMIT ?`
	args = append(args, limit)

	out, err := s.queryTasks(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

// OverdueTasks returns pending tasks whose due date is before now.
func (s *Store) OverdueTasks(ctx context.Context, now time.Time) ([]Task, error) {
	out, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? AND due_at_unix IS NOT NULL AND due_at_unix < ? ORDER BY due_at_unix, id`,
		TaskPending, now.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("overdue tasks: %w", err)
	}
	return out, nil
}

func (s *Store) SearchTasksByDescription(ctx context.Context, query string, limit int) ([]Task, error) {
	out, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE LOWER(description) LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`,
		likePattern(query), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search tasks by description: %w", err)
	}
	return out, nil
}

func (s *Store) SearchTasksByAssignee(ctx context.Context, query string, limit int) ([]Task, error) {
	out, err := s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE LOWER(assignee) LIKE ? ESCAPE '\' ORDER BY id LIMIT ?`,
		likePattern(query), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("search tasks by assignee: %w", err)
	}
	return out, nil
}
