package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/conduit/internal/documents"
	"github.com/rahul/conduit/internal/orchestrator"
	"github.com/rahul/conduit/internal/resolver"
	"github.com/rahul/conduit/internal/store"
)

func TestChatToolDefaultsToSession(t *testing.T) {
	m := &fakeMessenger{}
	tool := NewChatTool(m)
	ctx := orchestrator.WithSession(context.Background(), "tg:7")

	out, err := tool.Execute(ctx, "send_message", map[string]any{"text": "On it!"})
	require.NoError(t, err)
	assert.Equal(t, "tg:7", out["chat_id"])

	_, err = tool.Execute(ctx, "reply", map[string]any{"message": "to ops", "chat_id": "dc:9"})
	require.NoError(t, err)
	assert.Equal(t, []sentMessage{{"tg:7", "On it!"}, {"dc:9", "to ops"}}, m.sent)

	_, err = tool.Execute(ctx, "send_message", map[string]any{})
	require.ErrorContains(t, err, `missing required parameter "text"`)

	m.err = errors.New("gateway down")
	_, err = tool.Execute(ctx, "send_message", map[string]any{"text": "x"})
	require.ErrorContains(t, err, "gateway down")
}

func TestReplyToolDraftsWithHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := orchestrator.WithSession(context.Background(), "tg:1")
	require.NoError(t, s.AddMessage(ctx, "tg:1", store.RoleHuman, "Can we move the sync?"))

	model := &fakeModel{responses: []string{"  Sure, Thursday works.  ", "Draft only"}}
	m := &fakeMessenger{}
	tool := NewReplyTool(model, s, m)

	out, err := tool.Execute(ctx, "generate_reply", map[string]any{"instructions": "accept politely", "tone": "warm"})
	require.NoError(t, err)
	assert.Equal(t, "Sure, Thursday works.", out["text"])
	require.Len(t, m.sent, 1)
	// system + one history message + instruction
	assert.Len(t, model.prompts[0], 3)

	out, err = tool.Execute(ctx, "generate_reply", map[string]any{"instructions": "x", "send": false})
	require.NoError(t, err)
	assert.Equal(t, "drafted", out["status"])
	assert.Len(t, m.sent, 1)
}

func TestTaskToolLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := orchestrator.WithSession(context.Background(), "tg:1")
	_, err := s.UpsertContact(ctx, store.Contact{Name: "Ana Lopez", Email: "ana@acme.io"})
	require.NoError(t, err)

	tool := NewTaskTool(s)
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	tool.Now = func() time.Time { return now }

	out, err := tool.Execute(ctx, "create_task", map[string]any{
		"description": "Prepare the deck",
		"assignee":    "Ana",
		"due_date":    "friday",
		"priority":    "High",
	})
	require.NoError(t, err)
	task := out["task"].(*store.Task)
	assert.Equal(t, "ana@acme.io", task.Assignee)
	assert.Equal(t, "high", task.Priority)
	assert.Equal(t, "tg:1", task.ChatID)
	require.NotNil(t, task.DueAt)
	assert.Equal(t, time.Friday, task.DueAt.Weekday())

	_, err = tool.Execute(ctx, "create_task", map[string]any{"description": "x", "due_date": "someday maybe"})
	require.ErrorContains(t, err, "cannot understand due date")

	// a substituted task record, ids arrive as float64 after normalization
	out, err = tool.Execute(ctx, "update_task", map[string]any{
		"task":   map[string]any{"id": float64(task.ID)},
		"status": "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, out["task"].(*store.Task).Status)

	_, err = tool.Execute(ctx, "update_task", map[string]any{"status": "completed"})
	require.ErrorContains(t, err, "task_id")

	out, err = tool.Execute(ctx, "list_tasks", map[string]any{"assignee": "ana@acme.io"})
	require.NoError(t, err)
	assert.Equal(t, 1, out["count"])
}

func TestTaskToolOverdueDigest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.CreateTask(ctx, store.Task{Description: "Renew domain", Assignee: "ops@acme.io", DueAt: &past})
	require.NoError(t, err)

	tool := NewTaskTool(s)
	tool.Now = func() time.Time { return past.AddDate(0, 0, 3) }
	out, err := tool.Execute(ctx, "check_overdue", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out["count"])
	assert.Equal(t, "1 overdue task(s):\n- Renew domain (ops@acme.io), due 2026-03-01", out["digest"])
	assert.Equal(t, "No overdue tasks.", Digest(nil))
}

func TestContactToolResolveAndUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := orchestrator.WithSession(context.Background(), "tg:1")
	tool := NewContactTool(s, resolver.New(s))

	_, err := tool.Execute(ctx, "upsert_contact", map[string]any{"email": "Marc@X.com", "name": "Marc"})
	require.NoError(t, err)

	out, err := tool.Execute(ctx, "resolve_contact", map[string]any{"name": "marc"})
	require.NoError(t, err)
	assert.Equal(t, "marc@x.com", out["email"])

	out, err = tool.Execute(ctx, "resolve_contact", map[string]any{"email": "MARC@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "Marc", out["name"])

	out, err = tool.Execute(ctx, "resolve_contact", map[string]any{"name": "x.com"})
	require.NoError(t, err, "falls back to email substring like the resolver")
	assert.Equal(t, "Marc", out["name"])

	_, err = tool.Execute(ctx, "resolve_contact", map[string]any{"name": "Zoe"})
	require.ErrorContains(t, err, "no contact matching")

	_, err = tool.Execute(ctx, "resolve_contact", map[string]any{"email": "zoe@x.com"})
	require.ErrorContains(t, err, "no contact matching")
}

func TestExtractTasksCreatesEachItem(t *testing.T) {
	s := newTestStore(t)
	model := &fakeModel{responses: []string{"```json\n" + `{"tasks":[
		{"description":"Send contract","assignee":"bob@acme.io","due_date":"tomorrow","priority":"high"},
		{"description":"Book room","due_date":"whenever","priority":"urgent"},
		{"description":"  "}
	]}` + "\n```"}}
	tasks := NewTaskTool(s)
	tool := NewExtractTasksTool(model, tasks)

	out, err := tool.Execute(context.Background(), "extract_tasks", map[string]any{"text": "Bob will send the contract tomorrow; someone book a room"})
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])

	all, err := s.ListTasks(context.Background(), store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Send contract", all[0].Description)
	assert.Nil(t, all[1].DueAt)
	assert.Equal(t, "medium", all[1].Priority)
}

func TestDocumentAndShareTools(t *testing.T) {
	s := newTestStore(t)
	ctx := orchestrator.WithSession(context.Background(), "tg:1")
	require.NoError(t, s.AddMessage(ctx, "tg:1", store.RoleHuman, "We agreed to ship on Monday"))

	gen := documents.NewGenerator(s, documents.HTMLRenderer{}, t.TempDir(), nil)
	model := &fakeModel{responses: []string{"# Decisions\n- Ship Monday"}}
	docs := NewDocumentTool(gen, s, model)

	out, err := docs.Execute(ctx, "compile_conversation_summary", map[string]any{"title": "Sync recap"})
	require.NoError(t, err)
	assert.Equal(t, "Sync recap", out["title"])
	assert.Contains(t, model.prompts[0][1].Parts[0].(llms.TextContent).Text, "We agreed to ship on Monday")

	m := &fakeMessenger{}
	share := NewShareTool(s, m, "https://files.example.com")
	shared, err := share.Execute(ctx, "share_document", map[string]any{
		"document": map[string]any{"id": out["id"], "title": "Sync recap"},
		"message":  "Here is the recap",
	})
	require.NoError(t, err)
	assert.Equal(t, "shared", shared["status"])
	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0].Text, "Here is the recap\nhttps://files.example.com/")

	_, err = share.Execute(ctx, "share_document", map[string]any{"document": map[string]any{"type": "pending_meeting_summary"}})
	require.ErrorContains(t, err, "not been generated")

	_, err = share.Execute(ctx, "share_document", map[string]any{"document_id": "nope"})
	require.ErrorContains(t, err, "not found")
}

func TestMeetingSummaryWithoutModel(t *testing.T) {
	s := newTestStore(t)
	gen := documents.NewGenerator(s, documents.HTMLRenderer{}, t.TempDir(), nil)
	docs := NewDocumentTool(gen, s, nil)

	out, err := docs.Execute(context.Background(), "generate_meeting_summary", map[string]any{
		"title":        "Board meeting",
		"participants": []any{"Ana", "Marc"},
		"decisions":    []any{"Raise prices"},
	})
	require.NoError(t, err)
	doc, err := s.DocumentByID(context.Background(), out["id"].(string))
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "Participants: Ana, Marc")
	assert.Contains(t, doc.Content, "# Decisions\n- Raise prices")
	assert.Equal(t, "meeting_summary", doc.DocType)
}

func TestRegistryInstallRegistersEveryAction(t *testing.T) {
	s := newTestStore(t)
	reg := NewRegistry()
	reg.Register(NewChatTool(&fakeMessenger{}))
	reg.Register(NewTaskTool(s))
	reg.Register(NewContactTool(s, resolver.New(s)))
	reg.Register(nil)

	actions := orchestrator.NewRegistry(orchestrator.NewPool(2))
	reg.Install(actions)
	for _, name := range []string{"send_message", "reply", "send_reply", "create_task", "update_task", "list_tasks", "check_overdue", "resolve_contact", "upsert_contact"} {
		assert.True(t, actions.Has(name), name)
	}
	assert.Contains(t, reg.Describe(), "- create_task: Create a task.")

	res, err := orchestrator.ExecutePlan(context.Background(), actions, "tg:1", []*orchestrator.ActionStep{
		orchestrator.NewStep("upsert_contact", map[string]any{"email": "marc@x.com", "name": "Marc"}, orchestrator.WithID("save")),
		orchestrator.NewStep("create_task", map[string]any{
			"description": "Call back",
			"assignee":    "{{result:save.email}}",
		}, orchestrator.WithID("task"), orchestrator.WithDependsOn("save")),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Completed)
}
