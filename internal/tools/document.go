package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/conduit/internal/documents"
	"github.com/rahul/conduit/internal/store"
)

type DocumentGenerator interface {
	Generate(ctx context.Context, req documents.Request) (*store.Document, error)
}

// DocumentTool produces documents from text, chat history or meeting notes.
type DocumentTool struct {
	Generator DocumentGenerator
	History   HistoryReader
	// Model formats summaries; when nil the raw material is used as-is.
	Model llms.Model
}

func NewDocumentTool(gen DocumentGenerator, history HistoryReader, model llms.Model) *DocumentTool {
	return &DocumentTool{Generator: gen, History: history, Model: model}
}

func (d *DocumentTool) Name() string {
	return "documents"
}

func (d *DocumentTool) Actions() map[string]string {
	return map[string]string{
		"generate_document":            "Create a document from text. Params: content, title (optional), type (optional).",
		"compile_conversation_summary": "Summarize the current chat into a document. Params: title (optional), limit (optional message count).",
		"generate_meeting_summary":     "Create a meeting summary document. Params: title, date, participants, summary, key_points, action_items, decisions.",
	}
}

func (d *DocumentTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	chatID := chatOf(ctx, params)
	var req documents.Request
	switch action {
	case "generate_document":
		content := stringParam(params, "content", "text", "body")
		if err := requireParam(action, "content", content); err != nil {
			return nil, err
		}
		req = documents.Request{
			Title:   stringParam(params, "title"),
			Content: content,
			DocType: stringParam(params, "type", "doc_type"),
		}

	case "compile_conversation_summary":
		transcript, err := d.transcript(ctx, chatID, params)
		if err != nil {
			return nil, err
		}
		summary, err := d.format(ctx, "Summarize this conversation as a short report with sections for topics, decisions and open items.", transcript)
		if err != nil {
			return nil, err
		}
		req = documents.Request{Title: stringParam(params, "title"), Content: summary, DocType: "conversation_summary"}

	case "generate_meeting_summary":
		notes := meetingNotes(params)
		summary, err := d.format(ctx, "Format the following meeting data into a professional meeting summary.", notes)
		if err != nil {
			return nil, err
		}
		req = documents.Request{Title: stringParam(params, "title"), Content: summary, DocType: "meeting_summary"}

	default:
		return nil, unknownAction(d.Name(), action)
	}

	req.ChatID = chatID
	doc, err := d.Generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return map[string]any{
		"status":    "generated",
		"id":        doc.ID,
		"title":     doc.Title,
		"doc_type":  doc.DocType,
		"file_path": doc.FilePath,
	}, nil
}

func (d *DocumentTool) transcript(ctx context.Context, chatID string, params map[string]any) (string, error) {
	if d.History == nil || chatID == "" {
		return "", fmt.Errorf("compile_conversation_summary: no conversation to summarize")
	}
	limit := 50
	if n, ok := intParam(params, "limit"); ok && n > 0 {
		limit = int(n)
	}
	history, err := d.History.GetHistory(ctx, chatID, limit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	var b strings.Builder
	for _, msg := range history {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				fmt.Fprintf(&b, "%s: %s\n", msg.Role, text.Text)
			}
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("compile_conversation_summary: conversation is empty")
	}
	return b.String(), nil
}

func (d *DocumentTool) format(ctx context.Context, instruction, material string) (string, error) {
	if d.Model == nil {
		return material, nil
	}
	resp, err := d.Model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "You are a professional document formatter. Use plain text with '# ' headings and '- ' bullets."),
		llms.TextParts(llms.ChatMessageTypeHuman, instruction+"\n\n"+material),
	}, llms.WithTemperature(0.3))
	if err != nil {
		return "", fmt.Errorf("format document: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return material, nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func meetingNotes(params map[string]any) string {
	var b strings.Builder
	title := stringParam(params, "title")
	if title == "" {
		title = "Untitled Meeting"
	}
	fmt.Fprintf(&b, "Meeting Title: %s\n", title)
	fmt.Fprintf(&b, "Date: %s\n", orDefault(stringParam(params, "date"), "Unknown"))
	if p := listParam(params, "participants"); len(p) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(p, ", "))
	}
	if s := stringParam(params, "summary", "notes"); s != "" {
		fmt.Fprintf(&b, "\nSummary: %s\n", s)
	}
	for _, section := range []struct{ key, label string }{
		{"key_points", "Key Points"},
		{"action_items", "Action Items"},
		{"decisions", "Decisions"},
	} {
		items := listParam(params, section.key)
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n# %s\n", section.label)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return b.String()
}

func listParam(params map[string]any, key string) []string {
	var out []string
	switch v := params[key].(type) {
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, item := range strings.Split(v, ",") {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
