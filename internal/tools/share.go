package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rahul/conduit/internal/store"
)

type DocumentLookup interface {
	DocumentByID(ctx context.Context, id string) (*store.Document, error)
}

// ShareTool posts a link to a stored document in a chat.
type ShareTool struct {
	Documents DocumentLookup
	Messenger Messenger
	// BaseURL, when set, prefixes the file name to build a public link.
	BaseURL string
}

func NewShareTool(docs DocumentLookup, m Messenger, baseURL string) *ShareTool {
	return &ShareTool{Documents: docs, Messenger: m, BaseURL: baseURL}
}

func (s *ShareTool) Name() string {
	return "share"
}

func (s *ShareTool) Actions() map[string]string {
	return map[string]string{
		"share_document": "Share a document in a chat. Params: document (resolved document or generated result) or document_id, message (optional), chat_id (optional).",
	}
}

func (s *ShareTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	if recordField(params, "document", "type") == "pending_meeting_summary" {
		return nil, fmt.Errorf("share_document: the meeting summary has not been generated yet")
	}
	id := stringParam(params, "document_id")
	if id == "" {
		id = recordField(params, "document", "id")
	}
	if id == "" {
		id = stringParam(params, "document")
	}
	if err := requireParam(action, "document_id", id); err != nil {
		return nil, err
	}

	doc, err := s.Documents.DocumentByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	chatID := chatOf(ctx, params)
	if err := requireParam(action, "chat_id", chatID); err != nil {
		return nil, err
	}

	link := doc.FilePath
	if s.BaseURL != "" && doc.FilePath != "" {
		link = s.BaseURL + "/" + filepath.Base(doc.FilePath)
	}
	text := stringParam(params, "message")
	if text == "" {
		text = "Document: " + doc.Title
	}
	if link != "" {
		text += "\n" + link
	}
	if err := s.Messenger.Send(ctx, chatID, text); err != nil {
		return nil, fmt.Errorf("share document: %w", err)
	}
	return map[string]any{
		"status":      "shared",
		"document_id": doc.ID,
		"link":        link,
		"chat_id":     chatID,
	}, nil
}
