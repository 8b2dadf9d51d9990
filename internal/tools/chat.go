package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ChatTool posts text into a chat.
type ChatTool struct {
	Messenger Messenger
}

func NewChatTool(m Messenger) *ChatTool {
	return &ChatTool{Messenger: m}
}

func (c *ChatTool) Name() string {
	return "chat"
}

func (c *ChatTool) Actions() map[string]string {
	return map[string]string{
		"send_message": "Post a message in a chat. Params: text, chat_id (optional, defaults to the current chat).",
		"reply":        "Reply in the current chat. Params: text.",
		"send_reply":   "Same as reply. Params: text.",
	}
}

func (c *ChatTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	text := stringParam(params, "text", "message", "content", "body")
	if err := requireParam(action, "text", text); err != nil {
		return nil, err
	}
	chatID := chatOf(ctx, params)
	if err := requireParam(action, "chat_id", chatID); err != nil {
		return nil, err
	}
	if err := c.Messenger.Send(ctx, chatID, text); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return map[string]any{"status": "sent", "chat_id": chatID, "text": text}, nil
}

type HistoryReader interface {
	GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error)
}

const replySystemPrompt = `You are a helpful business assistant replying inside a team chat.
Write a concise, friendly reply. Match the requested tone. Do not invent facts.
Reply with the message text only.`

// ReplyTool drafts a reply with the language model and posts it.
type ReplyTool struct {
	Model     llms.Model
	History   HistoryReader
	Messenger Messenger
}

func NewReplyTool(model llms.Model, history HistoryReader, m Messenger) *ReplyTool {
	return &ReplyTool{Model: model, History: history, Messenger: m}
}

func (r *ReplyTool) Name() string {
	return "reply_writer"
}

func (r *ReplyTool) Actions() map[string]string {
	return map[string]string{
		"generate_reply": "Draft a reply with the assistant and post it. Params: instructions, tone (optional), send (optional bool, default true).",
	}
}

func (r *ReplyTool) Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	chatID := chatOf(ctx, params)
	instructions := stringParam(params, "instructions", "context", "text", "prompt")
	if err := requireParam(action, "instructions", instructions); err != nil {
		return nil, err
	}

	system := replySystemPrompt
	if tone := stringParam(params, "tone"); tone != "" {
		system += "\nTone: " + tone
	}
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeSystem, system)}
	if r.History != nil && chatID != "" {
		history, err := r.History.GetHistory(ctx, chatID, 10)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		msgs = append(msgs, history...)
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, instructions))

	resp, err := r.Model.GenerateContent(ctx, msgs, llms.WithTemperature(0.7))
	if err != nil {
		return nil, fmt.Errorf("draft reply: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return nil, fmt.Errorf("draft reply: empty response")
	}
	text := strings.TrimSpace(resp.Choices[0].Content)

	if send, ok := params["send"].(bool); ok && !send {
		return map[string]any{"status": "drafted", "text": text}, nil
	}
	if err := requireParam(action, "chat_id", chatID); err != nil {
		return nil, err
	}
	if err := r.Messenger.Send(ctx, chatID, text); err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}
	return map[string]any{"status": "replied", "chat_id": chatID, "text": text}, nil
}
