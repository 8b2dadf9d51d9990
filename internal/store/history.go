package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

const (
	RoleHuman  = "human"
	RoleAI     = "ai"
	RoleSystem = "system"
)

func (s *Store) AddMessage(ctx context.Context, chatID, role, content string) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("%w: message without chat id", ErrInvalidRecord)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at_unix) VALUES (?, ?, ?, ?)`,
		chatID, role, content, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// GetHistory returns the last limit messages of a chat in chronological order.
func (s *Store) GetHistory(ctx context.Context, chatID string, limit int) ([]llms.MessageContent, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`,
		chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case RoleAI:
			msgRole = llms.ChatMessageTypeAI
		case RoleSystem:
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.MessageContent{
			Role:  msgRole,
			Parts: []llms.ContentPart{llms.TextPart(content)},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

func (s *Store) ClearHistory(ctx context.Context, chatID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	return err
}
