package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/conduit/internal/agent"
)

const (
	TelegramPrefix   = "tg"
	telegramMaxChars = 4096
)

type TelegramGateway struct {
	Bot   *tgbotapi.BotAPI
	Brain agent.Brain
}

func NewTelegramGateway(token string, brain agent.Brain) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{Bot: bot, Brain: brain}, nil
}

func (tg *TelegramGateway) Prefix() string {
	return TelegramPrefix
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil || msg.Chat == nil {
				continue
			}
			if msg.From != nil && msg.From.IsBot {
				continue
			}

			log.Printf("[telegram %d] %s", msg.Chat.ID, msg.Text)

			native := strconv.FormatInt(msg.Chat.ID, 10)
			respond(ctx, tg.Brain, func(ctx context.Context, text string) error {
				return tg.Send(ctx, native, text)
			}, ChatID(TelegramPrefix, native), msg.Text)
		}
	}
}

func (tg *TelegramGateway) Send(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid telegram chat id: %s", chatID)
	}

	for _, part := range chunk(text, telegramMaxChars) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
