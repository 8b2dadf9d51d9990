package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/rahul/conduit/internal/agent"
)

const (
	DiscordPrefix   = "dc"
	discordMaxChars = 2000
)

// DiscordGateway answers messages in the channels the bot can read. Chat ids
// are channel ids.
type DiscordGateway struct {
	Session *discordgo.Session
	Brain   agent.Brain

	mu  sync.Mutex
	ctx context.Context
}

func NewDiscordGateway(token string, brain agent.Brain) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &DiscordGateway{Session: session, Brain: brain, ctx: context.Background()}, nil
}

func (d *DiscordGateway) Prefix() string {
	return DiscordPrefix
}

func (d *DiscordGateway) Start(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	remove := d.Session.AddHandler(d.onMessage)
	defer remove()

	if err := d.Session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	if d.Session.State != nil && d.Session.State.User != nil {
		log.Printf("Authorized on discord as %s", d.Session.State.User.Username)
	}

	<-ctx.Done()
	return nil
}

func (d *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()

	log.Printf("[discord %s] %s", m.ChannelID, m.Content)

	channelID := m.ChannelID
	respond(ctx, d.Brain, func(ctx context.Context, text string) error {
		return d.Send(ctx, channelID, text)
	}, ChatID(DiscordPrefix, channelID), m.Content)
}

func (d *DiscordGateway) Send(ctx context.Context, chatID string, text string) error {
	if chatID == "" {
		return fmt.Errorf("invalid discord channel id")
	}
	for _, part := range chunk(text, discordMaxChars) {
		if _, err := d.Session.ChannelMessageSend(chatID, part, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

func (d *DiscordGateway) Stop() error {
	return d.Session.Close()
}
