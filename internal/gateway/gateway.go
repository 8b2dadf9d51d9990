package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/rahul/conduit/internal/agent"
)

var ErrUnknownChat = errors.New("no gateway for chat")

// Gateway connects one chat platform. Chat ids handed to Send are native to
// the platform; the Router adds and strips the "prefix:" part.
type Gateway interface {
	Prefix() string
	// Start listens for messages until ctx is cancelled.
	Start(ctx context.Context) error
	Send(ctx context.Context, chatID string, text string) error
	Stop() error
}

// Router fans outbound messages to the gateway owning a chat id and runs all
// gateways together. It implements tools.Messenger.
type Router struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRouter(gateways ...Gateway) *Router {
	r := &Router{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		r.Add(g)
	}
	return r
}

func (r *Router) Add(g Gateway) {
	if g == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Prefix()] = g
}

// Prefixes lists the registered gateway prefixes.
func (r *Router) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Router) Send(ctx context.Context, chatID, text string) error {
	prefix, native, ok := strings.Cut(chatID, ":")
	if !ok || native == "" {
		return fmt.Errorf("%w: %q", ErrUnknownChat, chatID)
	}
	r.mu.RLock()
	g, ok := r.gateways[prefix]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChat, chatID)
	}
	return g.Send(ctx, native, text)
}

// Run starts every gateway and blocks until ctx is cancelled or one of them
// fails, then stops them all.
func (r *Router) Run(ctx context.Context) error {
	r.mu.RLock()
	gateways := make([]Gateway, 0, len(r.gateways))
	for _, g := range r.gateways {
		gateways = append(gateways, g)
	}
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, gw := range gateways {
		g.Go(func() error {
			if err := gw.Start(gctx); err != nil {
				return fmt.Errorf("%s gateway: %w", gw.Prefix(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	for _, gw := range gateways {
		if stopErr := gw.Stop(); stopErr != nil {
			log.Printf("stopping %s gateway: %v", gw.Prefix(), stopErr)
		}
	}
	return err
}

// ChatID joins a gateway prefix and a native chat id.
func ChatID(prefix, native string) string {
	return prefix + ":" + native
}

const troubleReply = "I'm having trouble thinking right now..."

// respond asks the brain about one inbound message and posts the answer.
func respond(ctx context.Context, brain agent.Brain, send func(context.Context, string) error, chatID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	response, err := brain.Think(ctx, chatID, text)
	if err != nil {
		log.Printf("Error handling message from %s: %v", chatID, err)
		response = troubleReply
	}
	if strings.TrimSpace(response) == "" {
		return
	}
	if err := send(ctx, response); err != nil {
		log.Printf("Error replying to %s: %v", chatID, err)
	}
}

// chunk splits text into pieces of at most limit bytes, preferring line
// breaks and never cutting a UTF-8 sequence.
func chunk(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
