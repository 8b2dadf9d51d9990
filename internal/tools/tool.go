package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rahul/conduit/internal/orchestrator"
)

// Tool groups the actions backed by one collaborator.
type Tool interface {
	Name() string
	// Actions maps each action name to a one-line description for the
	// planner prompt.
	Actions() map[string]string
	Execute(ctx context.Context, action string, params map[string]any) (map[string]any, error)
}

// Messenger delivers text to a chat. Chat ids are gateway-prefixed
// ("tg:123", "dc:456").
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Install registers every action of every tool on the action registry. Each
// call is a blocking collaborator call and runs on the shared worker pool.
func (r *Registry) Install(actions *orchestrator.Registry) {
	for _, t := range r.Tools {
		for action := range t.Actions() {
			t, action := t, action
			actions.RegisterBlocking(action, func(ctx context.Context, params map[string]any) (map[string]any, error) {
				return t.Execute(ctx, action, params)
			})
		}
	}
}

// Describe lists the available actions, one per line, sorted by name.
func (r *Registry) Describe() string {
	var lines []string
	for _, t := range r.Tools {
		for action, desc := range t.Actions() {
			lines = append(lines, fmt.Sprintf("- %s: %s", action, desc))
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func unknownAction(tool, action string) error {
	return fmt.Errorf("%s: unsupported action %q", tool, action)
}
