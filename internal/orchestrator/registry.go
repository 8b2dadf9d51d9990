package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Handler runs one action with already-substituted parameters.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Guard vets an action before its handler runs. A non-nil error fails the
// step with that error.
type Guard interface {
	Allow(ctx context.Context, action string, params map[string]any) error
}

// Registry maps action names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	pool     *Pool
	guard    Guard
}

// NewRegistry creates a registry whose blocking handlers share pool. A nil
// pool runs blocking handlers inline.
func NewRegistry(pool *Pool) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		pool:     pool,
	}
}

func (r *Registry) SetGuard(g Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guard = g
}

// Register adds a handler that is cheap to call directly.
func (r *Registry) Register(name string, h Handler) {
	key := normalizeAction(name)
	if key == "" || h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = h
}

// RegisterBlocking adds a handler wrapping a blocking collaborator call. Each
// invocation is run on the shared worker pool.
func (r *Registry) RegisterBlocking(name string, h Handler) {
	if h == nil {
		return
	}
	pool := r.pool
	if pool == nil {
		r.Register(name, h)
		return
	}
	r.Register(name, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return pool.Do(ctx, h, params)
	})
}

// Lookup always returns a usable handler. Unknown actions get one that fails
// immediately, so a bad action name fails its own step like any other error.
func (r *Registry) Lookup(name string) Handler {
	key := normalizeAction(name)
	r.mu.RLock()
	h, ok := r.handlers[key]
	guard := r.guard
	r.mu.RUnlock()

	if !ok {
		return func(context.Context, map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
		}
	}
	if guard == nil {
		return h
	}
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		if err := guard.Allow(ctx, key, params); err != nil {
			return nil, err
		}
		return h(ctx, params)
	}
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[normalizeAction(name)]
	return ok
}

// Actions lists registered action names in sorted order.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeAction(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
