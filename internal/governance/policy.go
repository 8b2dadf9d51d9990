package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rahul/conduit/internal/observability"
	"github.com/rahul/conduit/internal/orchestrator"
)

var ErrDenied = errors.New("denied by policy")

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of an action call to be evaluated.
type Request struct {
	Action    string
	Arguments string
	ChatID    string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates action calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by action name or by a pattern over the
// JSON-encoded arguments; everything else is allowed.
type DefaultPolicyEngine struct {
	mu            sync.RWMutex
	DeniedActions map[string]bool
	DeniedRegex   []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedActions: make(map[string]bool),
		DeniedRegex:   make([]*regexp.Regexp, 0),
	}
}

func (e *DefaultPolicyEngine) DenyAction(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedActions[strings.ToLower(strings.TrimSpace(name))] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("deny pattern %q: %w", pattern, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.DeniedActions[strings.ToLower(req.Action)] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("action '%s' is restricted by system policy", req.Action),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "approved by default policy",
	}, nil
}

// Guard adapts a PolicyEngine to the action registry.
type Guard struct {
	Engine PolicyEngine
	Logger *observability.Logger
}

func NewGuard(engine PolicyEngine, logger *observability.Logger) *Guard {
	return &Guard{Engine: engine, Logger: logger}
}

func (g *Guard) Allow(ctx context.Context, action string, params map[string]any) error {
	args, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode arguments for policy: %w", err)
	}
	chatID := orchestrator.SessionFrom(ctx)

	res, err := g.Engine.Evaluate(ctx, Request{Action: action, Arguments: string(args), ChatID: chatID})
	if err != nil {
		return fmt.Errorf("policy evaluation: %w", err)
	}
	g.Logger.LogPolicy(chatID, action, string(res.Effect), res.Reason)
	if res.Effect == EffectDeny {
		return fmt.Errorf("%w: %s", ErrDenied, res.Reason)
	}
	return nil
}
