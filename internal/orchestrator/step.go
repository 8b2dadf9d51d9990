package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one action step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusSkipped},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// ActionStep is one schedulable unit of a plan.
type ActionStep struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	Params      map[string]any `json:"params,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	Status      Status         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

type StepOption func(*ActionStep)

func WithID(id string) StepOption {
	return func(s *ActionStep) {
		s.ID = strings.TrimSpace(id)
	}
}

// WithDependsOn declares step ids or entity keys ("contact:Marc") that must
// be satisfied before the step may run.
func WithDependsOn(deps ...string) StepOption {
	return func(s *ActionStep) {
		for _, dep := range deps {
			dep = strings.TrimSpace(dep)
			if dep != "" {
				s.DependsOn = append(s.DependsOn, dep)
			}
		}
	}
}

// NewStep builds a pending step. Without WithID the id is derived from the
// action name plus a random suffix.
func NewStep(action string, params map[string]any, opts ...StepOption) *ActionStep {
	step := &ActionStep{
		Action: action,
		Params: params,
		Status: StatusPending,
	}
	for _, opt := range opts {
		opt(step)
	}
	if step.ID == "" {
		prefix := normalizeAction(action)
		if prefix == "" {
			prefix = "step"
		}
		step.ID = fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
	}
	return step
}

// Duration is the wall-clock time between start and completion, zero for
// steps that never ran.
func (s *ActionStep) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

func (s *ActionStep) transition(to Status) error {
	for _, allowed := range allowedTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s for step %s", ErrInvalidTransition, s.Status, to, s.ID)
}

func (s *ActionStep) clone() *ActionStep {
	out := *s
	if s.Params != nil {
		out.Params = make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			out.Params[k] = v
		}
	}
	if s.Result != nil {
		out.Result = make(map[string]any, len(s.Result))
		for k, v := range s.Result {
			out.Result[k] = v
		}
	}
	out.DependsOn = append([]string(nil), s.DependsOn...)
	return &out
}
