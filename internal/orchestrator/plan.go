package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ResolvedEntity is a free-text mention bound to a concrete record.
type ResolvedEntity struct {
	Kind    string `json:"kind"`
	Mention string `json:"mention"`
	Record  any    `json:"record"`
}

// Key returns the resolution-map key, "kind:mention".
func (e ResolvedEntity) Key() string {
	return EntityKey(e.Kind, e.Mention)
}

func EntityKey(kind, mention string) string {
	return kind + ":" + mention
}

// Resolutions maps "kind:mention" to the resolved entity.
type Resolutions map[string]ResolvedEntity

func (r Resolutions) Add(kind, mention string, record any) {
	entity := ResolvedEntity{Kind: kind, Mention: mention, Record: record}
	r[entity.Key()] = entity
}

func (r Resolutions) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plan is the dependency graph for one orchestration run. It is scoped to a
// single chat session and discarded after execution.
type Plan struct {
	ID          string
	SessionID   string
	Steps       []*ActionStep
	Resolutions Resolutions
}

func NewPlan(sessionID string, steps []*ActionStep, resolutions Resolutions) *Plan {
	if resolutions == nil {
		resolutions = Resolutions{}
	}
	return &Plan{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Steps:       steps,
		Resolutions: resolutions,
	}
}

// Validate rejects plans that could never reach a terminal state for every
// step: duplicate or empty ids, dependencies that are neither a step in the
// plan nor a resolved entity, and dependency cycles.
func (p *Plan) Validate() error {
	ids := make(map[string]*ActionStep, len(p.Steps))
	for i, step := range p.Steps {
		if step == nil {
			return fmt.Errorf("%w: step %d is nil", ErrInvalidPlan, i)
		}
		id := strings.TrimSpace(step.ID)
		if id == "" {
			return fmt.Errorf("%w: step %d has no id", ErrInvalidPlan, i)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidPlan, id)
		}
		ids[id] = step
	}

	edges := make(map[string][]string, len(ids))
	for _, step := range p.Steps {
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				return fmt.Errorf("%w: step %q depends on itself", ErrInvalidPlan, step.ID)
			}
			if _, ok := ids[dep]; ok {
				edges[step.ID] = append(edges[step.ID], dep)
				continue
			}
			if _, ok := p.Resolutions[dep]; ok {
				continue
			}
			return fmt.Errorf("%w: step %q depends on unknown reference %q", ErrInvalidPlan, step.ID, dep)
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(ids))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w: dependency cycle through %q", ErrInvalidPlan, id)
		case visited:
			return nil
		}
		state[id] = visiting
		for _, dep := range edges[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = visited
		return nil
	}
	for _, step := range p.Steps {
		if err := visit(step.ID); err != nil {
			return err
		}
	}
	return nil
}
