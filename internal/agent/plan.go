package agent

import (
	"fmt"
	"strings"

	"github.com/rahul/conduit/internal/orchestrator"
	"github.com/rahul/conduit/internal/resolver"
)

// BuildSteps turns the classifier's action sequence into executor steps and
// collects every mention that has to be resolved first. Mentions come from
// both entities_mentioned and each action's requires_resolution, so an
// action never depends on an entity nobody asked the resolver about.
func BuildSteps(a *Analysis) ([]*orchestrator.ActionStep, map[resolver.Kind][]string) {
	mentions := resolver.Mentions(a.EntitiesMentioned)
	steps := make([]*orchestrator.ActionStep, 0, len(a.ActionSequence))

	for i, pa := range a.ActionSequence {
		id := strings.TrimSpace(pa.ID)
		if id == "" {
			id = fmt.Sprintf("action_%d", i+1)
		}

		var deps []string
		for _, raw := range pa.RequiresResolution {
			ref, ok := parseReference(raw)
			if !ok {
				continue
			}
			mentions[ref.Kind] = append(mentions[ref.Kind], ref.Mention)
			deps = append(deps, ref.Key())
		}
		deps = append(deps, pa.DependsOn...)

		steps = append(steps, orchestrator.NewStep(pa.Action, copyParams(pa.Params),
			orchestrator.WithID(id),
			orchestrator.WithDependsOn(deps...),
		))
	}
	return steps, mentions
}

func parseReference(raw string) (resolver.Reference, bool) {
	kindName, mention, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return resolver.Reference{}, false
	}
	kind, ok := resolver.ParseKind(kindName)
	mention = strings.TrimSpace(mention)
	if !ok || mention == "" {
		return resolver.Reference{}, false
	}
	return resolver.Reference{Kind: kind, Mention: mention}, true
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
