package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStepDefaults(t *testing.T) {
	step := NewStep(" Send_Email ", map[string]any{"to": "a@b.c"})
	assert.True(t, strings.HasPrefix(step.ID, "send_email_"), step.ID)
	assert.Equal(t, StatusPending, step.Status)
	assert.Empty(t, step.DependsOn)

	other := NewStep("send_email", nil)
	assert.NotEqual(t, step.ID, other.ID)
}

func TestStepTransitions(t *testing.T) {
	step := NewStep("x", nil)
	require.NoError(t, step.transition(StatusRunning))
	require.ErrorIs(t, step.transition(StatusSkipped), ErrInvalidTransition)
	require.NoError(t, step.transition(StatusCompleted))
	require.ErrorIs(t, step.transition(StatusFailed), ErrInvalidTransition)
	assert.True(t, step.Status.Terminal())

	pending := NewStep("x", nil)
	require.ErrorIs(t, pending.transition(StatusCompleted), ErrInvalidTransition)
	require.NoError(t, pending.transition(StatusSkipped))
}

func TestPlanValidateAcceptsEntityDependencies(t *testing.T) {
	resolutions := Resolutions{}
	resolutions.Add("document", "Q3 report", map[string]any{"id": 4})

	plan := NewPlan("chat-1", []*ActionStep{
		NewStep("share_document", nil, WithID("share"), WithDependsOn("document:Q3 report")),
		NewStep("send_message", nil, WithID("notify"), WithDependsOn("share")),
	}, resolutions)
	require.NoError(t, plan.Validate())
	assert.NotEmpty(t, plan.ID)
}

func TestPlanValidateRejectsLongCycle(t *testing.T) {
	plan := NewPlan("chat-1", []*ActionStep{
		NewStep("a", nil, WithID("a"), WithDependsOn("c")),
		NewStep("b", nil, WithID("b"), WithDependsOn("a")),
		NewStep("c", nil, WithID("c"), WithDependsOn("b")),
		NewStep("d", nil, WithID("d")),
	}, nil)
	err := plan.Validate()
	require.ErrorIs(t, err, ErrInvalidPlan)
	assert.Contains(t, err.Error(), "cycle")
}

func TestPlanValidateRejectsMalformedSteps(t *testing.T) {
	require.ErrorIs(t, NewPlan("c", []*ActionStep{nil}, nil).Validate(), ErrInvalidPlan)
	require.ErrorIs(t, NewPlan("c", []*ActionStep{{ID: "  ", Action: "x"}}, nil).Validate(), ErrInvalidPlan)
}

func TestResolutionsKeys(t *testing.T) {
	r := Resolutions{}
	r.Add("task", "budget", nil)
	r.Add("contact", "Marc", nil)
	assert.Equal(t, []string{"contact:Marc", "task:budget"}, r.Keys())
	assert.Equal(t, "contact:Marc", r["contact:Marc"].Key())
}
