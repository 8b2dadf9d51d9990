package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func okHandler(result map[string]any) Handler {
	return func(context.Context, map[string]any) (map[string]any, error) {
		return result, nil
	}
}

func failHandler(msg string) Handler {
	return func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New(msg)
	}
}

func countingHandler(calls *atomic.Int32, h Handler) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		calls.Add(1)
		return h(ctx, params)
	}
}

func assertTotals(t *testing.T, res *ExecutionResult) {
	t.Helper()
	assert.Equal(t, res.TotalActions, res.Completed+res.Failed+res.Skipped)
}

func TestExecuteIndependentStepsEachReachOneTerminalState(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry := NewRegistry(nil)
	registry.Register("ok", okHandler(map[string]any{"status": "done"}))
	registry.Register("boom", failHandler("collaborator unavailable"))

	var steps []*ActionStep
	for i := 0; i < 12; i++ {
		action := "ok"
		if i%4 == 0 {
			action = "boom"
		}
		steps = append(steps, NewStep(action, nil, WithID(fmt.Sprintf("s%d", i))))
	}

	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil)
	require.NoError(t, err)

	require.Len(t, res.Steps, 12)
	seen := map[string]bool{}
	for _, step := range res.Steps {
		assert.False(t, seen[step.ID], "duplicate entry %s", step.ID)
		seen[step.ID] = true
		assert.True(t, step.Status.Terminal(), "step %s ended %s", step.ID, step.Status)
	}
	assert.Equal(t, 9, res.Completed)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	assert.InDelta(t, 0.75, res.SuccessRate, 1e-9)
	assertTotals(t, res)
}

func TestExecuteDoesNotMutateCallerSteps(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("ok", okHandler(map[string]any{"n": 1}))
	step := NewStep("ok", map[string]any{"x": "y"}, WithID("a"))

	_, err := ExecutePlan(context.Background(), registry, "chat-1", []*ActionStep{step}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, step.Status)
	assert.Nil(t, step.Result)
}

// Scenario A: a contact lookup feeds the mail step through its result.
func TestExecuteDependentReceivesSubstitutedAddress(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("resolve_contact", okHandler(map[string]any{
		"name":  "Marc",
		"email": "marc@x.com",
	}))

	var got map[string]any
	registry.Register("send_mail", func(_ context.Context, params map[string]any) (map[string]any, error) {
		got = params
		if params["to"] != "marc@x.com" {
			return nil, fmt.Errorf("unexpected recipient %v", params["to"])
		}
		return map[string]any{"status": "sent"}, nil
	})

	steps := []*ActionStep{
		NewStep("resolve_contact", map[string]any{"name": "Marc"}, WithID("contact")),
		NewStep("send_mail", map[string]any{
			"to":      "{{result:contact.email}}",
			"subject": "Summary",
		}, WithID("mail"), WithDependsOn("contact")),
	}

	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1.0, res.SuccessRate)
	assert.Equal(t, "Summary", got["subject"])

	mail, ok := res.Step("mail")
	require.True(t, ok)
	contact, _ := res.Step("contact")
	assert.False(t, mail.StartedAt.Before(contact.CompletedAt), "dependent started before its dependency finished")
}

func TestExecuteSubstitutesResolvedEntities(t *testing.T) {
	registry := NewRegistry(nil)
	var got map[string]any
	registry.Register("send_email", func(_ context.Context, params map[string]any) (map[string]any, error) {
		got = params
		return map[string]any{"status": "sent"}, nil
	})

	resolutions := Resolutions{}
	resolutions.Add("contact", "Marc", map[string]any{"email": "marc@x.com"})

	steps := []*ActionStep{
		NewStep("send_email", map[string]any{"to": "{{resolved:contact:Marc}}"},
			WithID("mail"), WithDependsOn("contact:Marc")),
	}
	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, resolutions)
	require.NoError(t, err)
	require.Equal(t, 1, res.Completed)
	assert.Equal(t, map[string]any{"email": "marc@x.com"}, got["to"])
}

// Scenario B: the dependency fails, the dependent never runs.
func TestExecuteSkipsDependentOfFailedStep(t *testing.T) {
	defer goleak.VerifyNone(t)

	var dependentCalls atomic.Int32
	registry := NewRegistry(nil)
	registry.Register("resolve_contact", failHandler("contact store offline"))
	registry.Register("send_mail", countingHandler(&dependentCalls, okHandler(nil)))

	steps := []*ActionStep{
		NewStep("resolve_contact", nil, WithID("A")),
		NewStep("send_mail", nil, WithID("B"), WithDependsOn("A")),
	}
	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil)
	require.NoError(t, err)

	a, _ := res.Step("A")
	b, _ := res.Step("B")
	assert.Equal(t, StatusFailed, a.Status)
	assert.Contains(t, a.Error, "contact store offline")
	assert.Equal(t, StatusSkipped, b.Status)
	assert.Contains(t, b.Error, "dependency failed")
	assert.EqualValues(t, 0, dependentCalls.Load())
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assertTotals(t, res)
}

func TestExecuteSkipPropagatesTransitively(t *testing.T) {
	var calls atomic.Int32
	registry := NewRegistry(nil)
	registry.Register("boom", failHandler("nope"))
	registry.Register("ok", countingHandler(&calls, okHandler(nil)))

	steps := []*ActionStep{
		NewStep("boom", nil, WithID("a")),
		NewStep("ok", nil, WithID("b"), WithDependsOn("a")),
		NewStep("ok", nil, WithID("c"), WithDependsOn("b")),
		NewStep("ok", nil, WithID("independent")),
	}
	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil)
	require.NoError(t, err)

	c, _ := res.Step("c")
	assert.Equal(t, StatusSkipped, c.Status)
	assert.Contains(t, c.Error, "dependency failed")
	independent, _ := res.Step("independent")
	assert.Equal(t, StatusCompleted, independent.Status)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSkippedStepReportsNoStartTime(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("boom", failHandler("nope"))
	registry.Register("ok", okHandler(nil))

	res, err := ExecutePlan(context.Background(), registry, "chat-1", []*ActionStep{
		NewStep("boom", nil, WithID("a")),
		NewStep("ok", nil, WithID("b"), WithDependsOn("a")),
	}, nil)
	require.NoError(t, err)

	b, _ := res.Step("b")
	require.Equal(t, StatusSkipped, b.Status)
	assert.True(t, b.StartedAt.IsZero())
	assert.False(t, b.CompletedAt.IsZero())
	assert.Zero(t, b.Duration())

	report := res.Reports()["b"]
	assert.Nil(t, report.StartedAt)
	assert.NotNil(t, report.CompletedAt)
}

// Scenario C: an unknown action fails its own step only.
func TestExecuteUnknownActionFailsWithoutBlockingSiblings(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("create_task", okHandler(map[string]any{"status": "created"}))
	registry.Register("send_message", okHandler(map[string]any{"status": "replied"}))

	steps := []*ActionStep{
		NewStep("teleport", nil, WithID("bad")),
		NewStep("create_task", nil, WithID("task")),
		NewStep("send_message", nil, WithID("msg")),
	}
	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil)
	require.NoError(t, err)

	bad, _ := res.Step("bad")
	assert.Equal(t, StatusFailed, bad.Status)
	assert.Contains(t, bad.Error, "no handler")
	assert.Contains(t, bad.Error, "teleport")
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, 1, res.Failed)
}

func TestExecuteRespectsConcurrencyBound(t *testing.T) {
	defer goleak.VerifyNone(t)

	var current, peak atomic.Int32
	release := make(chan struct{})
	registry := NewRegistry(nil)
	registry.Register("block", func(context.Context, map[string]any) (map[string]any, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return map[string]any{"ok": true}, nil
	})

	var steps []*ActionStep
	for i := 0; i < 5; i++ {
		steps = append(steps, NewStep("block", nil, WithID(fmt.Sprintf("b%d", i))))
	}

	done := make(chan *ExecutionResult, 1)
	go func() {
		res, _ := ExecutePlan(context.Background(), registry, "chat-1", steps, nil, WithMaxConcurrent(2))
		done <- res
	}()

	require.Eventually(t, func() bool { return current.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, current.Load())
	close(release)

	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, 5, res.Completed)
	assert.EqualValues(t, 2, peak.Load())
}

func TestExecuteSkipsStepWithUnresolvedPlaceholder(t *testing.T) {
	var calls atomic.Int32
	registry := NewRegistry(nil)
	registry.Register("send_email", countingHandler(&calls, okHandler(nil)))

	steps := []*ActionStep{
		NewStep("send_email", map[string]any{"to": "{{resolved:contact:Nobody}}"}, WithID("mail")),
	}
	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil)
	require.NoError(t, err)

	mail, _ := res.Step("mail")
	assert.Equal(t, StatusSkipped, mail.Status)
	assert.Contains(t, mail.Error, "unresolved dependency")
	assert.EqualValues(t, 0, calls.Load())
}

func TestExecuteRejectsInvalidPlanBeforeRunning(t *testing.T) {
	cases := map[string][]*ActionStep{
		"unknown reference": {
			NewStep("ok", nil, WithID("a"), WithDependsOn("contact:Ghost")),
		},
		"cycle": {
			NewStep("ok", nil, WithID("a"), WithDependsOn("b")),
			NewStep("ok", nil, WithID("b"), WithDependsOn("a")),
		},
		"self dependency": {
			NewStep("ok", nil, WithID("a"), WithDependsOn("a")),
		},
		"duplicate id": {
			NewStep("ok", nil, WithID("a")),
			NewStep("ok", nil, WithID("a")),
		},
	}

	for name, steps := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			registry := NewRegistry(nil)
			registry.Register("ok", countingHandler(&calls, okHandler(nil)))

			res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil)
			require.ErrorIs(t, err, ErrInvalidPlan)
			assert.Nil(t, res)
			assert.EqualValues(t, 0, calls.Load())
		})
	}
}

func TestExecuteTimesOutHungHandler(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	registry := NewRegistry(nil)
	registry.Register("hang", func(context.Context, map[string]any) (map[string]any, error) {
		<-release
		return nil, nil
	})
	registry.Register("ok", okHandler(nil))

	steps := []*ActionStep{
		NewStep("hang", nil, WithID("hung")),
		NewStep("ok", nil, WithID("after"), WithDependsOn("hung")),
		NewStep("ok", nil, WithID("other")),
	}
	res, err := ExecutePlan(context.Background(), registry, "chat-1", steps, nil,
		WithMaxConcurrent(1), WithStepTimeout(30*time.Millisecond))
	require.NoError(t, err)

	hung, _ := res.Step("hung")
	assert.Equal(t, StatusFailed, hung.Status)
	assert.Contains(t, hung.Error, "step timed out")
	other, _ := res.Step("other")
	assert.Equal(t, StatusCompleted, other.Status)
	after, _ := res.Step("after")
	assert.Equal(t, StatusSkipped, after.Status)
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("explode", func(context.Context, map[string]any) (map[string]any, error) {
		panic("kaboom")
	})

	res, err := ExecutePlan(context.Background(), registry, "chat-1",
		[]*ActionStep{NewStep("explode", nil, WithID("x"))}, nil)
	require.NoError(t, err)
	x, _ := res.Step("x")
	assert.Equal(t, StatusFailed, x.Status)
	assert.Contains(t, x.Error, "kaboom")
}

func TestExecuteCancelledRunSkipsPendingSteps(t *testing.T) {
	var calls atomic.Int32
	registry := NewRegistry(nil)
	registry.Register("ok", countingHandler(&calls, okHandler(nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps := []*ActionStep{
		NewStep("ok", nil, WithID("a")),
		NewStep("ok", nil, WithID("b"), WithDependsOn("a")),
	}
	res, err := ExecutePlan(ctx, registry, "chat-1", steps, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.EqualValues(t, 0, calls.Load())
	a, _ := res.Step("a")
	assert.Contains(t, a.Error, "run cancelled")
}

func TestExecuteEmptyPlan(t *testing.T) {
	res, err := ExecutePlan(context.Background(), NewRegistry(nil), "chat-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalActions)
	assert.Equal(t, 0.0, res.SuccessRate)
}

func TestExecutionResultJSON(t *testing.T) {
	registry := NewRegistry(nil)
	registry.Register("ok", okHandler(map[string]any{"status": "done"}))
	registry.Register("boom", failHandler("bad gateway"))

	res, err := ExecutePlan(context.Background(), registry, "chat-9", []*ActionStep{
		NewStep("ok", nil, WithID("a")),
		NewStep("boom", nil, WithID("b")),
	}, nil)
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded struct {
		SessionID    string  `json:"session_id"`
		TotalActions int     `json:"total_actions"`
		Completed    int     `json:"completed"`
		Failed       int     `json:"failed"`
		SuccessRate  float64 `json:"success_rate"`
		Results      map[string]struct {
			Action string         `json:"action"`
			Status string         `json:"status"`
			Result map[string]any `json:"result"`
			Error  string         `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "chat-9", decoded.SessionID)
	assert.Equal(t, 2, decoded.TotalActions)
	assert.Equal(t, 0.5, decoded.SuccessRate)
	assert.Equal(t, "completed", decoded.Results["a"].Status)
	assert.Equal(t, "done", decoded.Results["a"].Result["status"])
	assert.Equal(t, "bad gateway", decoded.Results["b"].Error)
	assert.Contains(t, string(data), `"total_duration"`)
}

func TestExecutePassesSessionToHandlers(t *testing.T) {
	registry := NewRegistry(nil)
	var session string
	registry.Register("whoami", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		session = SessionFrom(ctx)
		return nil, nil
	})
	_, err := ExecutePlan(context.Background(), registry, "tg:42", []*ActionStep{NewStep("whoami", nil)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tg:42", session)
}
