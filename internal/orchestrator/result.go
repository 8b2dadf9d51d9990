package orchestrator

import (
	"encoding/json"
	"time"
)

// StepReport is the serialized outcome of one step.
type StepReport struct {
	Action      string         `json:"action"`
	Status      Status         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Duration    float64        `json:"duration"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ExecutionResult aggregates the final state of every step in a run.
type ExecutionResult struct {
	PlanID       string
	SessionID    string
	TotalActions int
	Completed    int
	Failed       int
	Skipped      int
	SuccessRate  float64
	// TotalDuration sums per-step durations; it is not the critical path.
	TotalDuration time.Duration
	// Steps holds final step state in plan order.
	Steps []*ActionStep
}

// Aggregate computes counts and rates over terminal steps.
func Aggregate(planID, sessionID string, steps []*ActionStep) *ExecutionResult {
	res := &ExecutionResult{
		PlanID:       planID,
		SessionID:    sessionID,
		TotalActions: len(steps),
		Steps:        steps,
	}
	for _, step := range steps {
		switch step.Status {
		case StatusCompleted:
			res.Completed++
		case StatusFailed:
			res.Failed++
		case StatusSkipped:
			res.Skipped++
		}
		res.TotalDuration += step.Duration()
	}
	if res.TotalActions > 0 {
		res.SuccessRate = float64(res.Completed) / float64(res.TotalActions)
	}
	return res
}

func (r *ExecutionResult) Step(id string) (*ActionStep, bool) {
	for _, step := range r.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return nil, false
}

// Reports returns the per-step detail map keyed by step id.
func (r *ExecutionResult) Reports() map[string]StepReport {
	out := make(map[string]StepReport, len(r.Steps))
	for _, step := range r.Steps {
		report := StepReport{
			Action:   step.Action,
			Status:   step.Status,
			Result:   step.Result,
			Error:    step.Error,
			Duration: step.Duration().Seconds(),
		}
		if !step.StartedAt.IsZero() {
			started := step.StartedAt
			report.StartedAt = &started
		}
		if !step.CompletedAt.IsZero() {
			completed := step.CompletedAt
			report.CompletedAt = &completed
		}
		out[step.ID] = report
	}
	return out
}

func (r *ExecutionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PlanID        string                `json:"plan_id,omitempty"`
		SessionID     string                `json:"session_id,omitempty"`
		TotalActions  int                   `json:"total_actions"`
		Completed     int                   `json:"completed"`
		Failed        int                   `json:"failed"`
		Skipped       int                   `json:"skipped"`
		SuccessRate   float64               `json:"success_rate"`
		TotalDuration float64               `json:"total_duration"`
		Results       map[string]StepReport `json:"results"`
	}{
		PlanID:        r.PlanID,
		SessionID:     r.SessionID,
		TotalActions:  r.TotalActions,
		Completed:     r.Completed,
		Failed:        r.Failed,
		Skipped:       r.Skipped,
		SuccessRate:   r.SuccessRate,
		TotalDuration: r.TotalDuration.Seconds(),
		Results:       r.Reports(),
	})
}
