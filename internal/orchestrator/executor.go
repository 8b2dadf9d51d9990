package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/conduit/internal/observability"
	"golang.org/x/sync/semaphore"
)

const DefaultMaxConcurrent = 5

type Options struct {
	// MaxConcurrent caps how many steps of one run may be Running at once.
	MaxConcurrent int
	// StepTimeout bounds a single handler call. Zero means no deadline.
	StepTimeout time.Duration
	Logger      *observability.Logger
}

type Option func(*Options)

func WithMaxConcurrent(n int) Option {
	return func(o *Options) { o.MaxConcurrent = n }
}

func WithStepTimeout(d time.Duration) Option {
	return func(o *Options) { o.StepTimeout = d }
}

func WithLogger(l *observability.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Executor runs plans against a registry.
type Executor struct {
	registry *Registry
	opts     Options
}

func NewExecutor(registry *Registry, opts ...Option) *Executor {
	o := Options{MaxConcurrent: DefaultMaxConcurrent}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxConcurrent < 1 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if registry == nil {
		registry = NewRegistry(nil)
	}
	return &Executor{registry: registry, opts: o}
}

// ExecutePlan builds a plan for sessionID and runs it.
func ExecutePlan(ctx context.Context, registry *Registry, sessionID string, steps []*ActionStep, resolutions Resolutions, opts ...Option) (*ExecutionResult, error) {
	return NewExecutor(registry, opts...).Execute(ctx, NewPlan(sessionID, steps, resolutions))
}

// Execute runs every step of plan to a terminal state. The only error returned
// is plan rejection (ErrInvalidPlan), raised before any step starts; step
// failures are recorded on the steps themselves.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*ExecutionResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	ctx = WithSession(ctx, plan.SessionID)
	started := time.Now()
	r := newRun(plan)
	limiter := semaphore.NewWeighted(int64(e.opts.MaxConcurrent))

	var wg sync.WaitGroup
	for _, step := range r.order {
		wg.Add(1)
		go func(step *ActionStep) {
			defer wg.Done()
			e.runStep(ctx, r, limiter, step)
		}(step)
	}
	wg.Wait()

	result := Aggregate(plan.ID, plan.SessionID, r.order)
	e.opts.Logger.LogPlan(plan.SessionID, plan.ID, result.TotalActions, result.Completed, result.Failed, result.Skipped, time.Since(started))
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, r *run, limiter *semaphore.Weighted, step *ActionStep) {
	defer close(r.done[step.ID])

	for _, dep := range step.DependsOn {
		ch, isStep := r.done[dep]
		if !isStep {
			// entity reference; present in the resolution map by validation
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			e.skip(r, step, fmt.Sprintf("%v: %v", ErrRunCancelled, ctx.Err()))
			return
		}
		if status := r.status(dep); status != StatusCompleted {
			e.skip(r, step, fmt.Sprintf("%v: %s (%s)", ErrDependencyFailed, dep, status))
			return
		}
	}

	params, err := Substitute(step.Params, r.env(step))
	if err != nil {
		e.skip(r, step, err.Error())
		return
	}

	if err := limiter.Acquire(ctx, 1); err != nil {
		e.skip(r, step, fmt.Sprintf("%v: %v", ErrRunCancelled, err))
		return
	}
	defer limiter.Release(1)

	r.start(step)
	observability.StepStarted()
	result, err := e.invoke(ctx, step.Action, params)
	observability.StepFinished()
	r.finish(step, result, err)
	e.logStep(r, step)
}

func (e *Executor) invoke(ctx context.Context, action string, params map[string]any) (map[string]any, error) {
	handler := e.registry.Lookup(action)

	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.opts.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, e.opts.StepTimeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", rec)}
			}
		}()
		result, err := handler(stepCtx, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-stepCtx.Done():
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrStepTimeout, e.opts.StepTimeout)
		}
		return nil, stepCtx.Err()
	}
}

func (e *Executor) skip(r *run, step *ActionStep, reason string) {
	r.skip(step, reason)
	e.logStep(r, step)
}

func (e *Executor) logStep(r *run, step *ActionStep) {
	if e.opts.Logger == nil {
		return
	}
	r.mu.Lock()
	snapshot := *step
	r.mu.Unlock()
	e.opts.Logger.LogStep(r.plan.SessionID, r.plan.ID, snapshot.ID, snapshot.Action, string(snapshot.Status), snapshot.Duration(), snapshot.Error)
}

// run is the mutable state of one Execute call. Each step signals completion
// by closing its channel in done; all step fields are guarded by mu.
type run struct {
	plan  *Plan
	mu    sync.Mutex
	order []*ActionStep
	steps map[string]*ActionStep
	done  map[string]chan struct{}
}

func newRun(plan *Plan) *run {
	r := &run{
		plan:  plan,
		order: make([]*ActionStep, 0, len(plan.Steps)),
		steps: make(map[string]*ActionStep, len(plan.Steps)),
		done:  make(map[string]chan struct{}, len(plan.Steps)),
	}
	for _, original := range plan.Steps {
		step := original.clone()
		step.Status = StatusPending
		step.Result = nil
		step.Error = ""
		step.StartedAt = time.Time{}
		step.CompletedAt = time.Time{}
		r.order = append(r.order, step)
		r.steps[step.ID] = step
		r.done[step.ID] = make(chan struct{})
	}
	return r
}

func (r *run) status(id string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps[id].Status
}

func (r *run) env(step *ActionStep) Env {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make(map[string]map[string]any)
	for _, dep := range step.DependsOn {
		if depStep, ok := r.steps[dep]; ok && depStep.Status == StatusCompleted {
			results[dep] = depStep.Result
		}
	}
	return Env{Resolutions: r.plan.Resolutions, Results: results}
}

func (r *run) skip(step *ActionStep, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := step.transition(StatusSkipped); err != nil {
		return
	}
	// never started; only the completion time is recorded
	step.CompletedAt = time.Now().UTC()
	step.Error = reason
}

func (r *run) start(step *ActionStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := step.transition(StatusRunning); err == nil {
		step.StartedAt = time.Now().UTC()
	}
}

func (r *run) finish(step *ActionStep, result map[string]any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	to := StatusCompleted
	if err != nil {
		to = StatusFailed
	}
	if step.transition(to) != nil {
		return
	}
	step.CompletedAt = time.Now().UTC()
	if err != nil {
		step.Error = err.Error()
		return
	}
	step.Result = result
}
