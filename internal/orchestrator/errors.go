package orchestrator

import "errors"

var (
	ErrNoHandler             = errors.New("no handler for action")
	ErrDependencyFailed      = errors.New("dependency failed")
	ErrUnresolvedPlaceholder = errors.New("unresolved dependency")
	ErrInvalidPlan           = errors.New("invalid plan")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrStepTimeout           = errors.New("step timed out")
	ErrRunCancelled          = errors.New("run cancelled")
)
