package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultWorkers = 10

// Pool bounds how many blocking collaborator calls run at once across every
// orchestration run in the process. It is constructed once at startup and
// handed to the registry.
type Pool struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

func (p *Pool) Size() int {
	return p.size
}

// InFlight reports the number of calls currently holding a worker.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

type outcome struct {
	result map[string]any
	err    error
}

// Do waits for a free worker and runs fn on it. If ctx ends first, Do returns
// ctx.Err() without waiting for fn; the worker stays occupied until fn
// returns, so fn should honour ctx.
func (p *Pool) Do(ctx context.Context, fn Handler, params map[string]any) (map[string]any, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.inFlight.Add(1)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		}()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := fn(ctx, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
