package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

func TestPoolDoReturnsHandlerOutcome(t *testing.T) {
	pool := NewPool(0)
	assert.Equal(t, 1, pool.Size())

	out, err := pool.Do(context.Background(), okHandler(map[string]any{"n": 1}), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out["n"])

	_, err = pool.Do(context.Background(), failHandler("smtp down"), nil)
	require.EqualError(t, err, "smtp down")
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := NewPool(2)
	_, err := pool.Do(context.Background(), func(context.Context, map[string]any) (map[string]any, error) {
		panic("bad input")
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic: bad input")
	assert.Equal(t, 0, pool.InFlight())
}

func TestPoolRespectsCancelledContext(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Do(ctx, okHandler(nil), nil)
	require.ErrorIs(t, err, context.Canceled)
}
