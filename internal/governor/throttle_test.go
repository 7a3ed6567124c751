package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/threadscope/internal/testutil"
)

func TestGateSpacing(t *testing.T) {
	clock := testutil.NewManualClock()
	g := newGate(200*time.Millisecond, clock)
	ctx := context.Background()

	waited, err := g.wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)

	var dispatches []time.Time
	dispatches = append(dispatches, clock.Now())
	for i := 0; i < 3; i++ {
		_, err := g.wait(ctx)
		require.NoError(t, err)
		dispatches = append(dispatches, clock.Now())
	}

	for i := 1; i < len(dispatches); i++ {
		assert.GreaterOrEqual(t, dispatches[i].Sub(dispatches[i-1]), 200*time.Millisecond)
	}
}

func TestGateIdleCallerGoesStraightThrough(t *testing.T) {
	clock := testutil.NewManualClock()
	g := newGate(200*time.Millisecond, clock)
	ctx := context.Background()

	_, err := g.wait(ctx)
	require.NoError(t, err)

	clock.Advance(time.Second)
	waited, err := g.wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestGateDisabled(t *testing.T) {
	clock := testutil.NewManualClock()
	g := newGate(0, clock)

	for i := 0; i < 5; i++ {
		waited, err := g.wait(context.Background())
		require.NoError(t, err)
		assert.Zero(t, waited)
	}
	assert.Empty(t, clock.Sleeps())
}

func TestGateCancelled(t *testing.T) {
	clock := testutil.NewManualClock()
	g := newGate(200*time.Millisecond, clock)

	_, err := g.wait(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
