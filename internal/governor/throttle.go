package governor

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/threadscope/internal/infrastructure/resilience"
)

// gate spaces dispatches at least spacing apart. The limiter holds the
// earliest next dispatch time; reserving against it is the read-modify-write
// that advances the gate, and rate.Limiter serializes it.
type gate struct {
	limiter *rate.Limiter
	clock   resilience.Clock
}

func newGate(spacing time.Duration, clock resilience.Clock) *gate {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &gate{
		limiter: rate.NewLimiter(limit, 1),
		clock:   clock,
	}
}

// wait blocks until this caller may dispatch and returns how long it waited
func (g *gate) wait(ctx context.Context) (time.Duration, error) {
	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0, errors.New("throttle: reservation refused")
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return 0, nil
	}

	if err := g.clock.Sleep(ctx, delay); err != nil {
		// Hand the slot back so later callers are not pushed out
		r.CancelAt(g.clock.Now())
		return 0, err
	}
	return delay, nil
}
