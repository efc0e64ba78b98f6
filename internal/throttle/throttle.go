// Package throttle spaces out calls to the helpdesk API.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourorg/bulk-tickets/internal/clock"
)

// Gate admits one call per interval. The first call passes immediately;
// each later call waits until interval has elapsed since the previous
// admission. A Gate is safe for concurrent use, so one instance may be
// shared by batches running at the same time.
type Gate struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

// NewGate returns a Gate admitting one call per interval. A zero interval
// disables waiting.
func NewGate(interval time.Duration, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.Real()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Gate{limiter: rate.NewLimiter(limit, 1), clock: clk}
}

// Wait blocks until the next call may proceed or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	select {
	case <-g.clock.After(delay):
		return nil
	case <-ctx.Done():
		r.CancelAt(g.clock.Now())
		return ctx.Err()
	}
}
