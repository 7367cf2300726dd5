package fanout

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"netsleuth/internal/logging"
	"netsleuth/internal/session"
)

// Runner investigates a single device. Implemented by investigator.Investigator.
type Runner interface {
	Run(ctx context.Context, dev *session.DeviceInvestigation)
}

// Coordinator fans one executing pass out across devices, one worker per
// device, capped at Limit concurrent workers. Each worker owns exactly
// one DeviceInvestigation, so no locking is needed. A worker failing or
// panicking never cancels its siblings: the failure is recorded in that
// device's state and the rest run to completion.
type Coordinator struct {
	Limit  int
	Runner Runner
}

func New(limit int, r Runner) *Coordinator {
	if limit < 1 {
		limit = 1
	}
	return &Coordinator{Limit: limit, Runner: r}
}

// RunAll runs every device concurrently and returns once all workers
// have finished. The returned map indexes the same (now updated) state
// instances by device name.
func (c *Coordinator) RunAll(ctx context.Context, devices []*session.DeviceInvestigation) map[string]*session.DeviceInvestigation {
	g := &errgroup.Group{}
	g.SetLimit(c.Limit)

	for _, dev := range devices {
		d := dev
		g.Go(func() error {
			// A panic in one worker must not take down the batch.
			defer func() {
				if rec := recover(); rec != nil {
					logging.L.Errorw("investigator panicked", "device", d.DeviceName, "panic", rec)
					d.AddLimitation(fmt.Sprintf("investigation aborted by internal error: %v", rec))
				}
			}()
			c.Runner.Run(ctx, d)
			return nil
		})
	}
	_ = g.Wait() // workers always return nil; failures live in device state

	out := make(map[string]*session.DeviceInvestigation, len(devices))
	for _, d := range devices {
		out[d.DeviceName] = d
	}
	return out
}
