package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// ReadinessProbe reports whether a service is ready to serve.
//
// An error means the probe could not decide (daemon unreachable, no
// container yet, connection refused). Polling treats it as "not ready"
// and keeps trying until the deadline.
type ReadinessProbe interface {
	Ready(ctx context.Context, service model.ServiceName) (bool, error)
}

// ProbeFunc adapts a function to ReadinessProbe.
type ProbeFunc func(ctx context.Context, service model.ServiceName) (bool, error)

// Ready calls f.
func (f ProbeFunc) Ready(ctx context.Context, service model.ServiceName) (bool, error) {
	return f(ctx, service)
}

// WaitResult describes a finished readiness wait.
type WaitResult struct {
	Ready    bool
	Attempts int
	Elapsed  time.Duration

	// LastErr is the last probe error seen, if any.
	LastErr error
}

// waitReady runs the settle delay and then probes until the service is
// ready or the timeout elapses.
//
// The first probe always runs, so a Timeout shorter than Interval yields
// exactly one attempt. Another attempt is only scheduled when it would
// start before the deadline.
func waitReady(ctx context.Context, clock Clock, probe ReadinessProbe, poll model.ReadinessPoll, logger *slog.Logger) (WaitResult, error) {
	var res WaitResult

	if err := poll.Validate(); err != nil {
		return res, err
	}

	if poll.Settle > 0 {
		logger.Debug("waiting before first readiness probe", "service", poll.Service, "settle", poll.Settle)
		if err := clock.Sleep(ctx, poll.Settle); err != nil {
			return res, fmt.Errorf("readiness wait for %q: %w", poll.Service, err)
		}
	}

	start := clock.Now()
	deadline := start.Add(poll.Timeout)
	for {
		res.Attempts++
		ready, err := probe.Ready(ctx, poll.Service)
		res.Elapsed = clock.Now().Sub(start)
		if err != nil {
			res.LastErr = err
			logger.Debug("readiness probe failed", "service", poll.Service, "attempt", res.Attempts, "error", err)
		}
		if ready && err == nil {
			res.Ready = true
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("readiness wait for %q: %w", poll.Service, ctxErr)
		}

		if clock.Now().Add(poll.Interval).After(deadline) {
			return res, nil
		}
		if err := clock.Sleep(ctx, poll.Interval); err != nil {
			return res, fmt.Errorf("readiness wait for %q: %w", poll.Service, err)
		}
	}
}
