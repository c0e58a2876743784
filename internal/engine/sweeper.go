package engine

import (
	"context"
	"time"
)

const (
	// ClosedRetention is how long closed sessions remain answerable as closed.
	ClosedRetention = 7 * 24 * time.Hour

	sweepTimeout = time.Minute
)

// SweepCallback is called for each session closed by a sweep.
type SweepCallback func(sessionID string)

// Sweep closes every session idle since cutoff. Each close happens under the
// session's lock and is skipped if a turn arrived after the listing.
func (o *Orchestrator) Sweep(ctx context.Context, cutoff time.Time, onClose SweepCallback) (int, error) {
	ids, err := o.store.IdleBefore(ctx, cutoff)
	if err != nil {
		return 0, storeErr("list idle sessions", err)
	}

	closed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		ok, err := o.closeIdle(ctx, id, cutoff)
		if err != nil {
			o.logger.Warn("Idle sweep failed to close session", "session_id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		closed++
		if onClose != nil {
			onClose(id)
		}
	}

	if closed > 0 {
		o.logger.Info("Idle sweep closed sessions", "count", closed, "cutoff", cutoff)
	}
	return closed, nil
}

func (o *Orchestrator) closeIdle(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	defer o.lock(id)()
	return o.store.CloseIdle(ctx, id, cutoff)
}

// StartIdleSweeper closes sessions idle for longer than idleTimeout every
// interval and purges closed sessions past ClosedRetention. The returned
// channel is closed once the worker has stopped.
func (o *Orchestrator) StartIdleSweeper(ctx context.Context, interval, idleTimeout time.Duration, onClose SweepCallback) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		o.logger.Info("Idle sweeper started", "interval", interval, "idle_timeout", idleTimeout)

		for {
			select {
			case <-ticker.C:
				o.sweepOnce(ctx, idleTimeout, onClose)
			case <-ctx.Done():
				o.logger.Info("Idle sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func (o *Orchestrator) sweepOnce(ctx context.Context, idleTimeout time.Duration, onClose SweepCallback) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	now := o.now()
	if _, err := o.Sweep(ctx, now.Add(-idleTimeout), onClose); err != nil {
		o.logger.Error("Idle sweep failed", "error", err)
		return
	}
	purged, err := o.store.PurgeClosedBefore(ctx, now.Add(-ClosedRetention))
	if err != nil {
		o.logger.Error("Purging closed sessions failed", "error", err)
		return
	}
	if purged > 0 {
		o.logger.Info("Purged closed sessions", "count", purged)
	}
}
