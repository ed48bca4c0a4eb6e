package service

import (
	"context"
	"time"

	"messenger/pkg/logger"
)

// CallReaper периодически завершает звонки, хост которых перестал
// присылать heartbeat.
type CallReaper struct {
	calls    CallService
	interval time.Duration
	now      func() time.Time
	log      logger.Logger
}

func NewCallReaper(calls CallService, interval time.Duration, log logger.Logger) *CallReaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CallReaper{
		calls:    calls,
		interval: interval,
		now:      time.Now,
		log:      log,
	}
}

// Run блокируется до отмены ctx
func (r *CallReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Call reaper started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Call reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *CallReaper) Sweep(ctx context.Context) int {
	expired, err := r.calls.ExpireStale(ctx, r.now())
	if err != nil {
		r.log.Error("Call reaper sweep failed", "error", err)
		return 0
	}
	if expired > 0 {
		r.log.Info("Expired stale calls", "count", expired)
	}
	return expired
}
