package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// sessionDeleter is the optional removal capability of a session store.
// Both shipped stores implement it.
type sessionDeleter interface {
	Delete(ctx context.Context, sessionID string) error
}

// SweepReport counts what one sweep pass reclaimed.
type SweepReport struct {
	Sessions  int `json:"sessions"`
	Instances int `json:"instances"`
}

// Sweep reclaims sessions idle since sessionThreshold and terminal workflow
// instances last updated before instanceThreshold. The stores never expire
// anything on their own; callers run Sweep on a timer.
func (o *Orchestrator) Sweep(ctx context.Context, sessionThreshold, instanceThreshold time.Time) (SweepReport, error) {
	var report SweepReport

	instanceIDs, err := o.engine.Store().ListTerminalBefore(ctx, instanceThreshold)
	if err != nil {
		return report, fmt.Errorf("listing terminal instances: %w", err)
	}
	for _, id := range instanceIDs {
		if err := o.engine.Store().Delete(ctx, id); err != nil {
			return report, fmt.Errorf("deleting instance %s: %w", id, err)
		}
		report.Instances++
	}

	deleter, ok := o.sessions.(sessionDeleter)
	if !ok {
		return report, nil
	}
	sessionIDs, err := o.sessions.ListIdleSince(ctx, sessionThreshold)
	if err != nil {
		return report, fmt.Errorf("listing idle sessions: %w", err)
	}
	for _, id := range sessionIDs {
		unlock := o.lockSession(id)
		err := deleter.Delete(ctx, id)
		unlock()
		if err != nil {
			return report, fmt.Errorf("deleting session %s: %w", id, err)
		}
		o.dropLock(id)
		report.Sessions++
	}

	if report.Sessions > 0 || report.Instances > 0 {
		o.logger.Info("orchestrator.sweep", "sessions", report.Sessions, "instances", report.Instances)
	}
	return report, nil
}

// RunSweeper runs Sweep every interval until the context is cancelled.
// Sessions idle longer than sessionIdle and terminal instances older than
// instanceRetention are reclaimed.
func (o *Orchestrator) RunSweeper(ctx context.Context, interval, sessionIdle, instanceRetention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if _, err := o.Sweep(ctx, now.Add(-sessionIdle), now.Add(-instanceRetention)); err != nil {
				o.logger.Error("orchestrator.sweep_failed", "error", err.Error())
			}
		}
	}
}
