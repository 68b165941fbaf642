// Package scheduler runs the background maintenance loop: executing
// key rotations whose grace period has ended and expiring stale
// approval requests.
package scheduler

import (
	"context"
	"sync"
	"time"

	"privaudit/pkg/logger"
)

// RotationSweeper revokes rotated keys whose grace period has ended.
// Implemented by the viewing key service.
type RotationSweeper interface {
	ExecuteDueRotations(ctx context.Context) (int, error)
}

// ApprovalSweeper expires pending approval requests past their
// deadline. Implemented by the multisig service.
type ApprovalSweeper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Scheduler ticks at a fixed interval and runs both sweeps. Start and
// Stop are safe to call once each; sweeps never overlap.
type Scheduler struct {
	rotations RotationSweeper
	approvals ApprovalSweeper
	interval  time.Duration
	logger    logger.Logger

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a scheduler with the given sweep interval.
func New(rotations RotationSweeper, approvals ApprovalSweeper, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		rotations: rotations,
		approvals: approvals,
		interval:  interval,
		logger:    log,
	}
}

// Start launches the sweep loop in a goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
	s.logger.Info("Maintenance scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
	})
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.stopped
	s.stop = nil
	s.logger.Info("Maintenance scheduler stopped", nil)
}

// Sweep runs one maintenance pass. Exposed so operators and tests can
// trigger a pass without waiting for the ticker.
func (s *Scheduler) Sweep(ctx context.Context) {
	revoked, err := s.rotations.ExecuteDueRotations(ctx)
	if err != nil {
		s.logger.Error("Rotation sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
	} else if revoked > 0 {
		s.logger.Info("Rotation sweep revoked keys", map[string]interface{}{
			"count": revoked,
		})
	}

	expired, err := s.approvals.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("Approval expiry sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
	} else if expired > 0 {
		s.logger.Info("Approval expiry sweep", map[string]interface{}{
			"count": expired,
		})
	}
}
