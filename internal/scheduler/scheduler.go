// Package scheduler runs the periodic claim sweep over unclaimed plans.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/claim"
	"github.com/starford/heirloom/internal/liveness"
	"github.com/starford/heirloom/internal/models"
)

// MinInterval is the shortest sweep period accepted.
const MinInterval = 15 * time.Second

// PlanLister supplies the unclaimed plans for each sweep.
type PlanLister interface {
	ListUnclaimed(ctx context.Context) ([]*models.Plan, error)
}

// Trigger submits one claim if the plan is still overdue under the owner
// lock. *claim.Claimer satisfies it.
type Trigger interface {
	Enabled() bool
	TriggerIfDue(ctx context.Context, owner string) (*claim.Result, error)
}

// SweepResult summarizes one tick.
type SweepResult struct {
	Scanned   int
	Due       int
	Triggered int
	// Deferred counts plans that were checked in between listing and trigger.
	Deferred  int
	Failed    int
}

// Scheduler evaluates every unclaimed plan on a fixed period and triggers
// claims for the overdue ones. Eligibility is recomputed from the store on
// every tick.
type Scheduler struct {
	plans    PlanLister
	trigger  Trigger
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used for eligibility.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New returns a Scheduler. Intervals below MinInterval are raised to it.
func New(plans PlanLister, trigger Trigger, interval time.Duration, opts ...Option) *Scheduler {
	if interval < MinInterval {
		interval = MinInterval
	}
	s := &Scheduler{
		plans:    plans,
		trigger:  trigger,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Interval returns the effective sweep period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run sweeps until ctx is done. With an unconfigured ledger it logs once and
// returns nil immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.trigger.Enabled() {
		s.logger.Info("ledger gateway not configured, claim scheduler disabled")
		return nil
	}
	s.logger.Info("claim scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("claim scheduler stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Start runs the scheduler in the background until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = s.Run(ctx)
	}(s.done)
}

// Stop cancels a started scheduler and waits for the current sweep to end.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep performs one tick. Plans are attempted one at a time; a failure is
// logged with its owner and never stops the sweep.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	plans, err := s.plans.ListUnclaimed(ctx)
	if err != nil {
		s.logger.Error("claim sweep: list plans", slog.String("error", err.Error()))
		return res
	}
	res.Scanned = len(plans)
	now := s.now()

	for _, p := range plans {
		if ctx.Err() != nil {
			break
		}
		if !liveness.IsDue(p, now) {
			continue
		}
		res.Due++

		out, err := s.trigger.TriggerIfDue(ctx, p.OwnerAddress)
		switch {
		case err == nil:
			res.Triggered++
			s.logger.Info("claim sweep: claim triggered",
				slog.String("owner", p.OwnerAddress), slog.String("tx_hash", out.TxHash))
		case errors.Is(err, claim.ErrNotDue):
			res.Deferred++
			s.logger.Info("claim sweep: plan checked in since listing, deferred",
				slog.String("owner", p.OwnerAddress))
		case errors.Is(err, apperr.ErrConflict):
			// Claimed elsewhere since the listing.
		default:
			res.Failed++
			s.logger.Error("claim sweep: claim failed",
				slog.String("owner", p.OwnerAddress), slog.String("error", err.Error()))
		}
	}
	if res.Due > 0 {
		s.logger.Info("claim sweep finished",
			slog.Int("scanned", res.Scanned), slog.Int("due", res.Due),
			slog.Int("triggered", res.Triggered), slog.Int("deferred", res.Deferred),
			slog.Int("failed", res.Failed))
	}
	return res
}
