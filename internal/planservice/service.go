// Package planservice owns plan management and owner check-ins.
package planservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/audit"
	"github.com/starford/heirloom/internal/liveness"
	"github.com/starford/heirloom/internal/models"
	"github.com/starford/heirloom/internal/ownerlock"
	"github.com/starford/heirloom/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	checkInRetries   = 3
)

// CheckInResult is returned by CheckIn.
type CheckInResult struct {
	CheckIn models.CheckIn `json:"check_in"`
	Status  models.Status  `json:"status"`
}

// Service coordinates plan persistence, liveness math and audit fan-out.
type Service struct {
	store    store.PlanStore
	locks    *ownerlock.Locker
	notifier audit.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier sets the listener for committed activities.
func WithNotifier(n audit.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a plan service. locks must be shared with the claim
// coordinator so check-ins and claims for one owner never interleave.
func NewService(st store.PlanStore, locks *ownerlock.Locker, opts ...Option) *Service {
	s := &Service{
		store:    st,
		locks:    locks,
		notifier: audit.Nop{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreatePlan validates and persists a new plan. The owner is considered
// alive at creation time.
func (s *Service) CreatePlan(ctx context.Context, in CreatePlanInput) (*models.Plan, error) {
	if err := in.Validate(); err != nil {
		return nil, badRequest(err)
	}
	owner := NormalizeAddress(in.OwnerAddress)
	inheritors, err := buildInheritors(in.Inheritors, owner)
	if err != nil {
		return nil, err
	}
	tokens, err := buildTokens(in.Tokens)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &models.Plan{
		OwnerAddress:           owner,
		OwnerEmail:             normalizeEmail(in.OwnerEmail),
		Inheritors:             inheritors,
		Tokens:                 tokens,
		CheckInIntervalSeconds: in.CheckInIntervalSeconds,
		LastCheckInAt:          now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	act := audit.NewActivity(owner, models.ActivityPlanCreated,
		fmt.Sprintf("Plan created with %d inheritor(s) and %d token(s)", len(inheritors), len(tokens)),
		map[string]any{"check_in_interval_seconds": p.CheckInIntervalSeconds}, now)
	if err := s.store.CreatePlan(ctx, p, act); err != nil {
		return nil, err
	}
	s.notifier.Notify(act)
	s.logger.Info("plan created", "owner", owner, "inheritors", len(inheritors))
	return p, nil
}

// GetPlan returns the owner's plan.
func (s *Service) GetPlan(ctx context.Context, owner string) (*models.Plan, error) {
	return s.store.GetPlan(ctx, NormalizeAddress(owner))
}

// UpdatePlan replaces the supplied fields. Plans with an initiated claim are frozen.
func (s *Service) UpdatePlan(ctx context.Context, owner string, in UpdatePlanInput) (*models.Plan, error) {
	if err := in.Validate(); err != nil {
		return nil, badRequest(err)
	}
	owner = NormalizeAddress(owner)

	unlock, err := s.locks.Lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.store.GetPlan(ctx, owner)
	if err != nil {
		return nil, err
	}
	if p.IsClaimInitiated {
		return nil, apperr.New(apperr.ErrConflict, "claim already initiated; plan can no longer change")
	}

	var changed []string
	if in.Inheritors != nil {
		hs, err := buildInheritors(*in.Inheritors, owner)
		if err != nil {
			return nil, err
		}
		p.Inheritors = hs
		changed = append(changed, "inheritors")
	}
	if in.Tokens != nil {
		toks, err := buildTokens(*in.Tokens)
		if err != nil {
			return nil, err
		}
		p.Tokens = toks
		changed = append(changed, "tokens")
	}
	if in.CheckInIntervalSeconds != nil {
		p.CheckInIntervalSeconds = *in.CheckInIntervalSeconds
		changed = append(changed, "check_in_interval_seconds")
	}
	if in.OwnerEmail != nil {
		p.OwnerEmail = normalizeEmail(*in.OwnerEmail)
		changed = append(changed, "owner_email")
	}

	now := s.now().UTC()
	p.UpdatedAt = now
	act := audit.NewActivity(owner, models.ActivityPlanUpdated,
		"Plan updated: "+strings.Join(changed, ", "),
		map[string]any{"fields": changed}, now)
	if err := s.store.UpdatePlan(ctx, p, act); err != nil {
		return nil, err
	}
	s.notifier.Notify(act)
	return p, nil
}

// Status computes the liveness view of the plan at the current time.
func (s *Service) Status(ctx context.Context, owner string) (models.Status, error) {
	p, err := s.store.GetPlan(ctx, NormalizeAddress(owner))
	if err != nil {
		return models.Status{}, err
	}
	return liveness.ComputeStatus(p.CheckInIntervalSeconds, p.LastCheckInAt, p.IsClaimInitiated, s.now()), nil
}

// CheckIn records proof of life for owner. Concurrent check-ins for the same
// owner are applied one after another, so SecondsSinceLast is never negative
// and each entry measures against the previous one.
func (s *Service) CheckIn(ctx context.Context, owner, triggeredBy, note string) (*CheckInResult, error) {
	owner = NormalizeAddress(owner)
	if owner == "" {
		return nil, apperr.New(apperr.ErrBadRequest, "owner_address is required")
	}
	if triggeredBy == "" {
		triggeredBy = owner
	}

	unlock, err := s.locks.Lock(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		ci  models.CheckIn
		act models.Activity
		p   *models.Plan
	)
	for attempt := 0; ; attempt++ {
		p, err = s.store.RecordCheckIn(ctx, owner, func(cur *models.Plan) (models.CheckIn, models.Activity, error) {
			now := s.now().UTC()
			elapsed := int64(now.Sub(cur.LastCheckInAt) / time.Second)
			if elapsed < 0 {
				elapsed = 0
			}
			ci = models.CheckIn{
				ID:                uuid.NewString(),
				OwnerAddress:      owner,
				Timestamp:         now,
				SecondsSinceLast:  elapsed,
				TimelinessPercent: liveness.ComputeTimeliness(cur.CheckInIntervalSeconds, elapsed),
				TriggeredBy:       triggeredBy,
				Note:              strings.TrimSpace(note),
			}
			act = audit.NewActivity(owner, models.ActivityCheckIn,
				fmt.Sprintf("Owner checked in after %ds (%d%% of interval remaining)", elapsed, ci.TimelinessPercent),
				map[string]any{
					"seconds_since_last": elapsed,
					"timeliness_percent": ci.TimelinessPercent,
					"triggered_by":       triggeredBy,
				}, now)
			return ci, act, nil
		})
		if err == nil {
			break
		}
		if !retryable(err) || attempt+1 >= checkInRetries {
			return nil, err
		}
		s.logger.Debug("check-in raced, retrying", "owner", owner, "attempt", attempt+1)
	}

	s.notifier.Notify(act)
	return &CheckInResult{
		CheckIn: ci,
		Status:  liveness.ComputeStatus(p.CheckInIntervalSeconds, p.LastCheckInAt, p.IsClaimInitiated, s.now()),
	}, nil
}

// ListActivities returns the owner's most recent activities in append order.
func (s *Service) ListActivities(ctx context.Context, owner string, limit int) ([]models.Activity, error) {
	owner = NormalizeAddress(owner)
	if _, err := s.store.GetPlan(ctx, owner); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, owner, clampLimit(limit))
}

// ListCheckIns returns the owner's most recent check-ins in append order.
func (s *Service) ListCheckIns(ctx context.Context, owner string, limit int) ([]models.CheckIn, error) {
	owner = NormalizeAddress(owner)
	if _, err := s.store.GetPlan(ctx, owner); err != nil {
		return nil, err
	}
	return s.store.ListCheckIns(ctx, owner, clampLimit(limit))
}

// retryable reports a version race, as opposed to a frozen plan.
func retryable(err error) bool {
	return errors.Is(err, store.ErrStale)
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
