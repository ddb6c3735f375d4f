// Package claim coordinates claim submission on the ledger with the persisted
// plan state, and drives the beneficiary secret-claim workflow.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/audit"
	"github.com/starford/heirloom/internal/ledger"
	"github.com/starford/heirloom/internal/liveness"
	"github.com/starford/heirloom/internal/models"
	"github.com/starford/heirloom/internal/ownerlock"
	"github.com/starford/heirloom/internal/store"
)

// Sources recorded in CLAIM_TRIGGERED metadata.
const (
	SourceScheduler = "scheduler"
	SourceSecret    = "secret_claim"
)

// ErrNotDue is returned by TriggerIfDue when the plan, reloaded under the
// owner lock, is no longer overdue.
var ErrNotDue = apperr.New(apperr.ErrConflict, "plan is not due")

// Result describes a successful trigger.
type Result struct {
	TxHash string
	// Converged is set when the ledger reported the plan as already claimed
	// and only the local state was brought in line.
	Converged bool
}

// Claimer submits claims for a plan at most once.
type Claimer struct {
	store    store.PlanStore
	gateway  ledger.Gateway
	locks    *ownerlock.Locker
	notifier audit.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewClaimer wires a Claimer. Passing nil for notifier, now or logger selects
// the defaults.
func NewClaimer(st store.PlanStore, gw ledger.Gateway, locks *ownerlock.Locker, notifier audit.Notifier, now func() time.Time, logger *slog.Logger) *Claimer {
	if notifier == nil {
		notifier = audit.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Claimer{store: st, gateway: gw, locks: locks, notifier: notifier, now: now, logger: logger}
}

// Enabled reports whether the underlying gateway can submit claims.
func (c *Claimer) Enabled() bool {
	return c.gateway.Enabled()
}

// Trigger submits claimInheritance for owner and records it. The owner lock is
// held across the ledger call, so check-ins and other triggers for the same
// owner wait. A plan whose claim was already initiated yields ErrConflict
// without touching the ledger.
func (c *Claimer) Trigger(ctx context.Context, owner, initiator, source string) (*Result, error) {
	return c.trigger(ctx, owner, initiator, source, false)
}

// TriggerIfDue is the scheduler's entry point. Liveness is evaluated again on
// the plan reloaded under the owner lock, so a check-in that committed after
// the sweep listed the plan yields ErrNotDue and no ledger call. The relayer
// address from the receipt is recorded as the initiator.
func (c *Claimer) TriggerIfDue(ctx context.Context, owner string) (*Result, error) {
	return c.trigger(ctx, owner, "", SourceScheduler, true)
}

func (c *Claimer) trigger(ctx context.Context, owner, initiator, source string, requireDue bool) (*Result, error) {
	unlock, err := c.locks.Lock(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: wait for owner lock: %v", apperr.ErrUpstream, err)
	}
	defer unlock()

	p, err := c.store.GetPlan(ctx, owner)
	if err != nil {
		return nil, err
	}
	if p.IsClaimInitiated {
		return nil, apperr.New(apperr.ErrConflict, "claim already initiated")
	}
	if requireDue && !liveness.IsDue(p, c.now()) {
		return nil, ErrNotDue
	}

	res := &Result{}
	relayer := ""
	rcpt, err := c.gateway.SubmitClaim(ctx, owner)
	switch {
	case err == nil:
		res.TxHash = rcpt.TxHash
		relayer = rcpt.From
	case ledger.IsRevert(err, ledger.RevertAlreadyClaimed):
		c.logger.Warn("ledger reports plan already claimed, converging", "owner", owner)
		res.Converged = true
	default:
		return nil, fmt.Errorf("submit claim: %w", err)
	}

	if initiator == "" {
		initiator = relayer
	}
	if initiator == "" {
		initiator = source
	}
	meta := map[string]any{
		"initiator": initiator,
		"tx_hash":   res.TxHash,
		"source":    source,
	}
	if relayer != "" {
		meta["relayer"] = relayer
	}
	desc := "Claim triggered by " + initiator
	if res.Converged {
		meta["converged"] = true
		desc = "Claim already executed on ledger; recorded locally"
	}
	act := audit.NewActivity(owner, models.ActivityClaimTriggered, desc, meta, c.now().UTC())

	// The ledger transaction is final at this point; persisting must not be
	// abandoned because the caller went away.
	flipped, err := c.store.MarkClaimInitiated(context.WithoutCancel(ctx), owner, act)
	if err != nil {
		c.logger.Error("claim submitted but not recorded", "owner", owner, "tx_hash", res.TxHash, "error", err)
		return nil, err
	}
	if !flipped {
		return nil, apperr.New(apperr.ErrConflict, "claim already initiated")
	}
	c.notifier.Notify(act)
	c.logger.Info("claim triggered", "owner", owner, "tx_hash", res.TxHash, "source", source)
	return res, nil
}

// IsAlreadyClaimed reports whether err means the plan was claimed before.
func IsAlreadyClaimed(err error) bool {
	return errors.Is(err, apperr.ErrConflict)
}
