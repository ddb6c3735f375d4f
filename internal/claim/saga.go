package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/audit"
	"github.com/starford/heirloom/internal/ledger"
	"github.com/starford/heirloom/internal/models"
	"github.com/starford/heirloom/internal/secret"
	"github.com/starford/heirloom/internal/store"
)

// lookupMiss is the single outcome for every Lookup failure, so callers
// cannot probe which owner emails have plans.
const lookupMiss = "no pending secret claim matches these details"

// LookupResult identifies the secret question a beneficiary must answer.
type LookupResult struct {
	OwnerAddress   string `json:"owner_address"`
	InheritorIndex int    `json:"inheritor_index"`
	SecretQuestion string `json:"secret_question"`
}

// SubmitResult reports the outcome of binding a wallet.
type SubmitResult struct {
	ResolvedTxHash string  `json:"resolved_tx_hash"`
	Claimable      bool    `json:"claimable"`
	ClaimTxHash    *string `json:"claim_tx_hash"`
}

// Saga is the three-step secret-claim workflow: Lookup, Verify, Submit.
// Each step can be retried on its own.
type Saga struct {
	store    store.PlanStore
	gateway  ledger.Gateway
	claimer  *Claimer
	notifier audit.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewSaga builds the workflow on top of claimer, sharing its store, gateway
// and clock.
func NewSaga(claimer *Claimer) *Saga {
	return &Saga{
		store:    claimer.store,
		gateway:  claimer.gateway,
		claimer:  claimer,
		notifier: claimer.notifier,
		now:      claimer.now,
		logger:   claimer.logger,
	}
}

// Lookup finds the pending inheritor slot for an owner's contact email. When
// the plan has several pending slots, beneficiaryEmail picks one.
func (s *Saga) Lookup(ctx context.Context, ownerEmail, beneficiaryEmail string) (*LookupResult, error) {
	ownerEmail = strings.ToLower(strings.TrimSpace(ownerEmail))
	if ownerEmail == "" {
		return nil, apperr.New(apperr.ErrBadRequest, "owner_email is required")
	}
	p, err := s.store.FindPlanByOwnerEmail(ctx, ownerEmail)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, lookupMiss)
		}
		return nil, err
	}

	var candidates []int
	for i, h := range p.Inheritors {
		if h.Pending() {
			candidates = append(candidates, i)
		}
	}

	want := strings.ToLower(strings.TrimSpace(beneficiaryEmail))
	idx := -1
	switch {
	case len(candidates) == 0:
	case want != "":
		for _, i := range candidates {
			if strings.EqualFold(strings.TrimSpace(p.Inheritors[i].Email), want) {
				idx = i
				break
			}
		}
	case len(candidates) == 1:
		idx = candidates[0]
	}
	if idx < 0 {
		return nil, apperr.New(apperr.ErrNotFound, lookupMiss)
	}
	return &LookupResult{
		OwnerAddress:   p.OwnerAddress,
		InheritorIndex: idx,
		SecretQuestion: p.Inheritors[idx].SecretQuestion,
	}, nil
}

// Verify checks an answer without changing anything.
func (s *Saga) Verify(ctx context.Context, owner string, index int, answer string) error {
	_, _, err := s.checkAnswer(ctx, owner, index, answer)
	return err
}

// Submit re-checks the answer, binds wallet to the slot on the ledger and in
// the store, then triggers the claim if the ledger reports the plan claimable.
// A slot that is already bound yields ErrConflict before any ledger call.
func (s *Saga) Submit(ctx context.Context, owner string, index int, answer, wallet string) (*SubmitResult, error) {
	wallet = strings.TrimSpace(wallet)
	if !common.IsHexAddress(wallet) {
		return nil, apperr.New(apperr.ErrBadRequest, "beneficiary_wallet must be a 0x-prefixed 20-byte hex address")
	}
	wallet = strings.ToLower(wallet)
	if wallet == models.ZeroAddress {
		return nil, apperr.New(apperr.ErrBadRequest, "beneficiary_wallet must not be the zero address")
	}

	rcpt, owner, err := s.bind(ctx, owner, index, answer, wallet)
	if err != nil {
		return nil, err
	}

	out := &SubmitResult{ResolvedTxHash: rcpt.TxHash}
	st, err := s.gateway.GetClaimStatus(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("claim status: %w", err)
	}
	if !st.Claimable {
		return out, nil
	}
	out.Claimable = true

	res, err := s.claimer.Trigger(ctx, owner, wallet, SourceSecret)
	switch {
	case err == nil:
		if res.TxHash != "" {
			out.ClaimTxHash = &res.TxHash
		}
	case IsAlreadyClaimed(err):
		// Someone else claimed between the status query and the trigger.
	default:
		return nil, err
	}
	return out, nil
}

// bind resolves the slot on the ledger and in the store while holding the
// owner lock, so two submits for one slot cannot both reach the ledger.
func (s *Saga) bind(ctx context.Context, owner string, index int, answer, wallet string) (*ledger.Receipt, string, error) {
	owner = strings.ToLower(strings.TrimSpace(owner))
	unlock, err := s.claimer.locks.Lock(ctx, owner)
	if err != nil {
		return nil, "", fmt.Errorf("%w: wait for owner lock: %v", apperr.ErrUpstream, err)
	}
	defer unlock()

	p, h, err := s.checkAnswer(ctx, owner, index, answer)
	if err != nil {
		return nil, "", err
	}
	if h.Resolved() {
		return nil, "", apperr.New(apperr.ErrConflict, "beneficiary already resolved")
	}
	if !s.gateway.Enabled() {
		return nil, "", apperr.ErrDisabled
	}

	rcpt, err := s.gateway.ResolveInheritor(ctx, p.OwnerAddress, index, wallet, secret.Normalize(answer))
	if err != nil {
		if ledger.IsRevert(err, ledger.RevertAlreadyResolved) {
			return nil, "", apperr.New(apperr.ErrConflict, "beneficiary already resolved on ledger")
		}
		return nil, "", fmt.Errorf("resolve inheritor: %w", err)
	}

	now := s.now().UTC()
	if err := s.store.ResolveInheritor(context.WithoutCancel(ctx), p.OwnerAddress, index, wallet, now); err != nil {
		s.logger.Error("inheritor resolved on ledger but not recorded",
			"owner", p.OwnerAddress, "index", index, "tx_hash", rcpt.TxHash, "error", err)
		return nil, "", err
	}
	act := audit.NewActivity(p.OwnerAddress, models.ActivityPlanUpdated,
		fmt.Sprintf("Inheritor %d resolved to %s", index, wallet),
		map[string]any{"inheritor_index": index, "beneficiary": wallet, "tx_hash": rcpt.TxHash}, now)
	if err := s.store.AppendActivity(context.WithoutCancel(ctx), act); err != nil {
		s.logger.Warn("append resolve activity", "owner", p.OwnerAddress, "error", err)
	} else {
		s.notifier.Notify(act)
	}

	return rcpt, p.OwnerAddress, nil
}

// checkAnswer loads the slot and compares the answer against its stored hash.
func (s *Saga) checkAnswer(ctx context.Context, owner string, index int, answer string) (*models.Plan, models.Inheritor, error) {
	owner = strings.ToLower(strings.TrimSpace(owner))
	if owner == "" {
		return nil, models.Inheritor{}, apperr.New(apperr.ErrBadRequest, "owner_address is required")
	}
	p, err := s.store.GetPlan(ctx, owner)
	if err != nil {
		return nil, models.Inheritor{}, err
	}
	if index < 0 || index >= len(p.Inheritors) {
		return nil, models.Inheritor{}, apperr.New(apperr.ErrNotFound, "inheritor not found")
	}
	h := p.Inheritors[index]
	if h.SecretAnswerHash == "" {
		return nil, models.Inheritor{}, apperr.New(apperr.ErrBadRequest, "inheritor has no secret question")
	}
	if strings.TrimSpace(answer) == "" || !secret.Matches(answer, h.SecretAnswerHash) {
		return nil, models.Inheritor{}, apperr.New(apperr.ErrUnauthorized, "secret answer does not match")
	}
	return p, h, nil
}
