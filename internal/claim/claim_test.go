package claim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/ledger"
	"github.com/starford/heirloom/internal/models"
	"github.com/starford/heirloom/internal/ownerlock"
	"github.com/starford/heirloom/internal/secret"
	"github.com/starford/heirloom/internal/store"
	"github.com/starford/heirloom/internal/testutil"
)

const (
	owner  = "0x1111111111111111111111111111111111111111"
	heir   = "0x2222222222222222222222222222222222222222"
	wallet = "0x3333333333333333333333333333333333333333"
)

type fixture struct {
	db      *store.DB
	gw      *testutil.FakeGateway
	clock   *testutil.Clock
	claimer *Claimer
	saga    *Saga
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:    testutil.TestDB(t),
		gw:    testutil.NewFakeGateway(),
		clock: testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.claimer = NewClaimer(f.db, f.gw, ownerlock.New(), nil, f.clock.Now, nil)
	f.saga = NewSaga(f.claimer)
	return f
}

func (f *fixture) seed(t *testing.T, inheritors ...models.Inheritor) {
	t.Helper()
	now := f.clock.Now()
	p := &models.Plan{
		OwnerAddress:           owner,
		OwnerEmail:             "owner@example.com",
		Inheritors:             inheritors,
		Tokens:                 []models.Token{{Address: models.ZeroAddress, Type: models.TokenNative}},
		CheckInIntervalSeconds: 3600,
		LastCheckInAt:          now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	require.NoError(t, f.db.CreatePlan(context.Background(), p, models.Activity{
		OwnerAddress: owner, Type: models.ActivityPlanCreated, Timestamp: now,
	}))
}

func secretHeir(email, question, answer string, share int) models.Inheritor {
	return models.Inheritor{
		Address:          models.ZeroAddress,
		SharePercentage:  share,
		Email:            email,
		SecretQuestion:   question,
		SecretAnswerHash: secret.Hash(answer),
	}
}

func TestTrigger(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 100})
	ctx := context.Background()

	res, err := f.claimer.Trigger(ctx, owner, "relayer", SourceScheduler)
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.False(t, res.Converged)

	p, err := f.db.GetPlan(ctx, owner)
	require.NoError(t, err)
	assert.True(t, p.IsClaimInitiated)

	acts, err := f.db.ListActivities(ctx, owner, 0)
	require.NoError(t, err)
	last := acts[len(acts)-1]
	assert.Equal(t, models.ActivityClaimTriggered, last.Type)
	assert.Equal(t, res.TxHash, last.Metadata["tx_hash"])
	assert.Equal(t, "relayer", last.Metadata["initiator"])
	assert.Equal(t, SourceScheduler, last.Metadata["source"])

	_, err = f.claimer.Trigger(ctx, owner, "relayer", SourceScheduler)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, f.gw.Claims(), 1, "second trigger must not reach the ledger")
}

func TestTriggerIfDue(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 100})
	ctx := context.Background()

	_, err := f.claimer.TriggerIfDue(ctx, owner)
	assert.ErrorIs(t, err, ErrNotDue)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, f.gw.Claims(), "a plan that is not due must not reach the ledger")

	f.clock.Advance(3601 * time.Second)
	res, err := f.claimer.TriggerIfDue(ctx, owner)
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)

	acts, err := f.db.ListActivities(ctx, owner, 0)
	require.NoError(t, err)
	last := acts[len(acts)-1]
	assert.Equal(t, testutil.RelayerAddress, last.Metadata["initiator"])
	assert.Equal(t, testutil.RelayerAddress, last.Metadata["relayer"])
	assert.Equal(t, SourceScheduler, last.Metadata["source"])
}

func TestTriggerIfDue_ConvergedWithoutReceiptRecordsSource(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 100})
	f.gw.ClaimErr = func(string) error { return &ledger.RevertError{Kind: ledger.RevertAlreadyClaimed, Name: "PlanAlreadyClaimed"} }
	f.clock.Advance(2 * time.Hour)

	res, err := f.claimer.TriggerIfDue(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, res.Converged)

	acts, err := f.db.ListActivities(context.Background(), owner, 0)
	require.NoError(t, err)
	last := acts[len(acts)-1]
	assert.Equal(t, SourceScheduler, last.Metadata["initiator"])
	assert.NotContains(t, last.Metadata, "relayer")
}

func TestTrigger_LockWaitCancelledIsUpstream(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 100})

	unlock, err := f.claimer.locks.Lock(context.Background(), owner)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.claimer.Trigger(ctx, owner, "relayer", SourceScheduler)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Empty(t, f.gw.Claims())
}

func TestTrigger_LedgerFailureLeavesPlanUnclaimed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 100})
	f.gw.ClaimErr = func(string) error { return &ledger.RevertError{Kind: ledger.RevertNothingToDistribute, Name: "NothingToDistribute"} }

	_, err := f.claimer.Trigger(context.Background(), owner, "relayer", SourceScheduler)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	p, err := f.db.GetPlan(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, p.IsClaimInitiated)
}

func TestTrigger_AlreadyClaimedOnLedgerConverges(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 100})
	f.gw.ClaimErr = func(string) error { return &ledger.RevertError{Kind: ledger.RevertAlreadyClaimed, Name: "PlanAlreadyClaimed"} }

	res, err := f.claimer.Trigger(context.Background(), owner, "relayer", SourceScheduler)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Empty(t, res.TxHash)

	p, err := f.db.GetPlan(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, p.IsClaimInitiated)
}

func TestTrigger_ConcurrentSubmitsOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 100})
	f.gw.Block = make(chan struct{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.claimer.Trigger(context.Background(), owner, "relayer", SourceScheduler)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gw.Block)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 3, conflicts)
	assert.Len(t, f.gw.Claims(), 1)
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		models.Inheritor{Address: heir, SharePercentage: 20},
		secretHeir("Bob@Example.com", "First pet?", "rex", 40),
		secretHeir("carol@example.com", "Birth city?", "lisbon", 40),
	)
	ctx := context.Background()

	_, err := f.saga.Lookup(ctx, "owner@example.com", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound, "ambiguous without beneficiary email")

	res, err := f.saga.Lookup(ctx, " OWNER@example.com ", " bob@example.COM")
	require.NoError(t, err)
	assert.Equal(t, owner, res.OwnerAddress)
	assert.Equal(t, 1, res.InheritorIndex)
	assert.Equal(t, "First pet?", res.SecretQuestion)

	_, err = f.saga.Lookup(ctx, "owner@example.com", "dave@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.saga.Lookup(ctx, "nobody@example.com", "")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, lookupMiss, apperr.Message(err))

	_, err = f.saga.Lookup(ctx, "", "")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestLookup_SingleCandidate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 50}, secretHeir("", "Q?", "a", 50))

	res, err := f.saga.Lookup(context.Background(), "owner@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.InheritorIndex)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.Inheritor{Address: heir, SharePercentage: 50}, secretHeir("", "Q?", "Rex", 50))
	ctx := context.Background()

	assert.NoError(t, f.saga.Verify(ctx, owner, 1, "  REX "))
	assert.ErrorIs(t, f.saga.Verify(ctx, owner, 1, "max"), apperr.ErrUnauthorized)
	assert.ErrorIs(t, f.saga.Verify(ctx, owner, 5, "rex"), apperr.ErrNotFound)
	assert.ErrorIs(t, f.saga.Verify(ctx, owner, 0, "rex"), apperr.ErrBadRequest)
	assert.ErrorIs(t, f.saga.Verify(ctx, "0x9999999999999999999999999999999999999999", 1, "rex"), apperr.ErrNotFound)

	p, err := f.db.GetPlan(ctx, owner)
	require.NoError(t, err)
	assert.True(t, p.Inheritors[1].Pending(), "verify is read-only")
	assert.Empty(t, f.gw.Resolves())
}

func TestSubmit_NotClaimable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, secretHeir("", "Q?", "rex", 100))
	ctx := context.Background()

	res, err := f.saga.Submit(ctx, owner, 0, "Rex", wallet)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ResolvedTxHash)
	assert.False(t, res.Claimable)
	assert.Nil(t, res.ClaimTxHash)

	calls := f.gw.Resolves()
	require.Len(t, calls, 1)
	assert.Equal(t, testutil.ResolveCall{Owner: owner, Index: 0, Beneficiary: wallet, Answer: "rex"}, calls[0])
	assert.Empty(t, f.gw.Claims())

	p, err := f.db.GetPlan(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, wallet, p.Inheritors[0].Address)
	assert.False(t, p.IsClaimInitiated)

	_, err = f.saga.Submit(ctx, owner, 0, "rex", wallet)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Len(t, f.gw.Resolves(), 1, "retried submit must not reach the ledger")
}

func TestSubmit_ClaimableTriggersClaim(t *testing.T) {
	f := newFixture(t)
	f.seed(t, secretHeir("", "Q?", "rex", 100))
	f.gw.SetClaimable(owner, true)

	res, err := f.saga.Submit(context.Background(), owner, 0, "rex", wallet)
	require.NoError(t, err)
	assert.True(t, res.Claimable)
	require.NotNil(t, res.ClaimTxHash)
	assert.Equal(t, []string{owner}, f.gw.Claims())

	acts, err := f.db.ListActivities(context.Background(), owner, 0)
	require.NoError(t, err)
	last := acts[len(acts)-1]
	assert.Equal(t, models.ActivityClaimTriggered, last.Type)
	assert.Equal(t, SourceSecret, last.Metadata["source"])
	assert.Equal(t, wallet, last.Metadata["initiator"])
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, secretHeir("", "Q?", "rex", 100))
	ctx := context.Background()

	_, err := f.saga.Submit(ctx, owner, 0, "rex", "not-a-wallet")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.saga.Submit(ctx, owner, 0, "rex", models.ZeroAddress)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
	_, err = f.saga.Submit(ctx, owner, 0, "wrong", wallet)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Empty(t, f.gw.Resolves())
}

func TestSubmit_LedgerFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, secretHeir("", "Q?", "rex", 100))
	f.gw.ResolveErr = &ledger.RevertError{Kind: ledger.RevertInvalidSecret, Name: "InvalidSecret"}

	_, err := f.saga.Submit(context.Background(), owner, 0, "rex", wallet)
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	p, err := f.db.GetPlan(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, p.Inheritors[0].Pending(), "slot stays pending when the ledger rejects")
}

func TestSubmit_GatewayDisabled(t *testing.T) {
	f := newFixture(t)
	f.seed(t, secretHeir("", "Q?", "rex", 100))
	f.gw.Disabled = true

	_, err := f.saga.Submit(context.Background(), owner, 0, "rex", wallet)
	assert.ErrorIs(t, err, apperr.ErrDisabled)
}
