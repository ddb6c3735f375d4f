// Package testutil provides shared test helpers: a temporary plan store,
// a scripted ledger gateway and a controllable clock.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/heirloom/internal/apperr"
	"github.com/starford/heirloom/internal/ledger"
	"github.com/starford/heirloom/internal/store"
)

// TestDB creates a temporary SQLite plan store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "heirloom-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// RelayerAddress is the signer FakeGateway reports on every receipt.
const RelayerAddress = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

// ResolveCall records one ResolveInheritor invocation.
type ResolveCall struct {
	Owner       string
	Index       int
	Beneficiary string
	Answer      string
}

// FakeGateway is a scripted ledger.Gateway that records every call.
type FakeGateway struct {
	mu sync.Mutex

	Disabled bool
	// ClaimErr, when set, decides the outcome of SubmitClaim per owner.
	ClaimErr   func(owner string) error
	ResolveErr error
	StatusErr  error
	Claimable  map[string]bool
	// Block, when non-nil, is waited on inside SubmitClaim (or ctx.Done).
	Block chan struct{}

	ClaimCalls   []string
	ResolveCalls []ResolveCall
	StatusCalls  []string
	seq          int
}

var _ ledger.Gateway = (*FakeGateway)(nil)

// NewFakeGateway returns an enabled gateway where every call succeeds.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Claimable: map[string]bool{}}
}

// Enabled implements ledger.Gateway.
func (f *FakeGateway) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Disabled
}

// SubmitClaim implements ledger.Gateway.
func (f *FakeGateway) SubmitClaim(ctx context.Context, owner string) (*ledger.Receipt, error) {
	f.mu.Lock()
	if f.Disabled {
		f.mu.Unlock()
		return nil, apperr.ErrDisabled
	}
	f.ClaimCalls = append(f.ClaimCalls, owner)
	block, claimErr := f.Block, f.ClaimErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, ctx.Err())
		}
	}
	if claimErr != nil {
		if err := claimErr(owner); err != nil {
			return nil, err
		}
	}
	return f.receipt(), nil
}

// ResolveInheritor implements ledger.Gateway.
func (f *FakeGateway) ResolveInheritor(_ context.Context, owner string, index int, beneficiary, answer string) (*ledger.Receipt, error) {
	f.mu.Lock()
	if f.Disabled {
		f.mu.Unlock()
		return nil, apperr.ErrDisabled
	}
	f.ResolveCalls = append(f.ResolveCalls, ResolveCall{owner, index, beneficiary, answer})
	err := f.ResolveErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.receipt(), nil
}

// GetClaimStatus implements ledger.Gateway.
func (f *FakeGateway) GetClaimStatus(_ context.Context, owner string) (*ledger.ClaimStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Disabled {
		return nil, apperr.ErrDisabled
	}
	f.StatusCalls = append(f.StatusCalls, owner)
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	return &ledger.ClaimStatus{Claimable: f.Claimable[owner]}, nil
}

// SetClaimable scripts the claimable flag GetClaimStatus reports for owner.
func (f *FakeGateway) SetClaimable(owner string, v bool) {
	f.mu.Lock()
	f.Claimable[owner] = v
	f.mu.Unlock()
}

// Claims returns a copy of the recorded SubmitClaim owners.
func (f *FakeGateway) Claims() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ClaimCalls...)
}

// Resolves returns a copy of the recorded ResolveInheritor calls.
func (f *FakeGateway) Resolves() []ResolveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ResolveCall(nil), f.ResolveCalls...)
}

func (f *FakeGateway) receipt() *ledger.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &ledger.Receipt{From: RelayerAddress, TxHash: fmt.Sprintf("0x%064x", f.seq), BlockNumber: uint64(f.seq)}
}
