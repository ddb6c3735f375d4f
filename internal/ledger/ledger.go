// Package ledger is the single chokepoint for calls to the inheritance contract.
// One relayer key signs every transaction, so all mutating calls share one Lane.
package ledger

import (
	"context"
	"time"
)

// Gateway is the port the claim workflows talk to. Implementations must
// serialize mutating calls.
type Gateway interface {
	// Enabled reports whether the gateway is configured. A disabled gateway
	// answers every call with apperr.ErrDisabled.
	Enabled() bool
	// SubmitClaim sends claimInheritance(owner) and waits for the receipt.
	SubmitClaim(ctx context.Context, owner string) (*Receipt, error)
	// ResolveInheritor sends resolveInheritorWithSecret and waits for the receipt.
	ResolveInheritor(ctx context.Context, owner string, index int, beneficiary, answer string) (*Receipt, error)
	// GetClaimStatus is read-only.
	GetClaimStatus(ctx context.Context, owner string) (*ClaimStatus, error)
}

// Receipt summarizes a mined transaction.
type Receipt struct {
	// From is the relayer address that signed the transaction.
	From        string `json:"from"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

// ClaimStatus is the contract's view of an owner's plan.
type ClaimStatus struct {
	Claimable    bool      `json:"claimable"`
	NextDeadline time.Time `json:"next_deadline"`
}
