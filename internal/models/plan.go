// Package models defines the domain types for Heirloom.
package models

import "time"

// ZeroAddress marks an unresolved inheritor slot and the native token entry.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// TokenType enumerates tracked asset kinds.
type TokenType string

const (
	TokenERC20  TokenType = "ERC20"
	TokenHTS    TokenType = "HTS"
	TokenNative TokenType = "NATIVE"
)

// ActivityType enumerates audit log entry kinds.
type ActivityType string

const (
	ActivityPlanCreated    ActivityType = "PLAN_CREATED"
	ActivityPlanUpdated    ActivityType = "PLAN_UPDATED"
	ActivityCheckIn        ActivityType = "CHECK_IN"
	ActivityClaimTriggered ActivityType = "CLAIM_TRIGGERED"
)

// Plan is one owner's inheritance plan. OwnerAddress is the natural key.
type Plan struct {
	OwnerAddress           string      `json:"owner_address"`
	OwnerEmail             string      `json:"owner_email,omitempty"`
	Inheritors             []Inheritor `json:"inheritors"`
	Tokens                 []Token     `json:"tokens"`
	CheckInIntervalSeconds int64       `json:"check_in_interval_seconds"`
	LastCheckInAt          time.Time   `json:"last_check_in_at"`
	IsClaimInitiated       bool        `json:"is_claim_initiated"`
	Version                int64       `json:"-"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// Inheritor is a beneficiary slot. Its position in Plan.Inheritors is the
// index the ledger contract uses.
//
// Plan input accepts either an address or a secret, never both. Once a secret
// slot is resolved it keeps SecretAnswerHash next to the bound Address, so a
// repeated claim for the slot fails as already resolved rather than as a slot
// without a secret.
type Inheritor struct {
	Address             string `json:"address"`
	SharePercentage     int    `json:"share_percentage"`
	Name                string `json:"name,omitempty"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
	SecretQuestion      string `json:"secret_question,omitempty"`
	SecretAnswerHash    string `json:"-"`
	ShareSecretQuestion bool   `json:"share_secret_question"`
}

// Pending reports whether the slot still waits for a wallet bound through a secret answer.
func (i Inheritor) Pending() bool {
	return i.SecretAnswerHash != "" && (i.Address == "" || i.Address == ZeroAddress)
}

// Resolved reports whether a non-zero wallet address is bound to the slot.
func (i Inheritor) Resolved() bool {
	return i.Address != "" && i.Address != ZeroAddress
}

// Token is a tracked asset descriptor.
type Token struct {
	Address string    `json:"address"`
	Type    TokenType `json:"type"`
}

// Activity is an append-only audit log entry.
type Activity struct {
	ID           string         `json:"id"`
	OwnerAddress string         `json:"owner_address"`
	Type         ActivityType   `json:"type"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// CheckIn is an append-only liveness log entry.
type CheckIn struct {
	ID                string    `json:"id"`
	OwnerAddress      string    `json:"owner_address"`
	Timestamp         time.Time `json:"timestamp"`
	SecondsSinceLast  int64     `json:"seconds_since_last"`
	TimelinessPercent int       `json:"timeliness_percent"`
	TriggeredBy       string    `json:"triggered_by"`
	Note              string    `json:"note,omitempty"`
}

// Status is the liveness view of a plan at a point in time.
type Status struct {
	NextDueAt        time.Time `json:"next_due_at"`
	SecondsUntilDue  int64     `json:"seconds_until_due"`
	IsOverdue        bool      `json:"is_overdue"`
	IsClaimInitiated bool      `json:"is_claim_initiated"`
}
