package api

import (
	"github.com/starford/heirloom/internal/claim"
	"github.com/starford/heirloom/internal/models"
	"github.com/starford/heirloom/internal/planservice"
)

// CreatePlanRequest is the request body for creating a plan.
type CreatePlanRequest = planservice.CreatePlanInput

// UpdatePlanRequest is the request body for updating a plan.
type UpdatePlanRequest = planservice.UpdatePlanInput

// CheckInRequest is the request body for POST /check-ins.
type CheckInRequest struct {
	OwnerAddress string `json:"owner_address" example:"0x1111111111111111111111111111111111111111" validate:"required"`
	TriggeredBy  string `json:"triggered_by,omitempty" example:"dashboard"`
	Note         string `json:"note,omitempty" example:"weekly check"`
}

// CheckInResponse is returned after a check-in.
type CheckInResponse = planservice.CheckInResult

// StatusResponse is the liveness view of a plan.
type StatusResponse = models.Status

// ActivityListResponse wraps the audit log.
type ActivityListResponse struct {
	Activities []models.Activity `json:"activities" validate:"required"`
}

// CheckInListResponse wraps the check-in log.
type CheckInListResponse struct {
	CheckIns []models.CheckIn `json:"check_ins" validate:"required"`
}

// LookupRequest starts a secret claim.
type LookupRequest struct {
	OwnerEmail       string `json:"owner_email" example:"owner@example.com" validate:"required"`
	BeneficiaryEmail string `json:"beneficiary_email,omitempty" example:"heir@example.com"`
}

// LookupResponse carries the question to answer.
type LookupResponse = claim.LookupResult

// VerifyRequest checks a secret answer.
type VerifyRequest struct {
	OwnerAddress   string `json:"owner_address" validate:"required"`
	InheritorIndex *int   `json:"inheritor_index" validate:"required"`
	SecretAnswer   string `json:"secret_answer" validate:"required"`
}

// VerifyResponse is returned when the answer matches.
type VerifyResponse struct {
	Valid bool `json:"valid" example:"true"`
}

// SubmitRequest binds a wallet to a secret-verified inheritor slot.
type SubmitRequest struct {
	OwnerAddress      string `json:"owner_address" validate:"required"`
	InheritorIndex    *int   `json:"inheritor_index" validate:"required"`
	SecretAnswer      string `json:"secret_answer" validate:"required"`
	BeneficiaryWallet string `json:"beneficiary_wallet" validate:"required"`
}

// SubmitResponse reports the ledger outcome of a submit.
type SubmitResponse = claim.SubmitResult
