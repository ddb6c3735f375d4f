package api

import (
	"net/http"

	"github.com/starford/heirloom/internal/claim"
)

// ClaimHandler serves the beneficiary secret-claim steps. These routes are
// public: beneficiaries hold no API token.
type ClaimHandler struct {
	saga *claim.Saga
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(saga *claim.Saga) *ClaimHandler {
	return &ClaimHandler{saga: saga}
}

// Lookup handles POST /api/claims/lookup.
//
//	@Summary		Find the secret question for a pending beneficiary
//	@Tags			claims
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LookupRequest	true	"Owner and beneficiary emails"
//	@Success		200		{object}	LookupResponse
//	@Failure		404		{object}	errResponse
//	@Router			/claims/lookup [post]
func (h *ClaimHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.saga.Lookup(r.Context(), req.OwnerEmail, req.BeneficiaryEmail)
	if err != nil {
		writeError(w, r, "claim lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Verify handles POST /api/claims/verify.
//
//	@Summary		Check a secret answer without side effects
//	@Tags			claims
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VerifyRequest	true	"Answer to check"
//	@Success		200		{object}	VerifyResponse
//	@Failure		401		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/claims/verify [post]
func (h *ClaimHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerAddress == "" || req.InheritorIndex == nil || req.SecretAnswer == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("owner_address, inheritor_index and secret_answer are required"))
		return
	}
	if err := h.saga.Verify(r.Context(), req.OwnerAddress, *req.InheritorIndex, req.SecretAnswer); err != nil {
		writeError(w, r, "claim verify", err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: true})
}

// Submit handles POST /api/claims/submit.
//
//	@Summary		Bind a wallet and claim if the plan is claimable
//	@Tags			claims
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SubmitRequest	true	"Answer and wallet"
//	@Success		200		{object}	SubmitResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Router			/claims/submit [post]
func (h *ClaimHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerAddress == "" || req.InheritorIndex == nil || req.SecretAnswer == "" || req.BeneficiaryWallet == "" {
		writeJSON(w, http.StatusBadRequest,
			errorBody("owner_address, inheritor_index, secret_answer and beneficiary_wallet are required"))
		return
	}
	res, err := h.saga.Submit(r.Context(), req.OwnerAddress, *req.InheritorIndex, req.SecretAnswer, req.BeneficiaryWallet)
	if err != nil {
		writeError(w, r, "claim submit", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
