package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/heirloom/internal/planservice"
)

// Handler holds the plan and check-in route handlers.
type Handler struct {
	svc *planservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *planservice.Service) *Handler {
	return &Handler{svc: svc}
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// CreatePlan handles POST /api/plans.
//
//	@Summary		Create an inheritance plan
//	@Tags			plans
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePlanRequest	true	"Plan to create"
//	@Success		201		{object}	models.Plan
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plans [post]
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan, err := h.svc.CreatePlan(r.Context(), req)
	if err != nil {
		writeError(w, r, "create plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// GetPlan handles GET /api/plans/{owner}.
//
//	@Summary		Get a plan by owner address
//	@Tags			plans
//	@Produce		json
//	@Param			owner	path		string	true	"Owner address"
//	@Success		200		{object}	models.Plan
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plans/{owner} [get]
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.GetPlan(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, r, "get plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// UpdatePlan handles PUT /api/plans/{owner}.
//
//	@Summary		Replace parts of a plan
//	@Tags			plans
//	@Accept			json
//	@Produce		json
//	@Param			owner	path		string				true	"Owner address"
//	@Param			body	body		UpdatePlanRequest	true	"Fields to replace"
//	@Success		200		{object}	models.Plan
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plans/{owner} [put]
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan, err := h.svc.UpdatePlan(r.Context(), chi.URLParam(r, "owner"), req)
	if err != nil {
		writeError(w, r, "update plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Status handles GET /api/plans/{owner}/status.
//
//	@Summary		Liveness status of a plan
//	@Tags			plans
//	@Produce		json
//	@Param			owner	path		string	true	"Owner address"
//	@Success		200		{object}	StatusResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/plans/{owner}/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, r, "plan status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListActivities handles GET /api/plans/{owner}/activities.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := h.svc.ListActivities(r.Context(), chi.URLParam(r, "owner"), limitParam(r))
	if err != nil {
		writeError(w, r, "list activities", err)
		return
	}
	writeJSON(w, http.StatusOK, ActivityListResponse{Activities: acts})
}

// ListCheckIns handles GET /api/plans/{owner}/check-ins.
func (h *Handler) ListCheckIns(w http.ResponseWriter, r *http.Request) {
	cis, err := h.svc.ListCheckIns(r.Context(), chi.URLParam(r, "owner"), limitParam(r))
	if err != nil {
		writeError(w, r, "list check-ins", err)
		return
	}
	writeJSON(w, http.StatusOK, CheckInListResponse{CheckIns: cis})
}

// CheckIn handles POST /api/check-ins.
//
//	@Summary		Record owner proof of life
//	@Tags			check-ins
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CheckInRequest	true	"Check-in"
//	@Success		201		{object}	CheckInResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/check-ins [post]
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OwnerAddress == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("owner_address is required"))
		return
	}
	res, err := h.svc.CheckIn(r.Context(), req.OwnerAddress, req.TriggeredBy, req.Note)
	if err != nil {
		writeError(w, r, "check-in", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
