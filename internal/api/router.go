package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/heirloom/internal/claim"
	"github.com/starford/heirloom/internal/planservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced on plan routes.
// The claim routes are always public.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(plans *planservice.Service, saga *claim.Saga, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(plans)
	ch := NewClaimHandler(saga)

	r := chi.NewRouter()

	// Secret claim workflow.
	r.Post("/claims/lookup", ch.Lookup)
	r.Post("/claims/verify", ch.Verify)
	r.Post("/claims/submit", ch.Submit)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Plans.
		r.Post("/plans", h.CreatePlan)
		r.Get("/plans/{owner}", h.GetPlan)
		r.Put("/plans/{owner}", h.UpdatePlan)
		r.Get("/plans/{owner}/status", h.Status)
		r.Get("/plans/{owner}/activities", h.ListActivities)
		r.Get("/plans/{owner}/check-ins", h.ListCheckIns)

		// Check-ins.
		r.Post("/check-ins", h.CheckIn)

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
