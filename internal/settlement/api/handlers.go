// Package api exposes the settlement HTTP surface: charge creation, the
// charge-succeeded webhook and payment queries.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"platepay/internal/common/api"
	"platepay/internal/common/middleware"
	"platepay/internal/settlement"
)

// Settler drives a charged intent to settlement.
type Settler interface {
	Execute(ctx context.Context, intentID string) (*settlement.Result, error)
}

// Handler handles settlement HTTP requests.
type Handler struct {
	service *settlement.Service
	settler Settler
}

// NewHandler creates a settlement handler.
func NewHandler(service *settlement.Service, settler Settler) *Handler {
	return &Handler{service: service, settler: settler}
}

// Routes returns the settlement routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/charges", h.CreateCharge)
	r.Get("/intents/{id}", h.GetIntent)
	r.Post("/events/charge-succeeded", h.ChargeSucceeded)

	r.Get("/restaurants/{id}/payments", h.ListRestaurantPayments)
	r.Get("/venues/{id}/payments", h.ListVenuePayments)
	r.Get("/platform/payments", h.ListPlatformPayments)

	return r
}

// CreateCharge handles POST /charges.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "actor required")
		return
	}

	var req settlement.CreateChargeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	if !actor.CanAccessRestaurant(req.RestaurantID) {
		api.Forbidden(w, "access denied")
		return
	}

	resp, err := h.service.CreateCharge(r.Context(), req)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, resp)
}

// GetIntent handles GET /intents/{id}.
func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "actor required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "intent ID required")
		return
	}

	intent, err := h.service.GetIntent(r.Context(), id)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	if !actor.CanAccessRestaurant(intent.RestaurantID) {
		api.Forbidden(w, "access denied")
		return
	}

	api.WriteData(w, http.StatusOK, intent)
}

// ChargeSucceededRequest is the processor's charge-succeeded notification.
type ChargeSucceededRequest struct {
	IntentID string `json:"intent_id" validate:"required"`
}

// ChargeSucceeded handles POST /events/charge-succeeded. The processor may
// deliver the same event more than once; settlement is idempotent, so replays
// return the recorded outcome without moving money again.
func (h *Handler) ChargeSucceeded(w http.ResponseWriter, r *http.Request) {
	var req ChargeSucceededRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	result, err := h.settler.Execute(r.Context(), req.IntentID)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, result)
}

// ListRestaurantPayments handles GET /restaurants/{id}/payments.
func (h *Handler) ListRestaurantPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "actor required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "restaurant ID required")
		return
	}

	views, err := h.service.ListRestaurantPayments(r.Context(), actor, id, recordQuery(r))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, views)
}

// ListVenuePayments handles GET /venues/{id}/payments.
func (h *Handler) ListVenuePayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "actor required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "venue ID required")
		return
	}

	views, err := h.service.ListVenuePayments(r.Context(), actor, id, recordQuery(r))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, views)
}

// ListPlatformPayments handles GET /platform/payments. Operator only.
func (h *Handler) ListPlatformPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "actor required")
		return
	}

	views, err := h.service.ListPlatformPayments(r.Context(), actor, recordQuery(r))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, views)
}

func recordQuery(r *http.Request) settlement.RecordQuery {
	q := settlement.RecordQuery{
		Limit: api.QueryInt(r, "limit", 50),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			q.From = t
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			q.To = t
		}
	}
	return q
}
