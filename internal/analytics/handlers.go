package analytics

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"platepay/internal/common/api"
	"platepay/internal/common/middleware"
)

// Handler exposes the analytics queries over HTTP.
type Handler struct {
	agg *Aggregator
}

// NewHandler creates an analytics handler.
func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg}
}

// Routes returns the analytics routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/fees", h.FeeAnalytics)
	r.Get("/revenue", h.Revenue)
	r.Get("/trends", h.RevenueTrends)
	r.Get("/top-restaurants", h.TopRestaurants)

	return r
}

// FeeAnalytics handles GET /fees. Operators may query any scope; a
// restaurant may query only its own fees.
func (h *Handler) FeeAnalytics(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "actor required")
		return
	}

	restaurantID := r.URL.Query().Get("restaurant_id")
	if !actor.IsOperator() {
		if restaurantID == "" || !actor.CanAccessRestaurant(restaurantID) {
			api.Forbidden(w, "access denied")
			return
		}
	}

	report, err := h.agg.FeeAnalytics(r.Context(), r.URL.Query().Get("period"), restaurantID)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, report)
}

// Revenue handles GET /revenue. Operator only.
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	report, err := h.agg.Revenue(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, report)
}

// RevenueTrends handles GET /trends. Operator only.
func (h *Handler) RevenueTrends(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	groupBy := GroupBy(r.URL.Query().Get("group_by"))
	if groupBy == "" {
		groupBy = GroupByDay
	}

	report, err := h.agg.RevenueTrends(r.Context(), r.URL.Query().Get("period"), groupBy)
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, report)
}

// TopRestaurants handles GET /top-restaurants. Operator only.
func (h *Handler) TopRestaurants(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	ranked, err := h.agg.TopRestaurants(r.Context(), r.URL.Query().Get("period"), api.QueryInt(r, "limit", 10))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, ranked)
}

func requireOperator(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Unauthorized(w, "actor required")
		return false
	}
	if !actor.IsOperator() {
		api.Forbidden(w, "access denied")
		return false
	}
	return true
}
