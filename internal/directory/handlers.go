package directory

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"platepay/internal/common/api"
	"platepay/internal/common/database"
	"platepay/internal/common/middleware"
)

// Handler exposes directory administration over HTTP. Everything here is
// operator-only; restaurants and venues never manage their own records.
type Handler struct {
	store *Store
}

// NewHandler creates a directory handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Routes returns the directory routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/restaurants", h.CreateRestaurant)
	r.Get("/restaurants/{id}", h.GetRestaurant)
	r.Post("/venues", h.CreateVenue)
	r.Get("/venues/{id}", h.GetVenue)
	r.Post("/links", h.CreateLink)
	r.Put("/links/{id}/status", h.SetLinkStatus)

	r.Post("/restaurants/online", h.BulkSetOnline)
	r.Post("/menu-items/stock", h.BulkSetItemStock)

	return r
}

// CreateRestaurantRequest is the API request for registering a restaurant.
type CreateRestaurantRequest struct {
	Name            string      `json:"name" validate:"required,max=255"`
	PayoutAccountID string      `json:"payout_account_id" validate:"required"`
	Negotiated      bool        `json:"negotiated"`
	FeeOverride     FeeOverride `json:"fee_override"`
}

// CreateRestaurant handles POST /restaurants.
func (h *Handler) CreateRestaurant(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	var req CreateRestaurantRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	restaurant := &Restaurant{
		ID:              ulid.Make().String(),
		Name:            req.Name,
		PayoutAccountID: req.PayoutAccountID,
		Negotiated:      req.Negotiated,
		FeeOverride:     req.FeeOverride,
	}
	if err := h.store.CreateRestaurant(r.Context(), restaurant); err != nil {
		api.InternalError(w, "failed to create restaurant")
		return
	}

	api.WriteData(w, http.StatusCreated, restaurant)
}

// GetRestaurant handles GET /restaurants/{id}.
func (h *Handler) GetRestaurant(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	restaurant, err := h.store.GetRestaurant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, restaurant)
}

// CreateVenueRequest is the API request for registering a venue.
type CreateVenueRequest struct {
	Name                 string  `json:"name" validate:"required,max=255"`
	PayoutAccountID      string  `json:"payout_account_id" validate:"required"`
	DefaultFeePercentage float64 `json:"default_fee_percentage" validate:"gte=0,lte=100"`
}

// CreateVenue handles POST /venues.
func (h *Handler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	var req CreateVenueRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	venue := &Venue{
		ID:                   ulid.Make().String(),
		Name:                 req.Name,
		PayoutAccountID:      req.PayoutAccountID,
		DefaultFeePercentage: req.DefaultFeePercentage,
	}
	if err := h.store.CreateVenue(r.Context(), venue); err != nil {
		api.InternalError(w, "failed to create venue")
		return
	}

	api.WriteData(w, http.StatusCreated, venue)
}

// GetVenue handles GET /venues/{id}.
func (h *Handler) GetVenue(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	venue, err := h.store.GetVenue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, venue)
}

// CreateLinkRequest is the API request for linking a restaurant to a venue.
// New linkages always start pending.
type CreateLinkRequest struct {
	RestaurantID  string   `json:"restaurant_id" validate:"required"`
	VenueID       string   `json:"venue_id" validate:"required"`
	FeePercentage *float64 `json:"fee_percentage" validate:"omitempty,gte=0,lte=100"`
}

// CreateLink handles POST /links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	var req CreateLinkRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	link := &VenueLink{
		ID:            ulid.Make().String(),
		RestaurantID:  req.RestaurantID,
		VenueID:       req.VenueID,
		Status:        LinkPending,
		FeePercentage: req.FeePercentage,
	}
	if err := h.store.CreateLink(r.Context(), link); err != nil {
		if database.IsUniqueViolation(err) {
			api.Conflict(w, "linkage already exists for this restaurant and venue")
			return
		}
		if database.IsForeignKeyViolation(err) {
			api.NotFound(w, "restaurant or venue not found")
			return
		}
		api.InternalError(w, "failed to create linkage")
		return
	}

	api.WriteData(w, http.StatusCreated, link)
}

// SetLinkStatusRequest moves a linkage between pending, active and rejected.
type SetLinkStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active rejected"`
}

// SetLinkStatus handles PUT /links/{id}/status.
func (h *Handler) SetLinkStatus(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	var req SetLinkStatusRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	if err := h.store.SetLinkStatus(r.Context(), chi.URLParam(r, "id"), LinkStatus(req.Status)); err != nil {
		api.WriteDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, map[string]string{"status": req.Status})
}

// BulkRequest carries the identifiers and the flag value for a bulk update.
type BulkRequest struct {
	IDs   []string `json:"ids" validate:"required,min=1"`
	Value bool     `json:"value"`
}

// ChunkOutcome is the API shape of one chunk's result.
type ChunkOutcome struct {
	Index   int    `json:"index"`
	Size    int    `json:"size"`
	Updated int64  `json:"updated"`
	Error   string `json:"error,omitempty"`
}

func chunkOutcomes(results []ChunkResult) []ChunkOutcome {
	out := make([]ChunkOutcome, len(results))
	for i, res := range results {
		out[i] = ChunkOutcome{Index: res.Index, Size: res.Size, Updated: res.Updated}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	return out
}

// BulkSetOnline handles POST /restaurants/online. The update is chunked;
// the response reports each chunk separately and a failed chunk does not
// undo or stop the others.
func (h *Handler) BulkSetOnline(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	var req BulkRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	results := h.store.BulkSetOnline(r.Context(), req.IDs, req.Value)
	api.WriteData(w, http.StatusOK, chunkOutcomes(results))
}

// BulkSetItemStock handles POST /menu-items/stock, chunked the same way as
// BulkSetOnline.
func (h *Handler) BulkSetItemStock(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	var req BulkRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	results := h.store.BulkSetItemStock(r.Context(), req.IDs, req.Value)
	api.WriteData(w, http.StatusOK, chunkOutcomes(results))
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
