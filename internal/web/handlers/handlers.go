package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/jredh-dev/foodloop/internal/auth"
	"github.com/jredh-dev/foodloop/internal/catalog"
	"github.com/jredh-dev/foodloop/internal/demand"
	"github.com/jredh-dev/foodloop/internal/lifecycle"
	"github.com/jredh-dev/foodloop/internal/requests"
	"github.com/jredh-dev/foodloop/pkg/models"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	catalog   *catalog.Reconciler
	lifecycle *lifecycle.Service
	requests  *requests.Service
	demand    *demand.Aggregator
	registry  *auth.Registry
	log       logr.Logger
}

// New creates a new Handler.
func New(c *catalog.Reconciler, l *lifecycle.Service, rq *requests.Service, d *demand.Aggregator, reg *auth.Registry, log logr.Logger) *Handler {
	return &Handler{catalog: c, lifecycle: l, requests: rq, demand: d, registry: reg, log: log}
}

// Mount registers the /api routes on r. authn must put a Principal in the
// request context.
func (h *Handler) Mount(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(authn)
		r.Get("/capabilities", h.Capabilities)

		r.Route("/retailer", func(r chi.Router) {
			r.Use(RequireRole(models.RoleRetailer))
			r.Get("/inventory", h.Inventory)
			r.Post("/inventory", h.AddStock)
			r.Delete("/inventory/{id}", h.RemoveItem)
			r.Post("/inventory/{id}/sell", h.Sell)
			r.Post("/inventory/{id}/list", h.List)
			r.Post("/inventory/{id}/ignore", h.IgnoreNotification)
			r.Get("/notifications", h.Notifications)
			r.Get("/requests", h.IncomingRequests)
			r.Post("/requests/{id}/approve", h.ApproveRequest)
			r.Post("/requests/{id}/ignore", h.IgnoreRequest)
		})

		r.Route("/ngo", func(r chi.Router) {
			r.Use(RequireRole(models.RoleNgo))
			r.Get("/listings", h.Listings)
			r.Post("/requests", h.CreateRequest)
			r.Get("/requests", h.MyRequests)
		})

		r.Route("/farmer", func(r chi.Router) {
			r.Use(RequireRole(models.RoleFarmer))
			r.Get("/forecast", h.Forecast)
		})
	})
}

// Capabilities lists the commands the caller may run.
// GET /api/capabilities?q=
func (h *Handler) Capabilities(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	jsonOK(w, http.StatusOK, h.registry.Search(r.URL.Query().Get("q"), p))
}

// --- Retailer ---

type itemResp struct {
	ID             int64             `json:"id"`
	FoodID         int64             `json:"food_id"`
	Name           string            `json:"name"`
	Quantity       decimal.Decimal   `json:"quantity"`
	BestBefore     time.Time         `json:"best_before"`
	ExpiresAt      time.Time         `json:"expires_at"`
	Status         models.FoodStatus `json:"status"`
	IsRefrigerated bool              `json:"is_refrigerated"`
	Message        string            `json:"message,omitempty"`
}

func newItemResp(itemID int64, f *models.Food) itemResp {
	return itemResp{
		ID:             itemID,
		FoodID:         f.ID,
		Name:           f.Name,
		Quantity:       f.Quantity,
		BestBefore:     f.BestBefore,
		ExpiresAt:      f.ExpiresAt,
		Status:         f.Status,
		IsRefrigerated: f.IsRefrigerated,
	}
}

// Inventory lists the caller's stock.
// GET /api/retailer/inventory
func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	views, err := h.lifecycle.Inventory(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, "list inventory", err)
		return
	}
	out := make([]itemResp, 0, len(views))
	for i := range views {
		out = append(out, newItemResp(views[i].ItemID, &views[i].Food))
	}
	jsonOK(w, http.StatusOK, out)
}

type addStockReq struct {
	Name           string              `json:"name"`
	Quantity       decimal.NullDecimal `json:"quantity"`
	IsRefrigerated bool                `json:"is_refrigerated"`
}

// AddStock creates or merges a food for the caller.
// POST /api/retailer/inventory
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req addStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || !req.Quantity.Valid {
		h.writeError(w, "add stock", fmt.Errorf("%w: name and quantity are required", models.ErrMissingField))
		return
	}
	p, _ := auth.FromContext(r.Context())
	res, err := h.catalog.Reconcile(r.Context(), *p.Owner(time.Now()), catalog.Submission{
		Name:           req.Name,
		Quantity:       req.Quantity.Decimal,
		IsRefrigerated: req.IsRefrigerated,
	})
	if err != nil {
		h.writeError(w, "add stock", err)
		return
	}

	resp := newItemResp(res.Item.ID, res.Food)
	resp.Message = res.Message
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	jsonOK(w, status, resp)
}

type sellReq struct {
	Quantity decimal.NullDecimal `json:"quantity"`
}

// Sell records a sale.
// POST /api/retailer/inventory/{id}/sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req sellReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Quantity.Valid {
		h.writeError(w, "sell", fmt.Errorf("%w: quantity", models.ErrMissingField))
		return
	}
	p, _ := auth.FromContext(r.Context())
	food, err := h.lifecycle.Sell(r.Context(), p.ID, id, req.Quantity.Decimal)
	if err != nil {
		h.writeError(w, "sell", err)
		return
	}
	jsonOK(w, http.StatusOK, map[string]interface{}{
		"message":            fmt.Sprintf("Sold %s of %s", req.Quantity.Decimal, food.Name),
		"remaining_quantity": food.Quantity,
	})
}

// List offers an item's food to NGOs.
// POST /api/retailer/inventory/{id}/list
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := auth.FromContext(r.Context())
	food, err := h.lifecycle.List(r.Context(), p.ID, id)
	if err != nil {
		h.writeError(w, "list", err)
		return
	}
	resp := newItemResp(id, food)
	resp.Message = "Food listed for NGOs"
	jsonOK(w, http.StatusOK, resp)
}

// IgnoreNotification acknowledges a past-best-before notification.
// POST /api/retailer/inventory/{id}/ignore
func (h *Handler) IgnoreNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := auth.FromContext(r.Context())
	if err := h.lifecycle.IgnoreNotification(r.Context(), p.ID, id); err != nil {
		h.writeError(w, "ignore notification", err)
		return
	}
	jsonOK(w, http.StatusOK, map[string]string{"message": "Notification ignored"})
}

// RemoveItem stops the caller stocking a food.
// DELETE /api/retailer/inventory/{id}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := auth.FromContext(r.Context())
	if err := h.lifecycle.Remove(r.Context(), p.ID, id); err != nil {
		h.writeError(w, "remove item", err)
		return
	}
	jsonOK(w, http.StatusOK, map[string]string{"message": "Item removed successfully"})
}

// Notifications runs the best-before check for the caller.
// GET /api/retailer/notifications
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	notes, err := h.lifecycle.ExpireCheck(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, "notifications", err)
		return
	}
	if notes == nil {
		notes = []lifecycle.Notification{}
	}
	jsonOK(w, http.StatusOK, notes)
}

// IncomingRequests lists claims on the caller's items.
// GET /api/retailer/requests
func (h *Handler) IncomingRequests(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	views, err := h.requests.ListForOwner(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, "list incoming requests", err)
		return
	}
	if views == nil {
		views = []models.RequestView{}
	}
	jsonOK(w, http.StatusOK, views)
}

// ApproveRequest accepts a claim.
// POST /api/retailer/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := auth.FromContext(r.Context())
	req, err := h.lifecycle.Approve(r.Context(), p.ID, id)
	if err != nil {
		h.writeError(w, "approve request", err)
		return
	}
	jsonOK(w, http.StatusOK, map[string]interface{}{"message": "Request approved", "request": req})
}

// IgnoreRequest declines a claim.
// POST /api/retailer/requests/{id}/ignore
func (h *Handler) IgnoreRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := auth.FromContext(r.Context())
	req, err := h.lifecycle.Ignore(r.Context(), p.ID, id)
	if err != nil {
		h.writeError(w, "ignore request", err)
		return
	}
	jsonOK(w, http.StatusOK, map[string]interface{}{"message": "Request ignored", "request": req})
}

// --- NGO ---

// Listings returns listed food in the caller's pincode.
// GET /api/ngo/listings
func (h *Handler) Listings(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	listings, err := h.requests.Nearby(r.Context(), p.Pincode)
	if err != nil {
		h.writeError(w, "nearby listings", err)
		return
	}
	if listings == nil {
		listings = []models.Listing{}
	}
	jsonOK(w, http.StatusOK, listings)
}

type createRequestReq struct {
	InventoryItemID int64               `json:"inventory_item_id"`
	Quantity        decimal.NullDecimal `json:"quantity"`
	PickupDate      string              `json:"pickup_date"`
	Notes           string              `json:"notes"`
}

// CreateRequest files a claim.
// POST /api/ngo/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, _ := auth.FromContext(r.Context())
	created, err := h.requests.Create(r.Context(), p.ID, requests.Draft{
		InventoryItemID: req.InventoryItemID,
		Quantity:        req.Quantity,
		PickupDate:      req.PickupDate,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(w, "create request", err)
		return
	}
	jsonOK(w, http.StatusCreated, map[string]interface{}{"message": "Request created", "request": created})
}

// MyRequests lists the caller's claims.
// GET /api/ngo/requests
func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	views, err := h.requests.ListMine(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, "list my requests", err)
		return
	}
	if views == nil {
		views = []models.RequestView{}
	}
	jsonOK(w, http.StatusOK, views)
}

// --- Farmer ---

// Forecast returns regional demand for the caller's pincode.
// GET /api/farmer/forecast
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	f, err := h.demand.Forecast(r.Context(), p.Pincode)
	if err != nil {
		h.writeError(w, "forecast", err)
		return
	}
	jsonOK(w, http.StatusOK, f)
}

// --- Helpers ---

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(err, op)
		jsonError(w, "internal error", status)
		return
	}
	h.log.V(1).Info("request rejected", "op", op, "status", status, "error", err.Error())
	jsonError(w, err.Error(), status)
}

// StatusFor returns the HTTP status for a domain error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrExpired),
		errors.Is(err, models.ErrInvalidEstimate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func jsonOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
