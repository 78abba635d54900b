// Package requests records NGO claims against listed stock and projects
// them for requesters and owners.
package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/jredh-dev/foodloop/internal/database"
	"github.com/jredh-dev/foodloop/internal/events"
	"github.com/jredh-dev/foodloop/pkg/models"
)

// Draft is an unvalidated claim. A zero InventoryItemID or an invalid
// Quantity means the field was not supplied.
type Draft struct {
	InventoryItemID int64
	Quantity        decimal.NullDecimal
	PickupDate      string
	Notes           string
}

// Service creates and lists food requests.
type Service struct {
	db     *database.DB
	events events.Publisher
	log    logr.Logger
	now    func() time.Time
}

// New creates a Service. A nil now uses time.Now.
func New(db *database.DB, pub events.Publisher, log logr.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, events: pub, log: log, now: now}
}

// Create files a pending claim. Requested quantity is not checked against
// the food's stock here or at approval.
func (s *Service) Create(ctx context.Context, requesterID string, d Draft) (*models.FoodRequest, error) {
	if d.InventoryItemID == 0 {
		return nil, fmt.Errorf("%w: inventory_item_id", models.ErrMissingField)
	}
	if !d.Quantity.Valid {
		return nil, fmt.Errorf("%w: quantity", models.ErrMissingField)
	}
	if !d.Quantity.Decimal.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", models.ErrInvalidInput)
	}
	pickup, err := ParsePickupDate(d.PickupDate)
	if err != nil {
		return nil, err
	}

	req := &models.FoodRequest{
		InventoryItemID: d.InventoryItemID,
		RequesterID:     requesterID,
		Quantity:        d.Quantity.Decimal,
		PickupDate:      pickup,
		Notes:           strings.TrimSpace(d.Notes),
		Status:          models.RequestStatusPending,
		CreatedAt:       s.now().UTC(),
	}
	err = s.db.WithTx(ctx, func(q *database.Queries) error {
		item, err := q.ItemByID(ctx, d.InventoryItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: inventory item %d", models.ErrNotFound, d.InventoryItemID)
		}
		return q.CreateRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	evt := events.New(events.RequestCreated, requesterID, req.CreatedAt)
	evt.RequestID = req.ID
	evt.ItemID = req.InventoryItemID
	evt.Quantity = req.Quantity.String()
	evt.Status = string(req.Status)
	events.PublishAfterCommit(ctx, s.events, s.log, evt)
	return req, nil
}

// ListMine returns the requester's claims in insertion order.
func (s *Service) ListMine(ctx context.Context, requesterID string) ([]models.RequestView, error) {
	return s.db.Queries().RequestsByRequester(ctx, requesterID)
}

// ListForOwner returns claims against the owner's items in insertion order.
func (s *Service) ListForOwner(ctx context.Context, ownerID string) ([]models.RequestView, error) {
	return s.db.Queries().RequestsForOwner(ctx, ownerID)
}

// Nearby returns listed stock held by retailers in pincode.
func (s *Service) Nearby(ctx context.Context, pincode string) ([]models.Listing, error) {
	if strings.TrimSpace(pincode) == "" {
		return nil, fmt.Errorf("%w: pincode", models.ErrMissingField)
	}
	return s.db.Queries().ListingsByPincode(ctx, pincode)
}

var pickupLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParsePickupDate reads an ISO-8601 timestamp. Values without a zone are
// taken as UTC. An empty string means no pickup date.
func ParsePickupDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range pickupLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: pickup_date %q, use YYYY-MM-DDTHH:MM:SS", models.ErrInvalidDateFormat, s)
}
