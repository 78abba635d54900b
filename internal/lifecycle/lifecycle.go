// Package lifecycle applies owner commands to inventory: selling, listing
// for NGOs, the past-best-before review, request resolution and removal.
//
// Quantity lives on the shared food row, so a sale by one owner is visible
// to every owner stocking the same name.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"github.com/jredh-dev/foodloop/internal/database"
	"github.com/jredh-dev/foodloop/internal/events"
	"github.com/jredh-dev/foodloop/internal/metrics"
	"github.com/jredh-dev/foodloop/pkg/models"
)

const maxAttempts = 3

// Notification asks an owner to act on stock that is past best-before.
type Notification struct {
	ItemID     int64           `json:"id"`
	FoodID     int64           `json:"food_id"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	BestBefore time.Time       `json:"best_before"`
	Message    string          `json:"message"`
	Options    []string        `json:"options"`
}

// Service runs lifecycle commands, one transaction each.
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

// Inventory returns every item the owner holds.
func (s *Service) Inventory(ctx context.Context, ownerID string) ([]models.InventoryView, error) {
	return s.db.Queries().InventoryByOwner(ctx, ownerID)
}

// Sell removes qty from the shared quantity of the item's food.
func (s *Service) Sell(ctx context.Context, ownerID string, itemID int64, qty decimal.Decimal) (*models.Food, error) {
	var food *models.Food
	err := s.retry(ctx, "sell", func(q *database.Queries) error {
		_, f, err := ownedItem(ctx, q, ownerID, itemID)
		if err != nil {
			return err
		}
		if !qty.IsPositive() {
			return fmt.Errorf("%w: quantity must be greater than 0", models.ErrInvalidInput)
		}
		if qty.GreaterThan(f.Quantity) {
			return fmt.Errorf("%w: %s requested, %s available", models.ErrInsufficientStock, qty, f.Quantity)
		}
		if f.Expired(s.now()) {
			return fmt.Errorf("%w: cannot sell %s after %s", models.ErrExpired, f.Name, f.ExpiresAt.Format(time.RFC3339))
		}
		remaining := f.Quantity.Sub(qty)
		if err := q.SetFoodQuantity(ctx, f.ID, remaining, f.Version); err != nil {
			return err
		}
		f.Quantity = remaining
		f.Version++
		food = f
		return nil
	})
	s.record("sell", err)
	if err != nil {
		return nil, err
	}

	evt := s.event(events.StockSold, ownerID, food, itemID)
	events.PublishAfterCommit(ctx, s.events, s.log, evt)
	return food, nil
}

// List offers the item's food to NGOs.
func (s *Service) List(ctx context.Context, ownerID string, itemID int64) (*models.Food, error) {
	var food *models.Food
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		_, f, err := ownedItem(ctx, q, ownerID, itemID)
		if err != nil {
			return err
		}
		if !f.Quantity.IsPositive() {
			return fmt.Errorf("%w: %s", models.ErrNoStock, f.Name)
		}
		if f.Expired(s.now()) {
			return fmt.Errorf("%w: %s expired at %s", models.ErrExpired, f.Name, f.ExpiresAt.Format(time.RFC3339))
		}
		if err := q.SetFoodStatus(ctx, f.ID, models.FoodStatusListing); err != nil {
			return err
		}
		f.Status = models.FoodStatusListing
		food = f
		return nil
	})
	s.record("list", err)
	if err != nil {
		return nil, err
	}

	events.PublishAfterCommit(ctx, s.events, s.log, s.event(events.FoodListed, ownerID, food, itemID))
	return food, nil
}

// ExpireCheck moves the owner's on-sale stock that is past best-before to
// the pending-action state and returns a notification for every item
// waiting on the owner.
func (s *Service) ExpireCheck(ctx context.Context, ownerID string) ([]Notification, error) {
	now := s.now()
	var (
		out     []Notification
		flipped []events.Event
	)
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		out, flipped = nil, nil
		inv, err := q.InventoryByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		for _, v := range inv {
			f := v.Food
			if !f.Quantity.IsPositive() || !f.PastBestBefore(now) {
				continue
			}
			switch f.Status {
			case models.FoodStatusSelling:
				if err := q.SetFoodStatus(ctx, f.ID, models.FoodStatusPendingAction); err != nil {
					return err
				}
				f.Status = models.FoodStatusPendingAction
				flipped = append(flipped, s.event(events.FoodPendingReview, ownerID, &f, v.ItemID))
			case models.FoodStatusPendingAction:
			default:
				continue
			}
			out = append(out, Notification{
				ItemID:     v.ItemID,
				FoodID:     f.ID,
				Name:       f.Name,
				Quantity:   f.Quantity,
				BestBefore: f.BestBefore,
				Message:    fmt.Sprintf("Your %s (remaining: %s) is past best before. List it or ignore.", f.Name, f.Quantity),
				Options:    []string{"List", "Ignore"},
			})
		}
		return nil
	})
	s.record("expire_check", err)
	if err != nil {
		return nil, err
	}
	if len(flipped) > 0 {
		s.log.V(1).Info("moved stock to pending action", "owner", ownerID, "count", len(flipped))
	}
	events.PublishAfterCommit(ctx, s.events, s.log, flipped...)
	return out, nil
}

// IgnoreNotification acknowledges a pending-action notification. Nothing
// changes; it only checks the item is still in a state that notifies.
func (s *Service) IgnoreNotification(ctx context.Context, ownerID string, itemID int64) error {
	_, f, err := ownedItem(ctx, s.db.Queries(), ownerID, itemID)
	if err == nil {
		switch f.Status {
		case models.FoodStatusSelling, models.FoodStatusListing, models.FoodStatusPendingAction:
		default:
			err = fmt.Errorf("%w: %s is %s", models.ErrConflict, f.Name, f.Status)
		}
	}
	s.record("ignore_notification", err)
	return err
}

// Approve accepts a pending request against one of the owner's items. The
// whole shared food moves to Approved.
func (s *Service) Approve(ctx context.Context, ownerID string, requestID int64) (*models.FoodRequest, error) {
	var (
		req  *models.FoodRequest
		food *models.Food
	)
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		r, item, err := ownedRequest(ctx, q, ownerID, requestID)
		if err != nil {
			return err
		}
		if err := q.ResolveRequest(ctx, r.ID, models.RequestStatusApproved); err != nil {
			return err
		}
		if err := q.SetFoodStatus(ctx, item.FoodID, models.FoodStatusApproved); err != nil {
			return err
		}
		if food, err = q.FoodByID(ctx, item.FoodID); err != nil {
			return err
		}
		r.Status = models.RequestStatusApproved
		req = r
		return nil
	})
	s.record("approve", err)
	if err != nil {
		return nil, err
	}

	evt := s.event(events.RequestApproved, ownerID, food, req.InventoryItemID)
	evt.RequestID = req.ID
	evt.Quantity = req.Quantity.String()
	events.PublishAfterCommit(ctx, s.events, s.log, evt)
	return req, nil
}

// Ignore declines a pending request. The food is untouched.
func (s *Service) Ignore(ctx context.Context, ownerID string, requestID int64) (*models.FoodRequest, error) {
	var req *models.FoodRequest
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		r, _, err := ownedRequest(ctx, q, ownerID, requestID)
		if err != nil {
			return err
		}
		if err := q.ResolveRequest(ctx, r.ID, models.RequestStatusIgnored); err != nil {
			return err
		}
		r.Status = models.RequestStatusIgnored
		req = r
		return nil
	})
	s.record("ignore", err)
	if err != nil {
		return nil, err
	}

	evt := events.New(events.RequestIgnored, ownerID, s.now())
	evt.RequestID = req.ID
	evt.ItemID = req.InventoryItemID
	evt.Quantity = req.Quantity.String()
	evt.Status = string(req.Status)
	events.PublishAfterCommit(ctx, s.events, s.log, evt)
	return req, nil
}

// Remove deletes the owner's link to a food. The food and its quantity stay.
func (s *Service) Remove(ctx context.Context, ownerID string, itemID int64) error {
	var food *models.Food
	err := s.db.WithTx(ctx, func(q *database.Queries) error {
		_, f, err := ownedItem(ctx, q, ownerID, itemID)
		if err != nil {
			return err
		}
		food = f
		return q.DeleteItem(ctx, itemID)
	})
	s.record("remove", err)
	if err != nil {
		return err
	}
	events.PublishAfterCommit(ctx, s.events, s.log, s.event(events.ItemRemoved, ownerID, food, itemID))
	return nil
}

// retry runs fn in a fresh transaction until it stops losing version races.
func (s *Service) retry(ctx context.Context, command string, fn func(q *database.Queries) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.db.WithTx(ctx, fn)
		if !errors.Is(err, models.ErrConflict) {
			return err
		}
		metrics.RecordQuantityConflict()
		s.log.V(1).Info("quantity write lost a race, retrying", "command", command, "attempt", attempt)
	}
	return err
}

func (s *Service) record(command string, err error) {
	metrics.RecordLifecycle(command, Result(err))
}

func (s *Service) event(typ, ownerID string, f *models.Food, itemID int64) events.Event {
	evt := events.New(typ, ownerID, s.now())
	evt.ItemID = itemID
	if f != nil {
		evt.FoodID = f.ID
		evt.Quantity = f.Quantity.String()
		evt.Status = string(f.Status)
	}
	return evt
}

// Result names the class of err for metrics and logs.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, models.ErrNoStock):
		return "no_stock"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrExpired):
		return "expired"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

// ownedItem loads an item and its food, checking the caller owns the item.
func ownedItem(ctx context.Context, q *database.Queries, ownerID string, itemID int64) (*models.InventoryItem, *models.Food, error) {
	item, err := q.ItemByID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, fmt.Errorf("%w: inventory item %d", models.ErrNotFound, itemID)
	}
	if item.OwnerID != ownerID {
		return nil, nil, fmt.Errorf("%w: inventory item %d belongs to another owner", models.ErrUnauthorized, itemID)
	}
	food, err := q.FoodByID(ctx, item.FoodID)
	if err != nil {
		return nil, nil, err
	}
	if food == nil {
		return nil, nil, fmt.Errorf("%w: food %d", models.ErrNotFound, item.FoodID)
	}
	return item, food, nil
}

// ownedRequest loads a pending request whose item the caller owns.
func ownedRequest(ctx context.Context, q *database.Queries, ownerID string, requestID int64) (*models.FoodRequest, *models.InventoryItem, error) {
	r, err := q.RequestByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if r == nil {
		return nil, nil, fmt.Errorf("%w: request %d", models.ErrNotFound, requestID)
	}
	item, err := q.ItemByID(ctx, r.InventoryItemID)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, fmt.Errorf("%w: inventory item %d for request %d", models.ErrNotFound, r.InventoryItemID, requestID)
	}
	if item.OwnerID != ownerID {
		return nil, nil, fmt.Errorf("%w: request %d is for another owner's item", models.ErrUnauthorized, requestID)
	}
	if r.Status != models.RequestStatusPending {
		return nil, nil, fmt.Errorf("%w: request %d is already %s", models.ErrConflict, requestID, r.Status)
	}
	return r, item, nil
}
