// Package catalog merges stock submissions into the shared food catalog.
// A name is created once, through the shelf-life oracle, and every later
// submission of the same name adds to that food and links the submitter.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/jredh-dev/foodloop/internal/database"
	"github.com/jredh-dev/foodloop/internal/events"
	"github.com/jredh-dev/foodloop/internal/metrics"
	"github.com/jredh-dev/foodloop/internal/oracle"
	"github.com/jredh-dev/foodloop/pkg/models"
)

const maxAttempts = 3

// ShelfLifeEstimator supplies dates for a food name seen for the first time.
type ShelfLifeEstimator interface {
	EstimateShelfLife(ctx context.Context, name, locale string, today time.Time) (oracle.Estimate, error)
}

// Submission is one owner's "I have this much of X".
type Submission struct {
	Name           string
	Quantity       decimal.Decimal
	IsRefrigerated bool
}

// Result describes what a submission did.
type Result struct {
	Food *models.Food
	Item *models.InventoryItem
	// Created is true when the owner got a new inventory link.
	Created bool
	// NewFood is true when the name entered the catalog with this submission.
	NewFood bool
	Message string
}

// Options configures a Reconciler.
type Options struct {
	// DefaultLocale is sent to the oracle when the owner has no city.
	DefaultLocale string
	Now           func() time.Time
}

// Reconciler creates or merges shared foods.
type Reconciler struct {
	db     *database.DB
	oracle ShelfLifeEstimator
	events events.Publisher
	log    logr.Logger
	opts   Options

	inflight singleflight.Group
}

// New creates a Reconciler.
func New(db *database.DB, est ShelfLifeEstimator, pub events.Publisher, log logr.Logger, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{db: db, oracle: est, events: pub, log: log, opts: opts}
}

// Reconcile adds sub to the catalog on behalf of owner.
func (r *Reconciler) Reconcile(ctx context.Context, owner models.Owner, sub Submission) (*Result, error) {
	name := DisplayName(sub.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name", models.ErrMissingField)
	}
	if !sub.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", models.ErrInvalidInput)
	}
	key := Key(name)

	var (
		res *Result
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err = r.reconcileOnce(ctx, owner, name, key, sub)
		if !errors.Is(err, models.ErrConflict) {
			break
		}
		metrics.RecordQuantityConflict()
		r.log.V(1).Info("catalog write lost a race, retrying", "name", name, "attempt", attempt)
	}
	if err != nil {
		metrics.RecordReconcile("error")
		return nil, err
	}

	switch {
	case res.NewFood:
		metrics.RecordReconcile("created")
	case res.Created:
		metrics.RecordReconcile("linked")
	default:
		metrics.RecordReconcile("merged")
	}

	typ := events.StockAdded
	if res.NewFood {
		typ = events.FoodCreated
	}
	evt := events.New(typ, owner.ID, r.opts.Now())
	evt.FoodID = res.Food.ID
	evt.ItemID = res.Item.ID
	evt.Quantity = res.Food.Quantity.String()
	evt.Status = string(res.Food.Status)
	events.PublishAfterCommit(ctx, r.events, r.log, evt)

	return res, nil
}

func (r *Reconciler) reconcileOnce(ctx context.Context, owner models.Owner, name, key string, sub Submission) (*Result, error) {
	existing, err := r.db.Queries().FoodByNameKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup food: %w", err)
	}

	// The oracle is slow; ask it before the write transaction opens.
	var est *oracle.Estimate
	if existing == nil {
		e, err := r.estimate(ctx, owner, name, key)
		if err != nil {
			return nil, err
		}
		est = &e
	}

	now := r.opts.Now().UTC()
	var res *Result
	err = r.db.WithTx(ctx, func(q *database.Queries) error {
		food, err := q.FoodByNameKey(ctx, key)
		if err != nil {
			return err
		}
		if food == nil {
			if est == nil {
				// Foods are never deleted, so this only happens if one was and
				// the estimate we skipped is needed after all.
				return fmt.Errorf("%w: food %q vanished", models.ErrConflict, name)
			}
			res, err = createFood(ctx, q, owner, name, key, sub, *est, now)
			return err
		}
		if est != nil {
			r.log.V(1).Info("food created concurrently, merging", "name", name, "food", food.ID)
		}
		res, err = mergeInto(ctx, q, owner, food, sub.Quantity, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Reconciler) estimate(ctx context.Context, owner models.Owner, name, key string) (oracle.Estimate, error) {
	locale := owner.City
	if locale == "" {
		locale = r.opts.DefaultLocale
	}
	today := r.opts.Now().UTC()
	// Calls are keyed by name only: concurrent first submitters share one
	// estimate, made with the first caller's locale, since they share the
	// food row too. The shared call must outlive any one caller; the
	// estimator applies its own timeout.
	ch := r.inflight.DoChan(key, func() (interface{}, error) {
		return r.oracle.EstimateShelfLife(context.WithoutCancel(ctx), name, locale, today)
	})
	select {
	case <-ctx.Done():
		return oracle.Estimate{}, fmt.Errorf("estimate shelf life for %q: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			r.log.Info("shelf-life estimate failed", "name", name, "error", res.Err.Error())
			return oracle.Estimate{}, fmt.Errorf("estimate shelf life for %q: %w", name, res.Err)
		}
		if res.Shared {
			r.log.V(1).Info("shared in-flight shelf-life estimate", "name", name)
		}
		return res.Val.(oracle.Estimate), nil
	}
}

func createFood(ctx context.Context, q *database.Queries, owner models.Owner, name, key string, sub Submission, est oracle.Estimate, now time.Time) (*Result, error) {
	food := &models.Food{
		Name:           name,
		NameKey:        key,
		Quantity:       sub.Quantity,
		BestBefore:     est.BestBefore,
		ExpiresAt:      est.ExpiresAt,
		Status:         models.FoodStatusSelling,
		IsRefrigerated: sub.IsRefrigerated,
		CreatedAt:      now,
	}
	if err := q.CreateFood(ctx, food); err != nil {
		return nil, fmt.Errorf("create food: %w", err)
	}
	item := &models.InventoryItem{OwnerID: owner.ID, FoodID: food.ID, CreatedAt: now}
	if err := q.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create inventory item: %w", err)
	}
	return &Result{
		Food:    food,
		Item:    item,
		Created: true,
		NewFood: true,
		Message: fmt.Sprintf("Added new food '%s'. Best before %s.", name, est.BestBefore.Format("2006-01-02")),
	}, nil
}

func mergeInto(ctx context.Context, q *database.Queries, owner models.Owner, food *models.Food, add decimal.Decimal, now time.Time) (*Result, error) {
	item, err := q.ItemByOwnerAndFood(ctx, owner.ID, food.ID)
	if err != nil {
		return nil, err
	}

	total := food.Quantity.Add(add)
	if err := q.SetFoodQuantity(ctx, food.ID, total, food.Version); err != nil {
		return nil, fmt.Errorf("add quantity: %w", err)
	}
	food.Quantity = total
	food.Version++

	if item != nil {
		return &Result{
			Food:    food,
			Item:    item,
			Message: fmt.Sprintf("Added %s to existing '%s'. Total quantity: %s", add, food.Name, total),
		}, nil
	}

	item = &models.InventoryItem{OwnerID: owner.ID, FoodID: food.ID, CreatedAt: now}
	if err := q.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create inventory item: %w", err)
	}
	return &Result{
		Food:    food,
		Item:    item,
		Created: true,
		Message: fmt.Sprintf("Added '%s' to your inventory.", food.Name),
	}, nil
}
