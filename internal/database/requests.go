package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jredh-dev/foodloop/pkg/models"
)

// --- Food request operations ---

// CreateRequest inserts a pending claim and sets its ID.
func (q *Queries) CreateRequest(ctx context.Context, r *models.FoodRequest) error {
	if r.Status == "" {
		r.Status = models.RequestStatusPending
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO food_requests (inventory_item_id, requester_id, quantity, pickup_date, notes, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.InventoryItemID, r.RequesterID, r.Quantity, r.PickupDate, r.Notes, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

// RequestByID returns a request, or (nil, nil).
func (q *Queries) RequestByID(ctx context.Context, id int64) (*models.FoodRequest, error) {
	r := &models.FoodRequest{}
	var pickup sql.NullTime
	err := q.q.QueryRowContext(ctx, `
		SELECT id, inventory_item_id, requester_id, quantity, pickup_date, notes, status, created_at
		FROM food_requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.InventoryItemID, &r.RequesterID, &r.Quantity, &pickup, &r.Notes, &r.Status, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pickup.Valid {
		t := pickup.Time
		r.PickupDate = &t
	}
	return r, nil
}

// ResolveRequest moves a pending request to status. A request that is no
// longer pending yields models.ErrConflict.
func (q *Queries) ResolveRequest(ctx context.Context, id int64, status models.RequestStatus) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE food_requests SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, string(models.RequestStatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: request %d already resolved", models.ErrConflict, id)
	}
	return nil
}

const requestViewSelect = `
	SELECT r.id, r.inventory_item_id, r.requester_id, r.quantity, r.pickup_date, r.notes, r.status, r.created_at,
	       COALESCE(i.owner_id, ''), COALESCE(f.id, 0), COALESCE(f.name, ''), COALESCE(f.quantity, '0')
	FROM food_requests r
	LEFT JOIN inventory_items i ON i.id = r.inventory_item_id
	LEFT JOIN foods f ON f.id = i.food_id`

func (q *Queries) requestViews(ctx context.Context, query string, args ...interface{}) ([]models.RequestView, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RequestView
	for rows.Next() {
		var v models.RequestView
		var pickup sql.NullTime
		r := &v.Request
		if err := rows.Scan(&r.ID, &r.InventoryItemID, &r.RequesterID, &r.Quantity, &pickup, &r.Notes,
			&r.Status, &r.CreatedAt, &v.OwnerID, &v.FoodID, &v.FoodName, &v.FoodQuantity); err != nil {
			return nil, err
		}
		if pickup.Valid {
			t := pickup.Time
			r.PickupDate = &t
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RequestsByRequester returns every claim a requester filed in insertion order.
// Claims whose item has since been removed come back with an empty food.
func (q *Queries) RequestsByRequester(ctx context.Context, requesterID string) ([]models.RequestView, error) {
	return q.requestViews(ctx, requestViewSelect+` WHERE r.requester_id = ? ORDER BY r.id ASC`, requesterID)
}

// RequestsForOwner returns claims against items the owner still holds in insertion order.
func (q *Queries) RequestsForOwner(ctx context.Context, ownerID string) ([]models.RequestView, error) {
	return q.requestViews(ctx, requestViewSelect+` WHERE i.owner_id = ? ORDER BY r.id ASC`, ownerID)
}

// DemandByPincode returns every claim against items held by owners in
// pincode, in insertion order.
func (q *Queries) DemandByPincode(ctx context.Context, pincode string) ([]models.DemandRow, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT f.name, r.quantity, r.created_at
		FROM food_requests r
		JOIN inventory_items i ON i.id = r.inventory_item_id
		JOIN foods f  ON f.id = i.food_id
		JOIN owners o ON o.id = i.owner_id
		WHERE o.pincode = ?
		ORDER BY r.id ASC`, pincode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DemandRow
	for rows.Next() {
		var d models.DemandRow
		if err := rows.Scan(&d.Name, &d.Quantity, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
