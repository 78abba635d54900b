package database

import (
	"context"
	"database/sql"

	"github.com/jredh-dev/foodloop/pkg/models"
)

// --- Inventory item operations ---

func scanItem(row interface{ Scan(...interface{}) error }) (*models.InventoryItem, error) {
	it := &models.InventoryItem{}
	err := row.Scan(&it.ID, &it.OwnerID, &it.FoodID, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return it, err
}

// CreateItem links an owner to a food and sets the item's ID.
func (q *Queries) CreateItem(ctx context.Context, it *models.InventoryItem) error {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO inventory_items (owner_id, food_id, created_at) VALUES (?, ?, ?)`,
		it.OwnerID, it.FoodID, it.CreatedAt,
	)
	if err != nil {
		return mapConstraint(err)
	}
	it.ID, err = res.LastInsertId()
	return err
}

// ItemByID returns an inventory item, or (nil, nil).
func (q *Queries) ItemByID(ctx context.Context, id int64) (*models.InventoryItem, error) {
	return scanItem(q.q.QueryRowContext(ctx,
		`SELECT id, owner_id, food_id, created_at FROM inventory_items WHERE id = ?`, id))
}

// ItemByOwnerAndFood returns the owner's link to a food, or (nil, nil).
func (q *Queries) ItemByOwnerAndFood(ctx context.Context, ownerID string, foodID int64) (*models.InventoryItem, error) {
	return scanItem(q.q.QueryRowContext(ctx,
		`SELECT id, owner_id, food_id, created_at FROM inventory_items WHERE owner_id = ? AND food_id = ?`,
		ownerID, foodID))
}

// DeleteItem removes an owner's link. The food and any claims stay.
func (q *Queries) DeleteItem(ctx context.Context, id int64) error {
	_, err := q.q.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
	return err
}

// InventoryByOwner returns every item the owner holds with its food, oldest first.
func (q *Queries) InventoryByOwner(ctx context.Context, ownerID string) ([]models.InventoryView, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT i.id, i.owner_id,
		       f.id, f.name, f.name_key, f.quantity, f.best_before, f.expires_at,
		       f.status, f.is_refrigerated, f.version, f.created_at
		FROM inventory_items i
		JOIN foods f ON f.id = i.food_id
		WHERE i.owner_id = ?
		ORDER BY i.id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.InventoryView
	for rows.Next() {
		var v models.InventoryView
		f := &v.Food
		if err := rows.Scan(&v.ItemID, &v.OwnerID,
			&f.ID, &f.Name, &f.NameKey, &f.Quantity, &f.BestBefore, &f.ExpiresAt,
			&f.Status, &f.IsRefrigerated, &f.Version, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListingsByPincode returns items in Listing status with stock left,
// held by owners whose mirrored pincode matches.
func (q *Queries) ListingsByPincode(ctx context.Context, pincode string) ([]models.Listing, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT i.id, f.name, f.quantity, f.best_before, f.expires_at, o.city, o.pincode, o.contact
		FROM inventory_items i
		JOIN foods f  ON f.id = i.food_id
		JOIN owners o ON o.id = i.owner_id
		WHERE f.status = ? AND o.pincode = ? AND CAST(f.quantity AS REAL) > 0
		ORDER BY f.best_before ASC, i.id ASC`,
		string(models.FoodStatusListing), pincode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Quantity, &l.BestBefore, &l.ExpiresAt,
			&l.City, &l.Pincode, &l.RetailerContact); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
