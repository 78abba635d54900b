package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jredh-dev/foodloop/pkg/models"
)

// --- Owner operations ---

// UpsertOwner stores the identity provider's current profile for an owner.
func (q *Queries) UpsertOwner(ctx context.Context, o *models.Owner) error {
	const stmt = `INSERT INTO owners (id, email, city, pincode, contact, updated_at)
	              VALUES (?, ?, ?, ?, ?, ?)
	              ON CONFLICT(id) DO UPDATE SET
	                email = excluded.email, city = excluded.city, pincode = excluded.pincode,
	                contact = excluded.contact, updated_at = excluded.updated_at`
	_, err := q.q.ExecContext(ctx, stmt, o.ID, o.Email, o.City, o.Pincode, o.Contact, o.UpdatedAt)
	return err
}

// OwnerByID looks up a mirrored profile. Returns (nil, nil) when absent.
func (q *Queries) OwnerByID(ctx context.Context, id string) (*models.Owner, error) {
	o := &models.Owner{}
	err := q.q.QueryRowContext(ctx,
		`SELECT id, email, city, pincode, contact, updated_at FROM owners WHERE id = ?`, id,
	).Scan(&o.ID, &o.Email, &o.City, &o.Pincode, &o.Contact, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// --- Food operations ---

const foodColumns = `id, name, name_key, quantity, best_before, expires_at, status, is_refrigerated, version, created_at`

func scanFood(row interface{ Scan(...interface{}) error }) (*models.Food, error) {
	f := &models.Food{}
	err := row.Scan(
		&f.ID, &f.Name, &f.NameKey, &f.Quantity, &f.BestBefore, &f.ExpiresAt,
		&f.Status, &f.IsRefrigerated, &f.Version, &f.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

// FoodByID returns a food by ID, or (nil, nil).
func (q *Queries) FoodByID(ctx context.Context, id int64) (*models.Food, error) {
	return scanFood(q.q.QueryRowContext(ctx, `SELECT `+foodColumns+` FROM foods WHERE id = ?`, id))
}

// FoodByNameKey returns the food whose canonical name matches key, or (nil, nil).
func (q *Queries) FoodByNameKey(ctx context.Context, key string) (*models.Food, error) {
	return scanFood(q.q.QueryRowContext(ctx, `SELECT `+foodColumns+` FROM foods WHERE name_key = ?`, key))
}

// CreateFood inserts a new food and sets its ID.
func (q *Queries) CreateFood(ctx context.Context, f *models.Food) error {
	const stmt = `INSERT INTO foods (name, name_key, quantity, best_before, expires_at, status, is_refrigerated, version, created_at)
	              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := q.q.ExecContext(ctx, stmt,
		f.Name, f.NameKey, f.Quantity, f.BestBefore, f.ExpiresAt,
		string(f.Status), f.IsRefrigerated, f.Version, f.CreatedAt,
	)
	if err != nil {
		return mapConstraint(err)
	}
	f.ID, err = res.LastInsertId()
	return err
}

// SetFoodQuantity is the only write path for the shared quantity counter.
// The update applies only if the row still carries version; otherwise
// another writer got there first and models.ErrConflict is returned.
func (q *Queries) SetFoodQuantity(ctx context.Context, id int64, quantity decimal.Decimal, version int64) error {
	if quantity.IsNegative() {
		return fmt.Errorf("%w: quantity %s below zero", models.ErrInvalidInput, quantity)
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE foods SET quantity = ?, version = version + 1 WHERE id = ? AND version = ?`,
		quantity, id, version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: food %d changed concurrently", models.ErrConflict, id)
	}
	return nil
}

// SetFoodStatus updates the display status of a food.
func (q *Queries) SetFoodStatus(ctx context.Context, id int64, status models.FoodStatus) error {
	_, err := q.q.ExecContext(ctx, `UPDATE foods SET status = ? WHERE id = ?`, string(status), id)
	return err
}
