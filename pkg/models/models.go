package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FoodStatus is the display state of a shared food type.
type FoodStatus string

const (
	FoodStatusSelling  FoodStatus = "Selling"
	FoodStatusListing  FoodStatus = "Listing"
	FoodStatusApproved FoodStatus = "Approved"
	// FoodStatusPendingAction marks stock still on sale past its best-before date,
	// waiting for the retailer to list or ignore it.
	FoodStatusPendingAction FoodStatus = "Selling-expired-pending-action"
)

// RequestStatus is the resolution state of a claim.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusIgnored  RequestStatus = "ignored"
)

// Role names as issued by the identity provider.
const (
	RoleRetailer = "Retailer"
	RoleNgo      = "Ngo"
	RoleFarmer   = "Farmer"
	RoleAdmin    = "Admin"
)

// Food is a shared catalog entry. Quantity is one counter for every owner
// stocking the name.
type Food struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	NameKey        string          `json:"-"`
	Quantity       decimal.Decimal `json:"quantity"`
	BestBefore     time.Time       `json:"best_before"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Status         FoodStatus      `json:"status"`
	IsRefrigerated bool            `json:"is_refrigerated"`
	Version        int64           `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Expired reports whether now is past the expiry timestamp.
func (f *Food) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// PastBestBefore reports whether now is past the best-before timestamp.
func (f *Food) PastBestBefore(now time.Time) bool {
	return now.After(f.BestBefore)
}

// InventoryItem links one owner to one food. It carries no quantity of its own.
type InventoryItem struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	FoodID    int64     `json:"food_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FoodRequest is an NGO claim against a retailer's inventory item.
type FoodRequest struct {
	ID              int64           `json:"id"`
	InventoryItemID int64           `json:"inventory_item_id"`
	RequesterID     string          `json:"requester_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	PickupDate      *time.Time      `json:"pickup_date,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Status          RequestStatus   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Owner mirrors the identity provider's profile for a caller.
type Owner struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	City      string    `json:"city"`
	Pincode   string    `json:"pincode"`
	Contact   string    `json:"contact"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryView is an inventory item joined to its food.
type InventoryView struct {
	ItemID  int64  `json:"id"`
	OwnerID string `json:"owner_id"`
	Food    Food   `json:"food"`
}

// Listing is a food visible to NGOs in a retailer's area.
type Listing struct {
	ItemID          int64           `json:"id"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	BestBefore      time.Time       `json:"best_before"`
	ExpiresAt       time.Time       `json:"expires_at"`
	City            string          `json:"city"`
	Pincode         string          `json:"pincode"`
	RetailerContact string          `json:"retailer_contact"`
}

// RequestView is a claim joined to the inventory item and food it references.
type RequestView struct {
	Request      FoodRequest     `json:"request"`
	OwnerID      string          `json:"owner_id"`
	FoodID       int64           `json:"food_id"`
	FoodName     string          `json:"food_name"`
	FoodQuantity decimal.Decimal `json:"food_quantity"`
}

// DemandRow is one historical request used by demand forecasting.
type DemandRow struct {
	Name      string
	Quantity  decimal.Decimal
	CreatedAt time.Time
}

// DemandTotal is the summed requested quantity for one food name.
type DemandTotal struct {
	Name          string          `json:"item_name"`
	TotalQuantity decimal.Decimal `json:"total_requested_quantity"`
}
