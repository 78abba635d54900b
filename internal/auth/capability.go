package auth

import (
	"strings"

	"github.com/jredh-dev/foodloop/pkg/models"
)

// Capability is one command a caller can run, with the role it needs.
type Capability struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	Keywords    []string `json:"keywords"`
	Role        string   `json:"role"`
}

// Registry lists the commands foodloop exposes.
type Registry struct {
	caps []Capability
}

// NewRegistry creates a Registry with the built-in commands.
func NewRegistry() *Registry {
	return &Registry{caps: defaultCapabilities()}
}

// Search returns capabilities p holds that match query. An empty query
// returns everything p holds. Matching is case-insensitive substring.
func (r *Registry) Search(query string, p *Principal) []Capability {
	q := strings.ToLower(strings.TrimSpace(query))
	results := []Capability{}
	for _, c := range r.caps {
		if p == nil || !p.HasRole(c.Role) {
			continue
		}
		if q == "" || matchesQuery(c, q) {
			results = append(results, c)
		}
	}
	return results
}

func matchesQuery(c Capability, q string) bool {
	if strings.Contains(strings.ToLower(c.Title), q) || strings.Contains(strings.ToLower(c.Description), q) {
		return true
	}
	for _, kw := range c.Keywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}
	return false
}

func defaultCapabilities() []Capability {
	return []Capability{
		// Retailer
		{
			ID: "inventory-view", Title: "Inventory", Description: "View the food you stock",
			Method: "GET", Path: "/api/retailer/inventory", Keywords: []string{"stock", "inventory", "items"},
			Role: models.RoleRetailer,
		},
		{
			ID: "inventory-add", Title: "Add stock", Description: "Add a quantity of a food to your inventory",
			Method: "POST", Path: "/api/retailer/inventory", Keywords: []string{"add", "stock", "new", "food"},
			Role: models.RoleRetailer,
		},
		{
			ID: "inventory-sell", Title: "Sell", Description: "Record a sale against a food you stock",
			Method: "POST", Path: "/api/retailer/inventory/{id}/sell", Keywords: []string{"sell", "sale", "sold"},
			Role: models.RoleRetailer,
		},
		{
			ID: "inventory-list", Title: "List for NGOs", Description: "Offer a food to NGOs nearby",
			Method: "POST", Path: "/api/retailer/inventory/{id}/list", Keywords: []string{"list", "donate", "ngo", "offer"},
			Role: models.RoleRetailer,
		},
		{
			ID: "inventory-remove", Title: "Remove", Description: "Stop stocking a food",
			Method: "DELETE", Path: "/api/retailer/inventory/{id}", Keywords: []string{"remove", "delete", "unlink"},
			Role: models.RoleRetailer,
		},
		{
			ID: "notifications", Title: "Notifications", Description: "Stock past its best-before date",
			Method: "GET", Path: "/api/retailer/notifications", Keywords: []string{"expiry", "best before", "alerts"},
			Role: models.RoleRetailer,
		},
		{
			ID: "requests-incoming", Title: "Incoming requests", Description: "Claims NGOs made on your stock",
			Method: "GET", Path: "/api/retailer/requests", Keywords: []string{"requests", "claims", "approve", "ignore"},
			Role: models.RoleRetailer,
		},

		// NGO
		{
			ID: "listings", Title: "Nearby food", Description: "Food listed by retailers in your pincode",
			Method: "GET", Path: "/api/ngo/listings", Keywords: []string{"nearby", "listings", "available", "food"},
			Role: models.RoleNgo,
		},
		{
			ID: "request-create", Title: "Request food", Description: "Claim a quantity of a listed food",
			Method: "POST", Path: "/api/ngo/requests", Keywords: []string{"request", "claim", "pickup"},
			Role: models.RoleNgo,
		},
		{
			ID: "requests-mine", Title: "My requests", Description: "Claims you have made",
			Method: "GET", Path: "/api/ngo/requests", Keywords: []string{"requests", "claims", "status"},
			Role: models.RoleNgo,
		},

		// Farmer
		{
			ID: "forecast", Title: "Demand forecast", Description: "Most requested foods in your pincode",
			Method: "GET", Path: "/api/farmer/forecast", Keywords: []string{"forecast", "demand", "market", "trends"},
			Role: models.RoleFarmer,
		},
	}
}
