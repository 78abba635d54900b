// Package auth verifies bearer tokens from the identity provider and
// carries the caller's profile and roles through a request.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/jredh-dev/foodloop/pkg/models"
)

// Principal is the verified caller. Every field comes from the identity
// provider; foodloop never edits it.
type Principal struct {
	ID      string   `json:"uid"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	City    string   `json:"city,omitempty"`
	Pincode string   `json:"pincode,omitempty"`
	Contact string   `json:"contact,omitempty"`
}

// HasRole reports whether the principal holds role. Admin holds every role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) || strings.EqualFold(r, models.RoleAdmin) {
			return true
		}
	}
	return false
}

// Owner returns the profile row mirrored into the store.
func (p *Principal) Owner(now time.Time) *models.Owner {
	return &models.Owner{
		ID:        p.ID,
		Email:     NormalizeEmail(p.Email),
		City:      strings.TrimSpace(p.City),
		Pincode:   strings.TrimSpace(p.Pincode),
		Contact:   strings.TrimSpace(p.Contact),
		UpdatedAt: now.UTC(),
	}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the verified caller from ctx.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
