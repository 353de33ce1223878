// Package access holds the authenticated principal and the two authorization
// rules every operation is built from: ownership and role.
package access

import (
	"context"

	"github.com/garnizeh/recruit/pkg/models"
)

// Principal is the verified caller identity.
type Principal struct {
	ID   int64       `json:"id"`
	Role models.Role `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// Rule decides whether a principal may act on a resource owned by ownerID.
type Rule func(p Principal, ownerID int64) bool

// Owner allows the principal whose id equals the resource owner.
func Owner(p Principal, ownerID int64) bool {
	return p.ID > 0 && p.ID == ownerID
}

// Role allows principals holding role r regardless of ownership.
func Role(r models.Role) Rule {
	return func(p Principal, _ int64) bool { return p.Role == r }
}

// Admin is Role(models.RoleAdmin).
var Admin = Role(models.RoleAdmin)

// AnyOf allows when at least one rule allows.
func AnyOf(rules ...Rule) Rule {
	return func(p Principal, ownerID int64) bool {
		for _, r := range rules {
			if r(p, ownerID) {
				return true
			}
		}
		return false
	}
}

// OwnerOrAdmin is the rule for reads and owner-side deletes.
var OwnerOrAdmin = AnyOf(Owner, Admin)

// Authorize applies the ownership rule, and when requiredRole is given,
// accepts a principal holding that role instead.
func Authorize(p Principal, ownerID int64, requiredRole ...models.Role) bool {
	if Owner(p, ownerID) {
		return true
	}
	for _, r := range requiredRole {
		if p.Role == r {
			return true
		}
	}
	return false
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal placed by the auth middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
