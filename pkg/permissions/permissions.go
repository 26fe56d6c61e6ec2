package permissions

import (
	"context"
	"net/http"

	"gorm.io/gorm"

	"github.com/labelforge/labelforge/pkg/models"
	"github.com/labelforge/labelforge/pkg/roles"
)

// Capability names an action a user may be allowed to perform.
type Capability string

const (
	OrganizationsView   Capability = "organizations.view"
	OrganizationsChange Capability = "organizations.change"
	AvatarAny           Capability = "avatar.any"
)

// Checker answers whether an actor holds a capability on a resource.
type Checker interface {
	Has(ctx context.Context, actor *models.User, capability Capability, resource any) bool
}

// MethodPermissions maps HTTP methods to the capability they require.
type MethodPermissions map[string]Capability

// UserMethodPermissions is the method map of the user endpoints.
var UserMethodPermissions = MethodPermissions{
	http.MethodGet:    OrganizationsView,
	http.MethodHead:   OrganizationsView,
	http.MethodPut:    OrganizationsChange,
	http.MethodPost:   OrganizationsView,
	http.MethodPatch:  OrganizationsView,
	http.MethodDelete: OrganizationsView,
}

// For returns the capability required for the method. ok is false for
// methods without a mapping.
func (m MethodPermissions) For(method string) (c Capability, ok bool) {
	c, ok = m[method]
	return c, ok
}

// RoleChecker grants capabilities based on role resolution:
//   - inactive users hold nothing
//   - administrators hold everything
//   - other users hold organizations.view and avatar.any
type RoleChecker struct {
	DB    *gorm.DB
	Roles *roles.Resolver
}

// NewRoleChecker creates a RoleChecker.
func NewRoleChecker(db *gorm.DB, resolver *roles.Resolver) *RoleChecker {
	return &RoleChecker{
		DB:    db,
		Roles: resolver,
	}
}

func (c *RoleChecker) Has(
	ctx context.Context, actor *models.User, capability Capability, resource any,
) bool {
	if actor == nil || !actor.IsActive {
		return false
	}

	db := c.DB.WithContext(ctx)
	if c.Roles.IsAdmin(db, actor) {
		return true
	}

	switch capability {
	case OrganizationsView, AvatarAny:
		return true
	default:
		return false
	}
}
