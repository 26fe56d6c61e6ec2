package permissions

import (
	"context"
	"net/http"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelforge/labelforge/pkg/database"
	"github.com/labelforge/labelforge/pkg/models"
	"github.com/labelforge/labelforge/pkg/roles"
)

func TestUserMethodPermissions(t *testing.T) {
	tests := []struct {
		method string
		want   Capability
	}{
		{http.MethodGet, OrganizationsView},
		{http.MethodHead, OrganizationsView},
		{http.MethodPut, OrganizationsChange},
		{http.MethodPost, OrganizationsView},
		{http.MethodPatch, OrganizationsView},
		{http.MethodDelete, OrganizationsView},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, ok := UserMethodPermissions.For(tt.method)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := UserMethodPermissions.For(http.MethodOptions)
	assert.False(t, ok)
}

func TestRoleChecker(t *testing.T) {
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   ":memory:",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))

	checker := NewRoleChecker(db,
		roles.NewResolver([]string{"admin@example.com"}, nil, hclog.NewNullLogger()))

	admin := &models.User{Email: "admin@example.com", IsActive: true}
	require.NoError(t, admin.Create(db))
	member := &models.User{Email: "member@example.com", IsActive: true}
	require.NoError(t, member.Create(db))
	inactiveAdmin := &models.User{ID: admin.ID, Email: admin.Email, IsActive: false}

	ctx := context.Background()

	assert.True(t, checker.Has(ctx, admin, OrganizationsChange, nil))
	assert.True(t, checker.Has(ctx, admin, OrganizationsView, nil))

	assert.True(t, checker.Has(ctx, member, OrganizationsView, nil))
	assert.True(t, checker.Has(ctx, member, AvatarAny, nil))
	assert.False(t, checker.Has(ctx, member, OrganizationsChange, nil))
	assert.False(t, checker.Has(ctx, member, Capability("projects.delete"), nil))

	assert.False(t, checker.Has(ctx, inactiveAdmin, OrganizationsView, nil))
	assert.False(t, checker.Has(ctx, nil, OrganizationsView, nil))
}
