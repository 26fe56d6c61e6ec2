package roles

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/pkg/database"
	"github.com/labelforge/labelforge/pkg/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   ":memory:",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string, roleName string) *models.User {
	t.Helper()
	u := &models.User{Email: email}
	require.NoError(t, u.Create(db))
	if roleName != "" {
		role, err := models.GetOrCreateRole(db, roleName)
		require.NoError(t, err)
		_, err = models.AssignRole(db, u.ID, role.ID)
		require.NoError(t, err)
	}
	return u
}

func TestResolver(t *testing.T) {
	db := setupTestDB(t)
	r := NewResolver(
		[]string{"Root@Example.com"},
		[]string{"vip@example.com"},
		hclog.NewNullLogger(),
	)

	configuredAdmin := createUser(t, db, "root@example.com", "")
	roleAdmin := createUser(t, db, "boss@example.com", "Administrator")
	shortAdmin := createUser(t, db, "lead@example.com", "admin")
	staff := createUser(t, db, "staff@example.com", "")
	staff.IsStaff = true
	configuredClient := createUser(t, db, "vip@example.com", "")
	roleClient := createUser(t, db, "client@example.com", "CLIENT")
	plain := createUser(t, db, "plain@example.com", "User")

	tests := []struct {
		name     string
		user     *models.User
		isAdmin  bool
		isClient bool
		label    string
	}{
		{"configured admin email", configuredAdmin, true, false, "admin"},
		{"administrator role", roleAdmin, true, false, "admin"},
		{"admin role alias", shortAdmin, true, false, "admin"},
		{"staff flag", staff, true, false, "admin"},
		{"configured client email", configuredClient, false, true, "client"},
		{"client role", roleClient, false, true, "client"},
		{"plain user", plain, false, false, "client"},
		{"nil user", nil, false, false, "client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isAdmin, r.IsAdmin(db, tt.user))
			assert.Equal(t, tt.isClient, r.IsClient(db, tt.user))
			assert.Equal(t, tt.label, r.Label(db, tt.user))
		})
	}

	t.Run("inactive assignment does not count", func(t *testing.T) {
		u := createUser(t, db, "former@example.com", "Administrator")
		require.NoError(t, db.Model(&models.UserRoleAssignment{}).
			Where("user_id = ?", u.ID).
			Update("is_active", false).Error)
		assert.False(t, r.IsAdmin(db, u))
	})

	t.Run("lookup errors resolve to false", func(t *testing.T) {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())

		assert.False(t, r.IsAdmin(db, roleAdmin))
		assert.False(t, r.IsClient(db, roleClient))
		assert.True(t, r.IsAdmin(db, configuredAdmin), "configured emails need no lookup")
	})
}

func TestNormalizeRole(t *testing.T) {
	tests := map[string]string{
		"admin":         Administrator,
		"Admin":         Administrator,
		"administrator": Administrator,
		"client":        Client,
		" Client ":      Client,
		"user":          User,
		"":              User,
		"Reviewer":      "Reviewer",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeRole(in), "input %q", in)
	}
}

func TestRoleForCreation(t *testing.T) {
	assert.Equal(t, User, RoleForCreation("admin", false))
	assert.Equal(t, Administrator, RoleForCreation("admin", true))
	assert.Equal(t, "Reviewer", RoleForCreation("Reviewer", true))
}
