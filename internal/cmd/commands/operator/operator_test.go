package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/labelforge/labelforge/pkg/auth"
	"github.com/labelforge/labelforge/pkg/database"
	"github.com/labelforge/labelforge/pkg/models"
	"github.com/labelforge/labelforge/pkg/roles"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   ":memory:",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.ModelsToAutoMigrate()...))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func TestCreateUser_BootstrapsOrganization(t *testing.T) {
	conn := setupTestDB(t)

	res, err := createUser(conn, newUserOptions{
		Email:             " root@example.com ",
		Password:          "a long password",
		FirstName:         "Root",
		Role:              "admin",
		OrganizationTitle: "Research",
	})
	require.NoError(t, err)

	assert.True(t, res.OrganizationCreated)
	assert.Equal(t, "Research", res.Organization.Title)
	assert.Equal(t, roles.Administrator, res.Role)
	assert.Equal(t, "root@example.com", res.User.Email)
	require.NotNil(t, res.User.ActiveOrganizationID)
	assert.Equal(t, res.Organization.ID, *res.User.ActiveOrganizationID)

	org := &models.Organization{ID: res.Organization.ID}
	require.NoError(t, org.Get(conn))
	require.NotNil(t, org.CreatedByID)
	assert.Equal(t, res.User.ID, *org.CreatedByID)

	isAdmin, err := models.HasActiveRole(conn, res.User.ID, roles.Administrator)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	ok, err := auth.VerifyPassword("a long password", res.User.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := models.UserByTokenKey(conn, res.Token.Key)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, u.ID)
}

func TestCreateUser_UsesFirstOrganization(t *testing.T) {
	conn := setupTestDB(t)

	first, err := createUser(conn, newUserOptions{Email: "one@example.com", Role: "Client"})
	require.NoError(t, err)
	assert.Equal(t, defaultOrganizationTitle, first.Organization.Title)

	second, err := createUser(conn, newUserOptions{Email: "two@example.com", Role: ""})
	require.NoError(t, err)
	assert.False(t, second.OrganizationCreated)
	assert.Equal(t, first.Organization.ID, second.Organization.ID)
	assert.Equal(t, roles.User, second.Role)
	assert.Empty(t, second.User.PasswordHash)

	_, err = createUser(conn, newUserOptions{Email: "two@example.com"})
	assert.ErrorIs(t, err, models.ErrEmailExists)
}

func TestResetToken(t *testing.T) {
	conn := setupTestDB(t)

	res, err := createUser(conn, newUserOptions{Email: "ops@example.com"})
	require.NoError(t, err)

	user, token, err := resetToken(conn, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, user.ID)
	assert.NotEqual(t, res.Token.Key, token.Key)

	_, err = models.UserByTokenKey(conn, res.Token.Key)
	assert.Error(t, err)

	_, _, err = resetToken(conn, "missing@example.com")
	assert.Error(t, err)
}
