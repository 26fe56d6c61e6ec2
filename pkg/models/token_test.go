package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGenerateTokenKey(t *testing.T) {
	a, err := GenerateTokenKey()
	require.NoError(t, err)
	b, err := GenerateTokenKey()
	require.NoError(t, err)

	assert.Len(t, a, 40)
	assert.NotEqual(t, a, b)
}

func TestIssueAndResetToken(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "token@example.com")

	_, err := GetToken(db, u.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	issued, err := IssueToken(db, u.ID)
	require.NoError(t, err)
	assert.Len(t, issued.Key, 40)

	again, err := IssueToken(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, issued.Key, again.Key, "issuing twice returns the same token")

	reset, err := ResetToken(db, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Key, reset.Key)

	stored, err := GetToken(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, reset.Key, stored.Key)

	_, err = UserByTokenKey(db, issued.Key)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "old key is revoked")

	owner, err := UserByTokenKey(db, reset.Key)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner.ID)
}

func TestUserByTokenKey_Malformed(t *testing.T) {
	db := setupTestDB(t)

	for _, key := range []string{"", "short", strings.Repeat("a", 41)} {
		_, err := UserByTokenKey(db, key)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "key %q", key)
	}
}

func TestUserByTokenKey_UnknownKey(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "unknown-key@example.com")
	issued, err := IssueToken(db, u.ID)
	require.NoError(t, err)

	key, err := GenerateTokenKey()
	require.NoError(t, err)
	require.NotEqual(t, issued.Key, key)

	_, err = UserByTokenKey(db, key)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	owner, err := UserByTokenKey(db, issued.Key)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner.ID)
}

func TestRoles(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "roles@example.com")

	admin, err := GetOrCreateRole(db, "Administrator")
	require.NoError(t, err)
	same, err := GetOrCreateRole(db, " Administrator ")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, same.ID)

	_, err = GetOrCreateRole(db, "")
	assert.Error(t, err)

	has, err := HasActiveRole(db, u.ID, "administrator")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = AssignRole(db, u.ID, admin.ID)
	require.NoError(t, err)

	has, err = HasActiveRole(db, u.ID, "administrator", "admin")
	require.NoError(t, err)
	assert.True(t, has, "role names compare case-insensitively")

	has, err = HasActiveRole(db, u.ID)
	require.NoError(t, err)
	assert.False(t, has)

	client, err := GetOrCreateRole(db, "Client")
	require.NoError(t, err)
	a, err := AssignRole(db, u.ID, client.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(a).Update("is_active", false).Error)

	names, err := ActiveRoleNames(db, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Administrator"}, names)
}
